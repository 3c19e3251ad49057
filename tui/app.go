// Package tui is the terminal console over a review session.
package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"

	"github.com/bassamadnan/replybot/review"
)

// Poller is asked for an immediate poll when monitoring is turned on.
type Poller interface {
	Trigger()
}

type App struct {
	*tview.Application
	rootPages        *tview.Pages
	inboxView        *InboxView
	replyPane        *ReplyPane
	focusedEmailView *FocusedEmailView
	statusBar        *tview.TextView

	ctx      context.Context
	loop     *review.Loop
	poller   Poller
	interval time.Duration
	log      zerolog.Logger
	notice   *review.Notice
}

func NewApp(ctx context.Context, loop *review.Loop, poller Poller, interval time.Duration, log zerolog.Logger) *App {
	a := &App{
		Application: tview.NewApplication(),
		ctx:         ctx,
		loop:        loop,
		poller:      poller,
		interval:    interval,
		log:         log.With().Str("component", "tui").Logger(),
	}

	a.inboxView = NewInboxView()
	a.replyPane = NewReplyPane()
	a.focusedEmailView = NewFocusedEmailView()

	dashboard := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(a.inboxView.List, 0, 1, true).
		AddItem(a.replyPane, 0, 2, false)
	dashboard.SetBackgroundColor(tcell.ColorDefault)

	a.statusBar = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.statusBar.SetBackgroundColor(tcell.ColorDefault)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(dashboard, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)
	layout.SetBackgroundColor(tcell.ColorDefault)

	a.rootPages = tview.NewPages().
		AddPage(PageDashboard, layout, true, true).
		AddPage(PageFocusedEmail, a.focusedEmailView, true, false)

	a.Application.SetRoot(a.rootPages, true).EnableMouse(true)
	a.setGlobalKeybindings()
	a.render()
	return a
}

// Run blocks until the operator quits or ctx is cancelled.
func (a *App) Run() error {
	a.loop.SetOnChange(func() {
		a.QueueUpdateDraw(a.render)
	})
	defer a.loop.SetOnChange(nil)

	go a.updateStatusTimer()
	go func() {
		<-a.ctx.Done()
		a.Stop()
	}()
	a.Application.SetFocus(a.inboxView.List)
	return a.Application.Run()
}

func (a *App) setGlobalKeybindings() {
	a.Application.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			a.Stop()
			return nil
		}
		currentPage, _ := a.rootPages.GetFrontPage()
		if currentPage == PageFocusedEmail {
			if event.Key() == tcell.KeyEscape {
				a.ShowDashboardView()
				return nil
			}
			if event.Rune() == 'q' || event.Rune() == 'Q' {
				a.Stop()
				return nil
			}
			return event
		}

		if event.Key() == tcell.KeyEnter {
			a.generateSelected()
			return nil
		}
		switch event.Rune() {
		case 'q', 'Q':
			a.Stop()
		case 'm':
			a.toggleMonitoring()
		case 'c':
			a.async(func(ctx context.Context) { a.loop.Refresh(ctx) })
		case 'g':
			a.generateSelected()
		case 'r':
			a.async(func(ctx context.Context) { a.loop.Regenerate(ctx) })
		case 's':
			a.async(func(ctx context.Context) { a.loop.Send(context.WithoutCancel(ctx)) })
		case 'o':
			if item, ok := a.inboxView.Selected(); ok {
				a.focusedEmailView.SetEmailContent(item.EmailMessage)
				a.rootPages.SwitchToPage(PageFocusedEmail)
				a.Application.SetFocus(a.focusedEmailView.textView)
			}
		default:
			return event
		}
		return nil
	})
}

// async runs fn off the event loop; the loop's change hook redraws.
func (a *App) async(fn func(ctx context.Context)) {
	go fn(a.ctx)
}

func (a *App) toggleMonitoring() {
	a.async(func(ctx context.Context) {
		if a.loop.Monitoring() {
			a.loop.StopMonitoring()
			return
		}
		if a.loop.StartMonitoring() && a.poller != nil {
			a.poller.Trigger()
		}
	})
}

func (a *App) generateSelected() {
	item, ok := a.inboxView.Selected()
	if !ok {
		return
	}
	a.async(func(ctx context.Context) { a.loop.Generate(ctx, item.ID) })
}

// render must run on the event loop.
func (a *App) render() {
	s := a.loop.Snapshot()
	if notices := a.loop.TakeNotices(); len(notices) > 0 {
		last := notices[len(notices)-1]
		a.notice = &last
	}
	a.inboxView.SetItems(s.Inbox)
	a.replyPane.Show(s)
	a.setStatus(s)
}

func (a *App) setStatus(s review.State) {
	text := statusText(s, a.interval, time.Now())
	if a.notice != nil && time.Since(a.notice.Time) < 6*time.Second {
		text = noticeText(*a.notice) + " |" + text
	}
	a.statusBar.SetText(text)
}

func (a *App) updateStatusTimer() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.QueueUpdateDraw(func() {
				a.setStatus(a.loop.Snapshot())
			})
		}
	}
}

func (a *App) ShowDashboardView() {
	a.rootPages.SwitchToPage(PageDashboard)
	a.Application.SetFocus(a.inboxView.List)
}
