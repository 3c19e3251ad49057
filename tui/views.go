package tui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/bassamadnan/replybot/gmail"
	"github.com/bassamadnan/replybot/review"
)

const (
	PageDashboard    = "dashboard"
	PageFocusedEmail = "focusedEmail"
)

// InboxView lists the unread emails of the last poll.
type InboxView struct {
	*tview.List
	items []review.InboxItem
}

func NewInboxView() *InboxView {
	list := tview.NewList().
		ShowSecondaryText(true).
		SetSecondaryTextColor(tcell.ColorDimGray)

	list.SetBackgroundColor(tcell.ColorDefault)
	list.SetSelectedStyle(tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorSteelBlue).
		Attributes(tcell.AttrBold))
	list.SetBorder(true).SetTitle("Unread")
	return &InboxView{List: list}
}

// SetItems replaces the list, keeping the selected email selected when it is
// still present.
func (v *InboxView) SetItems(items []review.InboxItem) {
	selected, hadSelection := v.Selected()
	v.items = items
	v.List.Clear()
	for _, item := range items {
		main, secondary := inboxItemText(item)
		v.List.AddItem(main, secondary, 0, nil)
	}
	v.SetTitle(fmt.Sprintf("Unread (%d)", len(items)))
	if len(items) == 0 {
		return
	}
	idx := 0
	if hadSelection {
		for i, item := range items {
			if item.ID == selected.ID {
				idx = i
				break
			}
		}
	}
	v.List.SetCurrentItem(idx)
}

func (v *InboxView) Selected() (review.InboxItem, bool) {
	idx := v.List.GetCurrentItem()
	if idx < 0 || idx >= len(v.items) {
		return review.InboxItem{}, false
	}
	return v.items[idx], true
}

// ReplyPane shows the pending draft and the sent history.
type ReplyPane struct {
	*tview.TextView
}

func NewReplyPane() *ReplyPane {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	tv.SetBackgroundColor(tcell.ColorDefault)
	tv.SetBorder(true).SetTitle("Reply")
	return &ReplyPane{TextView: tv}
}

func (p *ReplyPane) Show(s review.State) {
	p.SetText(replyText(s))
	if s.Current != nil {
		p.SetTitle(fmt.Sprintf("Reply: %s", truncate(s.Current.Subject, 40)))
	} else {
		p.SetTitle("Reply")
	}
}

// FocusedEmailView shows one email in full.
type FocusedEmailView struct {
	*tview.Frame
	textView *tview.TextView
}

func NewFocusedEmailView() *FocusedEmailView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	textView.SetBackgroundColor(tcell.ColorDefault)

	frame := tview.NewFrame(textView).
		AddText("", true, tview.AlignCenter, tcell.ColorYellow).
		AddText("Press Esc to go back", false, tview.AlignCenter, tcell.ColorDimGray)
	frame.SetBorder(true).SetBackgroundColor(tcell.ColorDefault)

	return &FocusedEmailView{Frame: frame, textView: textView}
}

func (fev *FocusedEmailView) SetEmailContent(email gmail.EmailMessage) {
	var builder strings.Builder
	fmt.Fprintf(&builder, "[::b]From:[::-] %s\n", tview.Escape(email.From))
	fmt.Fprintf(&builder, "[::b]Date:[::-] %s\n", tview.Escape(email.Date))
	fmt.Fprintf(&builder, "[::b]Subject:[::-] %s\n\n", tview.Escape(email.Subject))
	builder.WriteString(strings.Repeat("─", 70) + "\n\n")
	builder.WriteString(tview.Escape(strings.ReplaceAll(email.Content, "\r\n", "\n")))
	fev.textView.SetText(builder.String()).ScrollToBeginning()
	fev.Frame.Clear().
		AddText(fmt.Sprintf("Subject: %s", truncate(email.Subject, 60)), true, tview.AlignCenter, tcell.ColorYellow).
		AddText("Press Esc to go back", false, tview.AlignCenter, tcell.ColorDimGray).
		SetPrimitive(fev.textView)
}
