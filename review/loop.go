// Package review holds the session state of the dashboard and the
// transitions operators and the poll scheduler drive it through.
package review

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bassamadnan/replybot/gmail"
)

const (
	DefaultMaxHistory = 5
	maxNotices        = 20
)

// Mailbox is the part of the mail provider the loop needs.
type Mailbox interface {
	ListUnread(ctx context.Context) ([]string, error)
	FetchDetails(ctx context.Context, id string) (gmail.EmailMessage, error)
	SendReply(ctx context.Context, id, text string) error
	MarkRead(ctx context.Context, id string) error
}

// Drafter writes a reply for an email body.
type Drafter interface {
	Draft(ctx context.Context, content string) (string, error)
}

type Options struct {
	MaxHistory int
	Log        zerolog.Logger
	Clock      func() time.Time
	NewID      func() string
}

// Loop is one review session. Provider calls are serialized by ops; mu only
// guards state, so snapshots never wait for a slow provider.
type Loop struct {
	mailbox    Mailbox
	drafter    Drafter
	log        zerolog.Logger
	maxHistory int
	clock      func() time.Time
	newID      func() string

	ops sync.Mutex

	mu        sync.Mutex
	state     State
	delivered map[string]bool
	onChange  func()
}

func NewLoop(mailbox Mailbox, drafter Drafter, opts Options) *Loop {
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Loop{
		mailbox:    mailbox,
		drafter:    drafter,
		log:        opts.Log,
		maxHistory: opts.MaxHistory,
		clock:      opts.Clock,
		newID:      opts.NewID,
		delivered:  map[string]bool{},
	}
}

// SetOnChange registers fn to be called after every state change. fn runs
// without any loop lock held.
func (l *Loop) SetOnChange(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = fn
}

func (l *Loop) changed() {
	l.mu.Lock()
	fn := l.onChange
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// StartMonitoring turns periodic polling on. It reports whether the flag
// changed.
func (l *Loop) StartMonitoring() bool {
	return l.setMonitoring(true)
}

func (l *Loop) StopMonitoring() bool {
	return l.setMonitoring(false)
}

func (l *Loop) setMonitoring(on bool) bool {
	l.mu.Lock()
	if l.state.Monitoring == on {
		l.mu.Unlock()
		return false
	}
	l.state.Monitoring = on
	l.mu.Unlock()
	l.log.Info().Bool("monitoring", on).Msg("monitoring toggled")
	l.changed()
	return true
}

func (l *Loop) Monitoring() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Monitoring
}

// Poll refreshes the inbox if monitoring is on and returns nil otherwise.
func (l *Loop) Poll(ctx context.Context) []InboxItem {
	if !l.Monitoring() {
		return nil
	}
	return l.Refresh(ctx)
}

// Refresh lists the unread messages from the target and replaces the inbox
// with them. A listing error leaves the inbox empty; a message that cannot
// be fetched is skipped.
func (l *Loop) Refresh(ctx context.Context) []InboxItem {
	l.ops.Lock()
	defer l.ops.Unlock()
	return l.refresh(ctx)
}

// TryPoll is Poll for the timer. It reports false without waiting when
// monitoring is off or another operation on the session is running.
func (l *Loop) TryPoll(ctx context.Context) ([]InboxItem, bool) {
	if !l.Monitoring() {
		return nil, false
	}
	if !l.ops.TryLock() {
		return nil, false
	}
	defer l.ops.Unlock()
	return l.refresh(ctx), true
}

// refresh runs with l.ops held.
func (l *Loop) refresh(ctx context.Context) []InboxItem {
	ids, err := l.mailbox.ListUnread(ctx)
	if err != nil {
		l.notify(LevelError, fmt.Sprintf("Could not check for new emails: %v", err))
		ids = nil
	}

	items := make([]InboxItem, 0, len(ids))
	for _, id := range ids {
		msg, err := l.mailbox.FetchDetails(ctx, id)
		if err != nil {
			l.notify(LevelError, fmt.Sprintf("Could not read email %s: %v", id, err))
			continue
		}
		items = append(items, InboxItem{EmailMessage: msg})
	}

	l.mu.Lock()
	for i := range items {
		items[i].Replied = l.delivered[items[i].ID]
	}
	l.state.Inbox = items
	l.state.LastCheck = l.clock()
	out := append([]InboxItem(nil), items...)
	l.mu.Unlock()

	l.log.Debug().Int("unread", len(out)).Msg("inbox refreshed")
	l.changed()
	return out
}

// Generate selects the inbox message id and drafts a reply to it. On failure
// the message stays selected with an empty draft.
func (l *Loop) Generate(ctx context.Context, id string) (string, bool) {
	l.ops.Lock()
	defer l.ops.Unlock()

	l.mu.Lock()
	msg, ok := l.lookup(id)
	l.mu.Unlock()
	if !ok {
		l.notify(LevelError, fmt.Sprintf("Email %s is no longer in the inbox", id))
		return "", false
	}
	return l.draft(ctx, msg)
}

// Regenerate replaces the draft for the selected message with a new one.
func (l *Loop) Regenerate(ctx context.Context) (string, bool) {
	l.ops.Lock()
	defer l.ops.Unlock()

	l.mu.Lock()
	cur := l.state.Current
	l.mu.Unlock()
	if cur == nil {
		l.notify(LevelError, "No email selected")
		return "", false
	}
	return l.draft(ctx, *cur)
}

// lookup requires l.mu.
func (l *Loop) lookup(id string) (gmail.EmailMessage, bool) {
	for _, item := range l.state.Inbox {
		if item.ID == id {
			return item.EmailMessage, true
		}
	}
	if l.state.Current != nil && l.state.Current.ID == id {
		return *l.state.Current, true
	}
	return gmail.EmailMessage{}, false
}

// draft requires l.ops.
func (l *Loop) draft(ctx context.Context, msg gmail.EmailMessage) (string, bool) {
	l.mu.Lock()
	l.state.Current = &msg
	l.state.Draft = ""
	l.state.Drafting = true
	l.mu.Unlock()
	l.changed()

	text, err := l.drafter.Draft(ctx, msg.Content)

	l.mu.Lock()
	l.state.Drafting = false
	if err == nil {
		l.state.Draft = text
	}
	l.mu.Unlock()

	if err != nil {
		l.notify(LevelError, fmt.Sprintf("Could not generate a reply: %v", err))
		return "", false
	}
	l.log.Info().Str("id", msg.ID).Int("chars", len(text)).Msg("draft generated")
	l.changed()
	return text, true
}

// Send delivers the pending draft for the selected message. If a previous
// attempt already delivered it, only marking the message read is retried.
func (l *Loop) Send(ctx context.Context) bool {
	l.ops.Lock()
	defer l.ops.Unlock()

	l.mu.Lock()
	cur, text := l.state.Current, l.state.Draft
	var delivered bool
	if cur != nil {
		delivered = l.delivered[cur.ID]
	}
	l.mu.Unlock()
	if cur == nil || text == "" {
		l.notify(LevelError, "There is no reply to send")
		return false
	}
	msg := *cur

	var err error
	if delivered {
		err = l.mailbox.MarkRead(ctx, msg.ID)
	} else {
		err = l.mailbox.SendReply(ctx, msg.ID, text)
	}
	if err != nil {
		if delivered || gmail.Delivered(err) {
			l.markDelivered(msg.ID)
			l.notify(LevelError, fmt.Sprintf("Reply was sent but the email could not be marked read: %v", err))
			return false
		}
		l.notify(LevelError, fmt.Sprintf("Could not send the reply: %v", err))
		return false
	}

	l.mu.Lock()
	delete(l.delivered, msg.ID)
	l.state.History = append(l.state.History, HistoryEntry{
		ID:       l.newID(),
		Time:     l.clock(),
		Email:    msg,
		Response: text,
	})
	l.state.Current = nil
	l.state.Draft = ""
	l.state.Inbox = removeItem(l.state.Inbox, msg.ID)
	l.mu.Unlock()

	l.log.Info().Str("id", msg.ID).Msg("reply recorded")
	l.notify(LevelInfo, "Reply sent")
	return true
}

func (l *Loop) markDelivered(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delivered[id] = true
	for i := range l.state.Inbox {
		if l.state.Inbox[i].ID == id {
			l.state.Inbox[i].Replied = true
		}
	}
}

func removeItem(items []InboxItem, id string) []InboxItem {
	out := items[:0:0]
	for _, item := range items {
		if item.ID != id {
			out = append(out, item)
		}
	}
	return out
}

// History returns up to limit entries, most recent first. A limit of zero
// or less uses the configured maximum.
func (l *Loop) History(limit int) []HistoryEntry {
	if limit <= 0 {
		limit = l.maxHistory
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return recent(l.state.History, limit)
}

func recent(history []HistoryEntry, limit int) []HistoryEntry {
	n := min(limit, len(history))
	out := make([]HistoryEntry, 0, n)
	for i := len(history) - 1; i >= len(history)-n; i-- {
		out = append(out, history[i])
	}
	return out
}

// Snapshot returns a copy of the state for rendering. Its History is the
// bounded, most recent first view.
func (l *Loop) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.state.clone()
	s.History = recent(l.state.History, l.maxHistory)
	return s
}

// TakeNotices returns and clears the pending operator notices.
func (l *Loop) TakeNotices() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.state.Notices
	l.state.Notices = nil
	return out
}

func (l *Loop) notify(level Level, text string) {
	l.mu.Lock()
	l.state.Notices = append(l.state.Notices, Notice{Level: level, Text: text, Time: l.clock()})
	if over := len(l.state.Notices) - maxNotices; over > 0 {
		l.state.Notices = l.state.Notices[over:]
	}
	l.mu.Unlock()

	if level == LevelError {
		l.log.Error().Msg(text)
	} else {
		l.log.Info().Msg(text)
	}
	l.changed()
}
