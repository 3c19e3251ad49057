package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"github.com/rs/zerolog"

	"github.com/bassamadnan/replybot/gmail"
)

type sentReply struct {
	ID, Text string
}

type fakeMailbox struct {
	mu        sync.Mutex
	messages  map[string]gmail.EmailMessage
	unread    []string
	listErr   error
	fetchErr  map[string]error
	sendErr   error
	markErr   error
	sent      []sentReply
	markCalls []string
}

func newFakeMailbox(msgs ...gmail.EmailMessage) *fakeMailbox {
	f := &fakeMailbox{messages: map[string]gmail.EmailMessage{}, fetchErr: map[string]error{}}
	for _, m := range msgs {
		f.messages[m.ID] = m
		f.unread = append(f.unread, m.ID)
	}
	return f
}

func (f *fakeMailbox) ListUnread(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.unread...), nil
}

func (f *fakeMailbox) FetchDetails(ctx context.Context, id string) (gmail.EmailMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[id]; err != nil {
		return gmail.EmailMessage{}, err
	}
	return f.messages[id], nil
}

func (f *fakeMailbox) SendReply(ctx context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return &gmail.ReplyError{Stage: gmail.StageSend, ID: id, Err: f.sendErr}
	}
	f.sent = append(f.sent, sentReply{ID: id, Text: text})
	if err := f.markReadLocked(id); err != nil {
		return &gmail.ReplyError{Stage: gmail.StageMarkRead, ID: id, Err: err}
	}
	return nil
}

func (f *fakeMailbox) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markReadLocked(id)
}

func (f *fakeMailbox) markReadLocked(id string) error {
	f.markCalls = append(f.markCalls, id)
	if f.markErr != nil {
		return f.markErr
	}
	var keep []string
	for _, u := range f.unread {
		if u != id {
			keep = append(keep, u)
		}
	}
	f.unread = keep
	return nil
}

type fakeDrafter struct {
	mu       sync.Mutex
	calls    []string
	replies  []string
	err      error
	inflight func()
}

func (d *fakeDrafter) Draft(ctx context.Context, content string) (string, error) {
	d.mu.Lock()
	d.calls = append(d.calls, content)
	n := len(d.calls)
	hook := d.inflight
	d.mu.Unlock()
	if hook != nil {
		hook()
	}
	if d.err != nil {
		return "", d.err
	}
	if n <= len(d.replies) {
		return d.replies[n-1], nil
	}
	return fmt.Sprintf("reply %d", n), nil
}

func hallo() gmail.EmailMessage {
	return gmail.EmailMessage{
		ID:       "m1",
		ThreadID: "m1",
		Subject:  "Hallo",
		Date:     "Sun, 1 Mar 2026 08:00:00 +0100",
		From:     "friend@example.com",
		Content:  "Wie geht's?",
	}
}

func newTestLoop(mb Mailbox, dr Drafter) *Loop {
	n := 0
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return NewLoop(mb, dr, Options{
		MaxHistory: 3,
		Log:        zerolog.Nop(),
		Clock: func() time.Time {
			n++
			return now.Add(time.Duration(n) * time.Second)
		},
		NewID: func() string { return fmt.Sprintf("h%d", n) },
	})
}

func TestPollWhileIdleDoesNothing(t *testing.T) {
	mb := newFakeMailbox(hallo())
	l := newTestLoop(mb, &fakeDrafter{})

	be.Equal(t, len(l.Poll(context.Background())), 0)
	s := l.Snapshot()
	be.True(t, s.LastCheck.IsZero())
	be.Equal(t, s.Phase(), PhaseIdle)
}

func TestPollListsInbox(t *testing.T) {
	mb := newFakeMailbox(hallo())
	l := newTestLoop(mb, &fakeDrafter{})

	be.True(t, l.StartMonitoring())
	be.True(t, !l.StartMonitoring())
	items := l.Poll(context.Background())
	be.Equal(t, len(items), 1)
	be.Equal(t, items[0].Subject, "Hallo")

	s := l.Snapshot()
	be.True(t, !s.LastCheck.IsZero())
	be.Equal(t, s.Phase(), PhasePolling)
}

func TestPollErrorLeavesInboxEmpty(t *testing.T) {
	mb := newFakeMailbox(hallo())
	l := newTestLoop(mb, &fakeDrafter{})
	l.Refresh(context.Background())

	mb.listErr = errors.New("quota exceeded")
	items := l.Refresh(context.Background())
	be.Equal(t, len(items), 0)
	be.Equal(t, len(l.Snapshot().Inbox), 0)

	notices := l.TakeNotices()
	be.Equal(t, len(notices), 1)
	be.Equal(t, notices[0].Level, LevelError)
	be.Equal(t, len(l.TakeNotices()), 0)
}

func TestPollSkipsUnreadableMessage(t *testing.T) {
	other := hallo()
	other.ID = "m2"
	mb := newFakeMailbox(hallo(), other)
	mb.fetchErr["m2"] = errors.New("gone")
	l := newTestLoop(mb, &fakeDrafter{})

	items := l.Refresh(context.Background())
	be.Equal(t, len(items), 1)
	be.Equal(t, items[0].ID, "m1")
	be.Equal(t, len(l.TakeNotices()), 1)
}

func TestHalloScenario(t *testing.T) {
	mb := newFakeMailbox(hallo())
	dr := &fakeDrafter{replies: []string{"Mir geht es gut!"}}
	l := newTestLoop(mb, dr)
	ctx := context.Background()

	l.StartMonitoring()
	l.Poll(ctx)

	text, ok := l.Generate(ctx, "m1")
	be.True(t, ok)
	be.Equal(t, text, "Mir geht es gut!")
	be.Equal(t, dr.calls, []string{"Wie geht's?"})

	s := l.Snapshot()
	be.True(t, s.CanSend())
	be.Equal(t, s.Phase(), PhaseReviewing)

	be.True(t, l.Send(ctx))
	be.Equal(t, mb.sent, []sentReply{{ID: "m1", Text: "Mir geht es gut!"}})
	be.Equal(t, mb.markCalls, []string{"m1"})

	s = l.Snapshot()
	be.True(t, s.Current == nil)
	be.Equal(t, s.Draft, "")
	be.True(t, !s.CanSend())
	be.Equal(t, len(s.Inbox), 0)
	be.Equal(t, len(s.History), 1)
	be.Equal(t, s.History[0].Email.Subject, "Hallo")
	be.Equal(t, s.History[0].Email.Content, "Wie geht's?")
	be.Equal(t, s.History[0].Response, "Mir geht es gut!")

	be.Equal(t, len(l.Poll(ctx)), 0)
}

func TestFailingGeneratorBlocksSend(t *testing.T) {
	mb := newFakeMailbox(hallo())
	dr := &fakeDrafter{err: errors.New("rate limited")}
	l := newTestLoop(mb, dr)
	ctx := context.Background()
	l.Refresh(ctx)

	text, ok := l.Generate(ctx, "m1")
	be.True(t, !ok)
	be.Equal(t, text, "")

	s := l.Snapshot()
	be.True(t, s.Current != nil)
	be.Equal(t, s.Draft, "")
	be.True(t, !s.CanSend())
	be.Equal(t, len(l.TakeNotices()), 1)

	be.True(t, !l.Send(ctx))
	be.Equal(t, len(mb.sent), 0)
}

func TestGenerateUnknownMessage(t *testing.T) {
	l := newTestLoop(newFakeMailbox(), &fakeDrafter{})
	_, ok := l.Generate(context.Background(), "missing")
	be.True(t, !ok)
	be.True(t, l.Snapshot().Current == nil)
}

func TestRegenerateReplacesDraft(t *testing.T) {
	mb := newFakeMailbox(hallo())
	dr := &fakeDrafter{}
	l := newTestLoop(mb, dr)
	ctx := context.Background()
	l.Refresh(ctx)

	first, _ := l.Generate(ctx, "m1")
	second, ok := l.Regenerate(ctx)
	be.True(t, ok)
	be.Equal(t, first, "reply 1")
	be.Equal(t, second, "reply 2")
	be.Equal(t, l.Snapshot().Draft, "reply 2")

	dr.err = errors.New("boom")
	_, ok = l.Regenerate(ctx)
	be.True(t, !ok)
	s := l.Snapshot()
	be.Equal(t, s.Draft, "")
	be.Equal(t, s.Current.ID, "m1")
}

func TestRegenerateWithoutSelection(t *testing.T) {
	l := newTestLoop(newFakeMailbox(), &fakeDrafter{})
	_, ok := l.Regenerate(context.Background())
	be.True(t, !ok)
}

func TestSendFailureKeepsDraft(t *testing.T) {
	mb := newFakeMailbox(hallo())
	mb.sendErr = errors.New("network down")
	l := newTestLoop(mb, &fakeDrafter{})
	ctx := context.Background()
	l.Refresh(ctx)
	l.Generate(ctx, "m1")

	be.True(t, !l.Send(ctx))
	s := l.Snapshot()
	be.True(t, s.CanSend())
	be.Equal(t, len(s.History), 0)
	be.Equal(t, s.Inbox[0].Replied, false)
}

func TestMarkReadFailureDoesNotResend(t *testing.T) {
	mb := newFakeMailbox(hallo())
	mb.markErr = errors.New("modify failed")
	l := newTestLoop(mb, &fakeDrafter{})
	ctx := context.Background()
	l.Refresh(ctx)
	l.Generate(ctx, "m1")

	be.True(t, !l.Send(ctx))
	be.Equal(t, len(mb.sent), 1)
	be.Equal(t, len(l.Snapshot().History), 0)

	items := l.Refresh(ctx)
	be.Equal(t, len(items), 1)
	be.True(t, items[0].Replied)

	mb.markErr = nil
	be.True(t, l.Send(ctx))
	be.Equal(t, len(mb.sent), 1)
	be.Equal(t, mb.markCalls, []string{"m1", "m1"})
	be.Equal(t, len(l.Snapshot().History), 1)
}

func TestHistoryBoundedMostRecentFirst(t *testing.T) {
	var msgs []gmail.EmailMessage
	for i := 1; i <= 5; i++ {
		m := hallo()
		m.ID = fmt.Sprintf("m%d", i)
		m.Subject = fmt.Sprintf("mail %d", i)
		msgs = append(msgs, m)
	}
	mb := newFakeMailbox(msgs...)
	l := newTestLoop(mb, &fakeDrafter{})
	ctx := context.Background()
	l.Refresh(ctx)

	for _, m := range msgs {
		_, ok := l.Generate(ctx, m.ID)
		be.True(t, ok)
		be.True(t, l.Send(ctx))
	}

	h := l.History(0)
	be.Equal(t, len(h), 3)
	be.Equal(t, h[0].Email.Subject, "mail 5")
	be.Equal(t, h[1].Email.Subject, "mail 4")
	be.Equal(t, h[2].Email.Subject, "mail 3")
	be.True(t, h[0].Time.After(h[1].Time))

	be.Equal(t, len(l.History(10)), 5)
	be.Equal(t, len(l.Snapshot().History), 3)
}

func TestSnapshotDuringDraft(t *testing.T) {
	mb := newFakeMailbox(hallo())
	dr := &fakeDrafter{}
	l := newTestLoop(mb, dr)
	ctx := context.Background()
	l.Refresh(ctx)

	var during State
	dr.inflight = func() { during = l.Snapshot() }
	l.Generate(ctx, "m1")

	be.True(t, during.Drafting)
	be.Equal(t, during.Phase(), PhaseDrafting)
	be.True(t, !during.CanSend())
	be.True(t, !l.Snapshot().Drafting)
}

func TestOnChangeCalled(t *testing.T) {
	l := newTestLoop(newFakeMailbox(hallo()), &fakeDrafter{})
	var calls int
	l.SetOnChange(func() { calls++ })

	l.StartMonitoring()
	l.Poll(context.Background())
	be.True(t, calls >= 2)
}

func TestSnapshotIsCopy(t *testing.T) {
	l := newTestLoop(newFakeMailbox(hallo()), &fakeDrafter{})
	ctx := context.Background()
	l.Refresh(ctx)
	l.Generate(ctx, "m1")

	s := l.Snapshot()
	s.Inbox[0].Subject = "changed"
	s.Current.Subject = "changed"
	fresh := l.Snapshot()
	be.Equal(t, fresh.Inbox[0].Subject, "Hallo")
	be.Equal(t, fresh.Current.Subject, "Hallo")
}

func TestTryPollRequiresMonitoring(t *testing.T) {
	mb := newFakeMailbox(gmail.EmailMessage{ID: "m1", Subject: "Hallo"})
	l := newTestLoop(mb, &fakeDrafter{})

	items, ok := l.TryPoll(context.Background())
	be.True(t, !ok)
	be.Equal(t, len(items), 0)

	l.StartMonitoring()
	items, ok = l.TryPoll(context.Background())
	be.True(t, ok)
	be.Equal(t, len(items), 1)
}
