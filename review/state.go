package review

import (
	"time"

	"github.com/bassamadnan/replybot/gmail"
)

// Phase is the position of a session in the review workflow.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePolling   Phase = "polling"
	PhaseDrafting  Phase = "drafting"
	PhaseReviewing Phase = "reviewing"
)

// InboxItem is an unread message from the last poll.
type InboxItem struct {
	gmail.EmailMessage
	// Replied is set when a reply was delivered but the message could not
	// be marked read.
	Replied bool
}

// HistoryEntry records one sent reply.
type HistoryEntry struct {
	ID       string
	Time     time.Time
	Email    gmail.EmailMessage
	Response string
}

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a message for the operator.
type Notice struct {
	Level Level
	Text  string
	Time  time.Time
}

// State is what a session shows. Draft only means something together with
// Current.
type State struct {
	Monitoring bool
	LastCheck  time.Time
	Inbox      []InboxItem
	Current    *gmail.EmailMessage
	Draft      string
	Drafting   bool
	History    []HistoryEntry
	Notices    []Notice
}

// CanSend reports whether the send action is available.
func (s State) CanSend() bool {
	return s.Current != nil && s.Draft != "" && !s.Drafting
}

func (s State) Phase() Phase {
	switch {
	case s.Drafting:
		return PhaseDrafting
	case s.Current != nil && s.Draft != "":
		return PhaseReviewing
	case s.Monitoring:
		return PhasePolling
	default:
		return PhaseIdle
	}
}

func (s State) clone() State {
	out := s
	out.Inbox = append([]InboxItem(nil), s.Inbox...)
	out.History = append([]HistoryEntry(nil), s.History...)
	out.Notices = append([]Notice(nil), s.Notices...)
	if s.Current != nil {
		cur := *s.Current
		out.Current = &cur
	}
	return out
}
