package gmail

import (
	"errors"
	"fmt"
)

const (
	NoSubject     = "(no subject)"
	NoDate        = "(no date)"
	UnknownSender = "(unknown sender)"
)

// EmailMessage holds the parts of a Gmail message the review loop works with.
type EmailMessage struct {
	ID        string
	ThreadID  string
	MessageID string // RFC 5322 Message-ID header, used for In-Reply-To
	Subject   string
	Date      string // raw Date header
	From      string
	Content   string
}

// Stage names the step of SendReply that failed.
type Stage string

const (
	StageLookup   Stage = "lookup"
	StageCompose  Stage = "compose"
	StageSend     Stage = "send"
	StageMarkRead Stage = "mark-read"
)

// ReplyError is returned by SendReply. A failure at StageMarkRead means the
// reply itself was delivered.
type ReplyError struct {
	Stage Stage
	ID    string
	Err   error
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("reply to %s: %s: %v", e.ID, e.Stage, e.Err)
}

func (e *ReplyError) Unwrap() error { return e.Err }

// Delivered reports whether err came from a reply that reached the provider.
func Delivered(err error) bool {
	var re *ReplyError
	return errors.As(err, &re) && re.Stage == StageMarkRead
}
