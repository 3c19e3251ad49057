package gmail

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// SanitizeSubject prefixes s with "Re: " unless it already carries one.
func SanitizeSubject(s string) string {
	trimmed := strings.TrimLeft(s, " \t")
	if len(trimmed) >= 3 && strings.EqualFold(trimmed[:3], "re:") {
		return s
	}
	return "Re: " + s
}

// Reply is an outgoing answer to a message in the inbox.
type Reply struct {
	From      string
	To        string
	Subject   string
	InReplyTo string
	Body      string
	Date      time.Time
}

// ComposeReply renders r as a text/plain RFC 5322 message.
func ComposeReply(r Reply) ([]byte, error) {
	var h mail.Header
	h.SetDate(r.Date)
	if r.From != "" {
		from, err := mail.ParseAddress(r.From)
		if err != nil {
			return nil, fmt.Errorf("parsing sender %q: %w", r.From, err)
		}
		h.SetAddressList("From", []*mail.Address{from})
	}
	to, err := mail.ParseAddress(r.To)
	if err != nil {
		return nil, fmt.Errorf("parsing recipient %q: %w", r.To, err)
	}
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject(r.Subject)
	if r.InReplyTo != "" {
		h.Set("In-Reply-To", r.InReplyTo)
		h.Set("References", r.InReplyTo)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := io.WriteString(w, r.Body); err != nil {
		return nil, fmt.Errorf("writing body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message: %w", err)
	}
	return buf.Bytes(), nil
}
