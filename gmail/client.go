package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	user        = "me"
	unreadLabel = "UNREAD"
)

// Client talks to the Gmail REST API on behalf of the sender account and only
// ever replies to the target address.
type Client struct {
	srv    *gmail.Service
	sender string
	target string
	log    zerolog.Logger
	now    func() time.Time
}

// NewClient builds the Gmail service from opts, which carry the token source
// in production and a test endpoint in tests.
func NewClient(ctx context.Context, sender, target string, log zerolog.Logger, opts ...option.ClientOption) (*Client, error) {
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return &Client{
		srv:    srv,
		sender: sender,
		target: target,
		log:    log.With().Str("component", "gmail").Logger(),
		now:    time.Now,
	}, nil
}

// Target is the only address replies are sent to.
func (c *Client) Target() string { return c.target }

// Sender returns the account replies are sent from, asking Gmail for the
// profile address when none was configured.
func (c *Client) Sender(ctx context.Context) (string, error) {
	if c.sender != "" {
		return c.sender, nil
	}
	profile, err := c.srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("retrieving gmail profile: %w", err)
	}
	c.sender = profile.EmailAddress
	return c.sender, nil
}

// ListUnread lists unread messages from the target address.
func (c *Client) ListUnread(ctx context.Context) ([]string, error) {
	return c.ListUnreadFromSender(ctx, c.target)
}

// ListUnreadFromSender returns the ids of the first result page of unread
// messages from sender.
func (c *Client) ListUnreadFromSender(ctx context.Context, sender string) ([]string, error) {
	query := fmt.Sprintf("from:%s is:unread", sender)
	resp, err := c.srv.Users.Messages.List(user).Q(query).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("listing unread messages from %s: %w", sender, err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	c.log.Debug().Str("query", query).Int("count", len(ids)).Msg("listed unread messages")
	return ids, nil
}

// FetchDetails retrieves the full message and extracts headers and body.
func (c *Client) FetchDetails(ctx context.Context, id string) (EmailMessage, error) {
	msg, err := c.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return EmailMessage{}, fmt.Errorf("retrieving message %s: %w", id, err)
	}
	return parseMessage(msg), nil
}

func parseMessage(msg *gmail.Message) EmailMessage {
	var headers []*gmail.MessagePartHeader
	if msg.Payload != nil {
		headers = msg.Payload.Headers
	}
	return EmailMessage{
		ID:        msg.Id,
		ThreadID:  msg.ThreadId,
		MessageID: header(headers, "Message-ID"),
		Subject:   headerOr(headers, "Subject", NoSubject),
		Date:      headerOr(headers, "Date", NoDate),
		From:      headerOr(headers, "From", UnknownSender),
		Content:   ExtractBody(msg.Payload),
	}
}

func header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func headerOr(headers []*gmail.MessagePartHeader, name, fallback string) string {
	if v := header(headers, name); v != "" {
		return v
	}
	return fallback
}

// SendReply answers message id with text in the same thread, then removes
// the UNREAD label from the original. The sequence stops at the first
// failing step and nothing is retried.
func (c *Client) SendReply(ctx context.Context, id, text string) error {
	orig, err := c.srv.Users.Messages.Get(user, id).
		Format("metadata").
		MetadataHeaders("Subject", "Message-ID").
		Context(ctx).
		Do()
	if err != nil {
		return &ReplyError{Stage: StageLookup, ID: id, Err: err}
	}
	var headers []*gmail.MessagePartHeader
	if orig.Payload != nil {
		headers = orig.Payload.Headers
	}

	raw, err := ComposeReply(Reply{
		From:      c.sender,
		To:        c.target,
		Subject:   SanitizeSubject(headerOr(headers, "Subject", NoSubject)),
		InReplyTo: header(headers, "Message-ID"),
		Body:      text,
		Date:      c.now(),
	})
	if err != nil {
		return &ReplyError{Stage: StageCompose, ID: id, Err: err}
	}

	threadID := orig.ThreadId
	if threadID == "" {
		threadID = id
	}
	sent, err := c.srv.Users.Messages.Send(user, &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: threadID,
	}).Context(ctx).Do()
	if err != nil {
		return &ReplyError{Stage: StageSend, ID: id, Err: err}
	}
	c.log.Info().Str("id", id).Str("thread", threadID).Str("sent", sent.Id).Msg("reply sent")

	if err := c.MarkRead(ctx, id); err != nil {
		return &ReplyError{Stage: StageMarkRead, ID: id, Err: err}
	}
	return nil
}

// MarkRead removes the UNREAD label from message id.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	_, err := c.srv.Users.Messages.Modify(user, id, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{unreadLabel},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("marking message %s read: %w", id, err)
	}
	return nil
}
