package draft

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// Anthropic drafts replies with the Claude Messages API.
type Anthropic struct {
	client anthropic.Client
	opts   Options
}

func NewAnthropic(opts Options) *Anthropic {
	opts = opts.withDefaults(defaultAnthropicModel)
	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &Anthropic{client: anthropic.NewClient(reqOpts...), opts: opts}
}

func (a *Anthropic) Draft(ctx context.Context, content string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.opts.Model),
		MaxTokens:   int64(a.opts.MaxTokens),
		Temperature: anthropic.Float(*a.opts.Temperature),
		System:      []anthropic.TextBlockParam{{Text: a.opts.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(content))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return finish(b.String())
}
