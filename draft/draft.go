// Package draft asks a language model to write the reply to an email.
package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	defaultMaxTokens   = 300
	defaultTemperature = 0.7
)

// DefaultSystemPrompt is the persona used when none is configured.
const DefaultSystemPrompt = `You are a warm and empathetic assistant answering personal email on behalf of the account owner.
Write a reply of 4-5 sentences.
Address the specific details the sender mentions.
Keep the tone conversational and sincere.
Reply in the language the email is written in.
Return only the text of the reply, without a subject line or signature placeholders.`

var (
	ErrEmptyDraft      = errors.New("model returned an empty draft")
	ErrUnknownProvider = errors.New("unknown draft provider")
)

// Generator writes a reply for the given email body. Every call is a new
// request to the provider.
type Generator interface {
	Draft(ctx context.Context, content string) (string, error)
}

// Options configure a provider. Zero values fall back to the defaults; a nil
// Temperature means 0.7, so an explicit 0 is kept.
type Options struct {
	APIKey       string
	Model        string
	SystemPrompt string
	BaseURL      string
	MaxTokens    int
	Temperature  *float64
}

// Float returns a pointer to v, for Options.Temperature.
func Float(v float64) *float64 { return &v }

func (o Options) withDefaults(model string) Options {
	if o.Model == "" {
		o.Model = model
	}
	if strings.TrimSpace(o.SystemPrompt) == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = defaultMaxTokens
	}
	if o.Temperature == nil || *o.Temperature < 0 {
		o.Temperature = Float(defaultTemperature)
	}
	return o
}

// New returns the generator for provider.
func New(provider string, opts Options) (Generator, error) {
	switch strings.ToLower(provider) {
	case "", ProviderAnthropic:
		return NewAnthropic(opts), nil
	case ProviderOpenAI:
		return NewOpenAI(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

func userPrompt(content string) string {
	return "Please read this email:\n\n" + content
}

func finish(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyDraft
	}
	return text, nil
}
