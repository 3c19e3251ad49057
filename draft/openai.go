package draft

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAI drafts replies with the Chat Completions API.
type OpenAI struct {
	client openai.Client
	opts   Options
}

func NewOpenAI(opts Options) *OpenAI {
	opts = opts.withDefaults(defaultOpenAIModel)
	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &OpenAI{client: openai.NewClient(reqOpts...), opts: opts}
}

func (o *OpenAI) Draft(ctx context.Context, content string) (string, error) {
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.opts.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(o.opts.SystemPrompt),
			openai.UserMessage(userPrompt(content)),
		},
		Temperature:         openai.Float(*o.opts.Temperature),
		MaxCompletionTokens: openai.Int(int64(o.opts.MaxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("calling OpenAI API: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrEmptyDraft
	}
	return finish(completion.Choices[0].Message.Content)
}
