package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel = "claude-3-5-sonnet-latest"
	anthropicMaxTokens    = 1024
)

type AnthropicClient struct {
	inner anthropic.Client
	model anthropic.Model
}

// NewAnthropic builds a client on the official SDK. baseURL may be empty.
func NewAnthropic(apiKey, model, baseURL string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicClient{
		inner: anthropic.NewClient(opts...),
		model: anthropic.Model(model),
	}, nil
}

func (c *AnthropicClient) params(prompt string) anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
}

func (c *AnthropicClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := c.inner.Messages.New(ctx, c.params(prompt))
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(variant.Text)
		}
	}
	if out.Len() == 0 {
		return "", errors.New("anthropic: no content")
	}
	return out.String(), nil
}

func (c *AnthropicClient) GenerateTextStream(ctx context.Context, prompt string, onDelta func(chunk string) error) error {
	stream := c.inner.Messages.NewStreaming(ctx, c.params(prompt))
	defer stream.Close()
	for stream.Next() {
		event := stream.Current()
		ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
		if !ok || delta.Text == "" {
			continue
		}
		if err := onDelta(delta.Text); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic stream: %w", err)
	}
	return nil
}
