package assist

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicReplier struct {
	client anthropic.Client
	model  string
}

func newAnthropicReplier(apiKey, model string, opts *replierOptions) (*anthropicReplier, error) {
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if opts.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.baseURL))
	}
	if opts.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.httpClient))
	}

	return &anthropicReplier{client: anthropic.NewClient(clientOpts...), model: model}, nil
}

func (c *anthropicReplier) Reply(ctx context.Context, message, mode string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		System:    []anthropic.TextBlockParam{{Text: sessionPrompt(mode)}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(message))},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic reply: %w", err)
	}

	var b strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	reply := strings.TrimSpace(b.String())
	if reply == "" {
		return "", fmt.Errorf("anthropic: empty response content")
	}
	return reply, nil
}
