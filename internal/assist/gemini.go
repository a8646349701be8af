package assist

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type geminiReplier struct {
	client *genai.Client
	model  string
}

func newGeminiReplier(apiKey, model string, opts *replierOptions) (*geminiReplier, error) {
	ctx := context.Background()
	config := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if opts.baseURL != "" {
		config.HTTPOptions.BaseURL = opts.baseURL
	}
	if opts.httpClient != nil {
		config.HTTPClient = opts.httpClient
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &geminiReplier{client: client, model: model}, nil
}

func (c *geminiReplier) Reply(ctx context.Context, message, mode string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: sessionPrompt(mode)}}},
	}
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: message}}},
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini reply: %w", err)
	}

	reply := strings.TrimSpace(result.Text())
	if reply == "" {
		return "", fmt.Errorf("gemini: empty response text")
	}
	return reply, nil
}
