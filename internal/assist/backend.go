package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type backendReplier struct {
	baseURL    string
	httpClient *http.Client
}

func newBackendReplier(opts *replierOptions) (*backendReplier, error) {
	if opts.baseURL == "" {
		return nil, fmt.Errorf("assistant provider requires a base URL")
	}
	httpClient := opts.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &backendReplier{baseURL: strings.TrimRight(opts.baseURL, "/"), httpClient: httpClient}, nil
}

func (c *backendReplier) Reply(ctx context.Context, message, mode string) (string, error) {
	payload, err := json.Marshal(map[string]string{"message": message, "mode": mode})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}

	reply := strings.TrimSpace(parsed.Response)
	if reply == "" {
		return "", fmt.Errorf("chat: empty response")
	}
	return reply, nil
}
