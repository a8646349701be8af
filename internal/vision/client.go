package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// Analysis is the subset of the vision service's response the session
// cares about: enough to update an overlay, nothing more.
type Analysis struct {
	Summary string   `json:"summary"`
	Objects []string `json:"objects,omitempty"`
	People  []string `json:"people,omitempty"`
	Mood    string   `json:"mood,omitempty"`
}

// Client calls the assistant backend's vision endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for the given backend base URL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// Analyze uploads an encoded frame with the analysis type and focus
// areas and returns the parsed analysis.
func (c *Client) Analyze(ctx context.Context, frame []byte, analysisType string, focusAreas []string) (Analysis, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="frame.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		return Analysis{}, fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return Analysis{}, fmt.Errorf("write image part: %w", err)
	}

	if err := writer.WriteField("analysisType", analysisType); err != nil {
		return Analysis{}, fmt.Errorf("write analysisType field: %w", err)
	}
	areas, err := json.Marshal(focusAreas)
	if err != nil {
		return Analysis{}, fmt.Errorf("marshal focus areas: %w", err)
	}
	if err := writer.WriteField("focusAreas", string(areas)); err != nil {
		return Analysis{}, fmt.Errorf("write focusAreas field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Analysis{}, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/vision/analyze", &body)
	if err != nil {
		return Analysis{}, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Analysis{}, fmt.Errorf("analyze: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var payload struct {
		Analysis Analysis `json:"analysis"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Analysis{}, fmt.Errorf("decode analyze response: %w", err)
	}
	return payload.Analysis, nil
}
