package transcribe

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

// WakeWord is the wake-phrase portion of a transcription response.
// CleanTranscript carries any trailing command spoken in the same
// utterance, with the wake phrase stripped.
type WakeWord struct {
	Detected        bool   `json:"detected"`
	WakeWord        string `json:"wakeWord,omitempty"`
	CleanTranscript string `json:"cleanTranscript,omitempty"`
}

// Result is the transcription service's response.
type Result struct {
	Transcript string    `json:"transcript,omitempty"`
	WakeWord   *WakeWord `json:"wakeWord,omitempty"`
}

// Client calls the assistant backend's transcription endpoint. Timeouts
// and retries are the transport's concern, not ours.
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

// Transcribe uploads an encoded audio payload as multipart form data and
// decodes the transcript plus any wake-word verdict.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mime string) (Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="clip%s"`, extForMIME(mime)))
	header.Set("Content-Type", mime)
	part, err := writer.CreatePart(header)
	if err != nil {
		return Result{}, fmt.Errorf("create audio part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return Result{}, fmt.Errorf("write audio part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/voice-to-text/transcribe", &body)
	if err != nil {
		return Result{}, fmt.Errorf("build transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("transcribe request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("transcribe: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode transcribe response: %w", err)
	}
	return result, nil
}

func extForMIME(mime string) string {
	switch {
	case strings.Contains(mime, "ogg"):
		return ".ogg"
	case strings.Contains(mime, "webm"):
		return ".webm"
	case strings.Contains(mime, "wav"):
		return ".wav"
	default:
		return ".bin"
	}
}
