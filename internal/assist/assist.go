package assist

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Replier produces the assistant's reply to one user utterance. The mode
// string tells the provider what kind of session the utterance came from
// (text, voice, multimodal).
type Replier interface {
	Reply(ctx context.Context, message, mode string) (string, error)
}

type Option func(*replierOptions)

type replierOptions struct {
	baseURL    string
	httpClient *http.Client
}

func WithBaseURL(url string) Option {
	return func(o *replierOptions) {
		o.baseURL = url
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *replierOptions) {
		o.httpClient = client
	}
}

// ParseModel splits "provider/model_name" config strings.
func ParseModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

// NewReplier builds a reply provider. The "assistant" provider talks to
// the dashboard backend's chat endpoint and needs only a base URL; the
// others call their model APIs directly with an API key.
func NewReplier(provider, apiKey, model string, opts ...Option) (Replier, error) {
	o := &replierOptions{}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "assistant":
		return newBackendReplier(o)
	case "openai":
		return newOpenAIReplier(apiKey, model, o)
	case "anthropic":
		return newAnthropicReplier(apiKey, model, o)
	case "gemini":
		return newGeminiReplier(apiKey, model, o)
	default:
		return nil, fmt.Errorf("unknown reply provider %q: supported providers are assistant, openai, anthropic, gemini", provider)
	}
}

// sessionPrompt frames the utterance for the direct model providers; the
// assistant backend applies its own framing server-side.
func sessionPrompt(mode string) string {
	return fmt.Sprintf("You are Cartrita, a personal assistant in a live %s session. "+
		"Your reply will be spoken aloud to the user, so keep it short, conversational, and free of markup.", mode)
}
