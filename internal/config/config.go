package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all livectl environment variables.
const EnvPrefix = "LIVECTL_"

// Config holds all daemon configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr       string `yaml:"listen_addr"`
	DBPath           string `yaml:"db_path"`
	AssistantBaseURL string `yaml:"assistant_base_url"`

	AckDelay      string `yaml:"ack_delay"`
	AckText       string `yaml:"ack_text"`
	StopAckText   string `yaml:"stop_ack_text"`
	ChunkInterval string `yaml:"chunk_interval"`
	ChunkBuffer   int    `yaml:"chunk_buffer"`
	MinChunkBytes int    `yaml:"min_chunk_bytes"`

	FrameWidth    int     `yaml:"frame_width"`
	FrameHeight   int     `yaml:"frame_height"`
	FrameQuality  float64 `yaml:"frame_quality"`
	FrameInterval string  `yaml:"frame_interval"`

	Voice      string  `yaml:"voice"`
	SpeechRate float64 `yaml:"speech_rate"`

	MicSampleRate  int    `yaml:"mic_sample_rate"`
	MicSampleRates []int  `yaml:"mic_sample_rates"`
	CameraDevice   string `yaml:"camera_device"`

	// ChatModel selects the reply provider as provider/model_name; the
	// special value "assistant" routes replies through the dashboard
	// backend's chat endpoint instead.
	ChatModel string `yaml:"chat_model"`

	// Secrets — env vars only, never serialized to YAML.
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:       "127.0.0.1:8765",
		DBPath:           "data/livectl.db",
		AssistantBaseURL: "http://127.0.0.1:8000",
		AckDelay:         "1500ms",
		AckText:          "Yes?",
		ChunkInterval:    "500ms",
		ChunkBuffer:      10,
		MinChunkBytes:    1024,
		FrameWidth:       640,
		FrameHeight:      480,
		FrameQuality:     0.8,
		FrameInterval:    "3s",
		SpeechRate:       1.0,
		MicSampleRate:    16000,
		MicSampleRates:   []int{48000, 44100, 32000, 24000},
		CameraDevice:     "/dev/video0",
		ChatModel:        "assistant",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedAckDelay returns AckDelay as a time.Duration, falling back to
// 1.5s if the value is invalid.
func (c *Config) ParsedAckDelay() time.Duration {
	return parseDurationOr(c.AckDelay, 1500*time.Millisecond)
}

// ParsedChunkInterval returns ChunkInterval as a time.Duration, falling
// back to 500ms if the value is invalid.
func (c *Config) ParsedChunkInterval() time.Duration {
	return parseDurationOr(c.ChunkInterval, 500*time.Millisecond)
}

// ParsedFrameInterval returns FrameInterval as a time.Duration, falling
// back to 3s if the value is invalid.
func (c *Config) ParsedFrameInterval() time.Duration {
	return parseDurationOr(c.FrameInterval, 3*time.Second)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// SampleRateCandidates returns a deduplicated ordered list of sample rates
// to try: preferred rate first, then configured alternatives, then defaults.
func (c *Config) SampleRateCandidates() []int {
	hardcoded := []int{16000, 48000, 44100, 32000, 24000}

	combined := make([]int, 0, 1+len(c.MicSampleRates)+len(hardcoded))
	combined = append(combined, c.MicSampleRate)
	combined = append(combined, c.MicSampleRates...)
	combined = append(combined, hardcoded...)

	seen := make(map[int]struct{}, len(combined))
	result := make([]int, 0, len(combined))
	for _, rate := range combined {
		if rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "ASSISTANT_BASE_URL"); v != "" {
		cfg.AssistantBaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "ACK_DELAY"); v != "" {
		cfg.AckDelay = v
	}
	if v := os.Getenv(EnvPrefix + "ACK_TEXT"); v != "" {
		cfg.AckText = v
	}
	if v := os.Getenv(EnvPrefix + "STOP_ACK_TEXT"); v != "" {
		cfg.StopAckText = v
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_INTERVAL"); v != "" {
		cfg.ChunkInterval = v
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_BUFFER"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.ChunkBuffer = n
		}
	}
	if v := os.Getenv(EnvPrefix + "MIN_CHUNK_BYTES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.MinChunkBytes = n
		}
	}
	if v := os.Getenv(EnvPrefix + "FRAME_INTERVAL"); v != "" {
		cfg.FrameInterval = v
	}
	if v := os.Getenv(EnvPrefix + "VOICE"); v != "" {
		cfg.Voice = v
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.MicSampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATES"); v != "" {
		cfg.MicSampleRates = parseSampleRates(v)
	}
	if v := os.Getenv(EnvPrefix + "CAMERA_DEVICE"); v != "" {
		cfg.CameraDevice = v
	}
	if v := os.Getenv(EnvPrefix + "CHAT_MODEL"); v != "" {
		cfg.ChatModel = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.AssistantBaseURL == "" {
		warnings = append(warnings, "Assistant base URL not configured — wake-word checks, frame analysis, and speech are disabled. Set "+EnvPrefix+"ASSISTANT_BASE_URL.")
	}
	if _, err := time.ParseDuration(cfg.AckDelay); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid ack_delay %q — using default 1500ms.", cfg.AckDelay))
	}
	if _, err := time.ParseDuration(cfg.ChunkInterval); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid chunk_interval %q — using default 500ms.", cfg.ChunkInterval))
	}
	if _, err := time.ParseDuration(cfg.FrameInterval); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid frame_interval %q — using default 3s.", cfg.FrameInterval))
	}
	if cfg.FrameQuality <= 0 || cfg.FrameQuality > 1 {
		warnings = append(warnings, fmt.Sprintf("Invalid frame_quality %.2f — using default 0.8.", cfg.FrameQuality))
		cfg.FrameQuality = 0.8
	}

	if cfg.ChatModel != "assistant" {
		provider := strings.SplitN(cfg.ChatModel, "/", 2)[0]
		switch provider {
		case "openai":
			if cfg.OpenAIAPIKey == "" {
				warnings = append(warnings, "OpenAI API key not configured — assistant replies are disabled. Set "+EnvPrefix+"OPENAI_API_KEY.")
			}
		case "anthropic":
			if cfg.AnthropicAPIKey == "" {
				warnings = append(warnings, "Anthropic API key not configured — assistant replies are disabled. Set "+EnvPrefix+"ANTHROPIC_API_KEY.")
			}
		case "gemini":
			if cfg.GeminiAPIKey == "" {
				warnings = append(warnings, "Gemini API key not configured — assistant replies are disabled. Set "+EnvPrefix+"GEMINI_API_KEY.")
			}
		default:
			warnings = append(warnings, fmt.Sprintf("Unknown chat_model %q — expected \"assistant\" or provider/model_name.", cfg.ChatModel))
		}
	}

	return warnings
}

// ChatAPIKey returns the secret matching the configured chat provider.
func (c *Config) ChatAPIKey(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return ""
	}
}

func parseSampleRates(raw string) []int {
	parts := strings.Split(raw, ",")
	seen := make(map[int]struct{}, len(parts))
	result := make([]int, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		rate, err := strconv.Atoi(trimmed)
		if err != nil || rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}

	return result
}
