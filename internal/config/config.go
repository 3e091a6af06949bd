// Package config loads application settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable for the server. Defaults match the values the
// widget was tuned with; all of them can be overridden via environment.
type Config struct {
	Environment string
	Port        string
	LogLevel    string

	// Completion service
	CompletionProvider string // "anthropic" or "gemini"
	AnthropicAPIKey    string
	AnthropicBaseURL   string
	ClaudeModel        string
	ClaudeMaxTokens    int
	GeminiAPIKey       string
	GeminiModel        string

	// Speech service
	SpeechProvider      string // "azure" or "google"
	AzureSpeechKey      string
	AzureSpeechRegion   string
	AzureSpeechLanguage string
	AzureSpeechVoice    string

	// Session store
	RedisURL   string
	SessionTTL time.Duration

	// Voice pipeline tunables
	SampleRate       int
	VADThreshold     float64
	PromptTimeout    time.Duration
	SegmentDebounce  time.Duration
	MaxAudioDuration time.Duration
	MaxAudioBytes    int64

	// Widget auth
	JWTSecret string
}

// Load reads configuration from the environment. A missing .env file is
// fine; explicit environment variables always win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		CompletionProvider: getEnv("COMPLETION_PROVIDER", "anthropic"),
		AnthropicAPIKey:    os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicBaseURL:   getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
		ClaudeModel:        getEnv("CLAUDE_MODEL", "claude-3-sonnet-20240229"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		SpeechProvider:      getEnv("SPEECH_PROVIDER", "azure"),
		AzureSpeechKey:      os.Getenv("AZURE_SPEECH_KEY"),
		AzureSpeechRegion:   os.Getenv("AZURE_SPEECH_REGION"),
		AzureSpeechLanguage: getEnv("AZURE_SPEECH_LANGUAGE", "en-US"),
		AzureSpeechVoice:    getEnv("AZURE_SPEECH_VOICE", "en-US-AriaNeural"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-key"),
	}

	var err error
	if cfg.ClaudeMaxTokens, err = getEnvInt("CLAUDE_MAX_TOKENS", 4000); err != nil {
		return nil, err
	}
	if cfg.SampleRate, err = getEnvInt("AUDIO_SAMPLE_RATE", 16000); err != nil {
		return nil, err
	}
	if cfg.VADThreshold, err = getEnvFloat("VAD_THRESHOLD", 30); err != nil {
		return nil, err
	}
	if cfg.PromptTimeout, err = getEnvDuration("SILENCE_PROMPT_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.SegmentDebounce, err = getEnvDuration("SEGMENT_DEBOUNCE", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxAudioDuration, err = getEnvDuration("MAX_AUDIO_DURATION", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getEnvDuration("SESSION_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	maxMB, err := getEnvInt("MAX_AUDIO_SIZE_MB", 10)
	if err != nil {
		return nil, err
	}
	cfg.MaxAudioBytes = int64(maxMB) * 1024 * 1024

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.CompletionProvider {
	case "anthropic", "gemini":
	default:
		return fmt.Errorf("unknown COMPLETION_PROVIDER %q", c.CompletionProvider)
	}
	switch c.SpeechProvider {
	case "azure", "google":
	default:
		return fmt.Errorf("unknown SPEECH_PROVIDER %q", c.SpeechProvider)
	}
	if c.PromptTimeout >= c.SegmentDebounce {
		// The help prompt has to fire before a pause is long enough to
		// submit a segment, otherwise the user never hears it.
		return fmt.Errorf("SILENCE_PROMPT_TIMEOUT (%s) must be shorter than SEGMENT_DEBOUNCE (%s)",
			c.PromptTimeout, c.SegmentDebounce)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
