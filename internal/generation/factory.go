package generation

import (
	"context"
	"fmt"
	"os"

	"radreport/internal/config"
)

// Provider identifies a generation backend.
type Provider string

const (
	// ProviderGemini uses the Gemini REST API over plain HTTP.
	ProviderGemini Provider = "gemini"
	// ProviderGenAI uses the official google.golang.org/genai SDK.
	ProviderGenAI Provider = "genai"
)

// NewClient builds a retrying generation client for the configured provider.
// Backends are interchangeable implementations behind the same contract;
// the choice is configuration, not code.
func NewClient(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, &ConfigError{Reason: "no API key found; set GEMINI_API_KEY or api_key in the config file"}
	}

	var b backend
	switch Provider(cfg.Provider) {
	case ProviderGemini, "":
		gb, err := newGeminiBackend(GeminiConfig{
			APIKey:  apiKey,
			Model:   cfg.Model,
			Timeout: cfg.RequestTimeout,
		})
		if err != nil {
			return nil, err
		}
		b = gb
	case ProviderGenAI:
		sb, err := newSDKBackend(ctx, SDKConfig{
			APIKey: apiKey,
			Model:  cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		b = sb
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown provider: %s (valid: gemini, genai)", cfg.Provider)}
	}

	base := []Option{
		WithMaxAttempts(cfg.MaxRetries),
		WithBackoff(Backoff{
			Base:       cfg.RetryDelay,
			Multiplier: 2,
			Max:        30 * cfg.RetryDelay,
			Jitter:     0.1,
		}),
	}
	return newClient(b, append(base, opts...)...), nil
}
