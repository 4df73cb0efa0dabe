package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultTimeout = 45 * time.Second

// Config selects and configures a provider.
type Config struct {
	// Provider is openai, anthropic, gemini or mock. When empty the first
	// provider with a key wins, in that order, falling back to mock.
	Provider string
	Model    string

	OpenAIKey        string
	OpenAIBaseURL    string
	AnthropicKey     string
	AnthropicBaseURL string
	GoogleKey        string

	Timeout time.Duration
	Logger  *zap.Logger
}

// New returns the configured provider. A named provider without a key falls
// back to auto-detection.
func New(ctx context.Context, cfg Config) (Client, error) {
	lg := cfg.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	lg = lg.Named("llm")

	prov := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch prov {
	case "mock":
		return &MockClient{}, nil
	case "openai":
		if cfg.OpenAIKey != "" {
			return newOpenAI(cfg, lg), nil
		}
	case "anthropic":
		if cfg.AnthropicKey != "" {
			return NewAnthropic(cfg.AnthropicKey, cfg.Model, cfg.AnthropicBaseURL)
		}
	case "gemini":
		if cfg.GoogleKey != "" {
			return NewGemini(ctx, cfg.GoogleKey, cfg.Model)
		}
	}
	if prov != "" {
		lg.Warn("provider has no api key, detecting", zap.String("provider", prov))
		// the model name belonged to the requested provider
		cfg.Model = ""
	}

	switch {
	case cfg.OpenAIKey != "":
		return newOpenAI(cfg, lg), nil
	case cfg.AnthropicKey != "":
		return NewAnthropic(cfg.AnthropicKey, cfg.Model, cfg.AnthropicBaseURL)
	case cfg.GoogleKey != "":
		return NewGemini(ctx, cfg.GoogleKey, cfg.Model)
	}
	lg.Info("no provider configured, using mock")
	return &MockClient{}, nil
}

func newOpenAI(cfg Config, lg *zap.Logger) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OpenAIClient{
		APIKey:     cfg.OpenAIKey,
		Model:      modelOr(cfg.Model, "gpt-4o-mini"),
		BaseURL:    cfg.OpenAIBaseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     lg,
	}
}

func modelOr(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
