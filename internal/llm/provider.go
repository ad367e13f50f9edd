package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nugget/minimcp/internal/config"
	"github.com/nugget/minimcp/internal/httpkit"
)

// apiKeyEnv lists the variables consulted, in order, when the config
// carries no api_key.
var apiKeyEnv = map[string][]string{
	config.ProviderOpenAI:    {"OPENAI_API_KEY", "DEEPSEEK_API_KEY"},
	config.ProviderAnthropic: {"ANTHROPIC_API_KEY"},
	config.ProviderGemini:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// New builds the Client selected by cfg.Provider. Clients that hold a
// connection (gemini) also implement io.Closer.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (Client, error) {
	opts := Options{
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
		HTTPClient: httpkit.NewClient(
			httpkit.WithStreaming(),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		),
		Logger: logger,
	}
	if opts.APIKey == "" {
		opts.APIKey = envKey(cfg.Provider)
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(opts), nil
	case config.ProviderAnthropic:
		return NewAnthropic(opts), nil
	case config.ProviderOllama:
		if opts.BaseURL == "" {
			opts.BaseURL = os.Getenv("OLLAMA_HOST")
		}
		return NewOllama(opts)
	case config.ProviderGemini:
		return NewGemini(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func envKey(provider string) string {
	for _, name := range apiKeyEnv[provider] {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
