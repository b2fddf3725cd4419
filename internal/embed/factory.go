package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses feature-hashing embeddings (offline, default)
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses a local Ollama server
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses the OpenAI embeddings API or a compatible server
	ProviderOpenAI ProviderType = "openai"
)

// Breaker settings for network providers.
const (
	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
)

// ParseProvider converts a provider string to ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "static":
		return ProviderStatic, nil
	case "ollama":
		return ProviderOllama, nil
	case "openai":
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q (use static, ollama or openai)", s)
	}
}

// Options selects and configures an embedder.
type Options struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Timeout    time.Duration

	OllamaHost    string
	OpenAIBaseURL string
	OpenAIAPIKey  string

	// CacheSize bounds the LRU embedding cache. Negative disables caching;
	// zero selects DefaultEmbeddingCacheSize.
	CacheSize int
}

// NewEmbedder builds the embedder described by opts.
// Network providers are wrapped in a circuit breaker; every provider is
// wrapped in an LRU cache unless CacheSize is negative. There is no silent
// fallback: an unreachable provider is an error.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	var (
		embedder Embedder
		err      error
	)

	switch opts.Provider {
	case ProviderStatic, "":
		embedder = NewStaticEmbedder(opts.Dimensions)

	case ProviderOllama:
		cfg := DefaultOllamaConfig()
		if opts.OllamaHost != "" {
			cfg.Host = opts.OllamaHost
		}
		if opts.Model != "" {
			cfg.Model = opts.Model
		}
		if opts.Timeout > 0 {
			cfg.Timeout = opts.Timeout
		}
		cfg.Dimensions = opts.Dimensions

		var ollama *OllamaEmbedder
		ollama, err = NewOllamaEmbedder(ctx, cfg)
		if err == nil {
			embedder = NewBreakerEmbedder(ollama, breakerMaxFailures, breakerResetTimeout)
		}

	case ProviderOpenAI:
		var oa *OpenAIEmbedder
		oa, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     opts.OpenAIAPIKey,
			BaseURL:    opts.OpenAIBaseURL,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
		})
		if err == nil {
			embedder = NewBreakerEmbedder(oa, breakerMaxFailures, breakerResetTimeout)
		}

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("%s embedder unavailable: %w", opts.Provider, err)
	}

	slog.Debug("embedder_created",
		slog.String("provider", string(opts.Provider)),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()),
		slog.Bool("cache", opts.CacheSize >= 0))

	if opts.CacheSize >= 0 {
		embedder = NewCachedEmbedder(embedder, opts.CacheSize)
	}
	return embedder, nil
}
