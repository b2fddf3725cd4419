package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

const (
	// DefaultOpenAIModel is the default OpenAI embedding model.
	DefaultOpenAIModel = "text-embedding-3-small"

	openAIMaxBatch = 2048
)

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	// APIKey authenticates requests. Required for api.openai.com.
	APIKey string

	// BaseURL selects an OpenAI-compatible endpoint (empty = api.openai.com).
	BaseURL string

	// Model is the embedding model (default: text-embedding-3-small)
	Model string

	// Dimensions requests a reduced width from models that support it.
	Dimensions int

	// BatchSize caps inputs per request (default: 32, max 2048)
	BatchSize int

	// HTTPClient overrides the transport (for testing)
	HTTPClient *http.Client
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API
// or any server speaking the same protocol.
type OpenAIEmbedder struct {
	client *openai.Client
	config OpenAIConfig
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder. Retries are disabled in the
// client; callers retry on amerrors.IsRetryable.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	cfg.BatchSize = min(cfg.BatchSize, openAIMaxBatch)
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, amerrors.ConfigError("openai embedder requires an API key", nil).
			WithSuggestion("Set OPENAI_API_KEY or embeddings.openai_api_key")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)

	return &OpenAIEmbedder{client: &client, config: cfg}, nil
}

// Embed returns the embedding for a single text.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch splits texts into BatchSize requests.
// Whitespace-only texts get a zero vector; the API rejects empty input.
func (o *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var idx []int
	var pending []string
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			results[i] = make([]float32, o.config.Dimensions)
			continue
		}
		idx = append(idx, i)
		pending = append(pending, t)
	}

	for start := 0; start < len(pending); start += o.config.BatchSize {
		end := min(start+o.config.BatchSize, len(pending))
		vecs, err := o.callAPI(ctx, pending[start:end])
		if err != nil {
			return nil, err
		}
		for j, v := range vecs {
			results[idx[start+j]] = v
		}
	}
	return results, nil
}

func (o *OpenAIEmbedder) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model:          o.config.Model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions:     openai.Int(int64(o.config.Dimensions)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(ctx, err)
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= int64(len(texts)) {
			return nil, amerrors.EmbeddingError(
				fmt.Sprintf("unexpected embedding index %d for batch size %d", item.Index, len(texts)), nil)
		}
		vecs[item.Index] = toFloat32(item.Embedding)
	}

	for i, v := range vecs {
		if v == nil {
			return nil, amerrors.EmbeddingError(fmt.Sprintf("missing embedding for input %d", i), nil)
		}
		if len(v) != o.config.Dimensions {
			return nil, amerrors.New(amerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("model returned %d dimensions, expected %d", len(v), o.config.Dimensions), nil)
		}
	}
	return vecs, nil
}

// classifyOpenAIError keeps 429 and 5xx retryable and everything else terminal.
func classifyOpenAIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		de := amerrors.EmbeddingError(fmt.Sprintf("openai embeddings failed with status %d", apiErr.StatusCode), err)
		if apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests {
			de.Retryable = false
		}
		return de
	}

	return amerrors.New(amerrors.ErrCodeNetworkUnavailable, "cannot reach openai embeddings endpoint", err)
}

// Dimensions returns the configured vector width.
func (o *OpenAIEmbedder) Dimensions() int {
	return o.config.Dimensions
}

// ModelName returns the model identifier.
func (o *OpenAIEmbedder) ModelName() string {
	return o.config.Model
}

// Available reports whether the embedder is configured. No request is made.
func (o *OpenAIEmbedder) Available(_ context.Context) bool {
	return o.client != nil
}

// Close is a no-op; the HTTP client is shared.
func (o *OpenAIEmbedder) Close() error {
	return nil
}
