package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants
const (
	// DefaultDimensions is the vector width used when nothing else is configured.
	// 384 matches all-MiniLM-L6-v2 and its relatives.
	DefaultDimensions = 384

	// DefaultBatchSize is the default batch size for network embedding requests
	DefaultBatchSize = 32

	// DefaultTimeout is the default timeout for one embedding request
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retries for retryable failures
	DefaultMaxRetries = 2
)

// Embedder converts text into a fixed-width float vector.
// Implementations must be deterministic for identical input.
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// normalizeVector scales v to unit length. Zero vectors are returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// toFloat32 converts API float64 vectors to float32.
func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
