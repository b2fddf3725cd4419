package embed

import (
	"context"
	"errors"
	"time"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

// BreakerEmbedder fails fast once a network embedder has failed repeatedly,
// instead of letting every file in a batch wait out its own timeout.
type BreakerEmbedder struct {
	inner Embedder
	cb    *amerrors.CircuitBreaker
}

var _ Embedder = (*BreakerEmbedder)(nil)

// NewBreakerEmbedder wraps inner with a circuit breaker that opens after
// maxFailures consecutive failures and probes again after resetTimeout.
func NewBreakerEmbedder(inner Embedder, maxFailures int, resetTimeout time.Duration) *BreakerEmbedder {
	return &BreakerEmbedder{
		inner: inner,
		cb: amerrors.NewCircuitBreaker(inner.ModelName(),
			amerrors.WithMaxFailures(maxFailures),
			amerrors.WithResetTimeout(resetTimeout)),
	}
}

// Embed embeds through the breaker.
func (b *BreakerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := amerrors.CircuitExecute(b.cb, func() ([]float32, error) {
		return b.inner.Embed(ctx, text)
	})
	return vec, b.mapErr(err)
}

// EmbedBatch embeds through the breaker.
func (b *BreakerEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := amerrors.CircuitExecute(b.cb, func() ([][]float32, error) {
		return b.inner.EmbedBatch(ctx, texts)
	})
	return vecs, b.mapErr(err)
}

// mapErr turns an open circuit into a non-retryable embedding error.
func (b *BreakerEmbedder) mapErr(err error) error {
	if err == nil || !errors.Is(err, amerrors.ErrCircuitOpen) {
		return err
	}
	de := amerrors.EmbeddingError("embedding service unavailable (circuit open after repeated failures)", err)
	de.Retryable = false
	return de
}

// State returns the breaker state.
func (b *BreakerEmbedder) State() amerrors.State {
	return b.cb.State()
}

// Dimensions returns the inner embedder's dimension.
func (b *BreakerEmbedder) Dimensions() int { return b.inner.Dimensions() }

// ModelName returns the inner model identifier.
func (b *BreakerEmbedder) ModelName() string { return b.inner.ModelName() }

// Available is false while the circuit is open.
func (b *BreakerEmbedder) Available(ctx context.Context) bool {
	return b.cb.State() != amerrors.StateOpen && b.inner.Available(ctx)
}

// Close closes the inner embedder.
func (b *BreakerEmbedder) Close() error { return b.inner.Close() }
