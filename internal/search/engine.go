package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/amandocs/internal/embed"
	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine implements Searcher over a DocumentStore and an Embedder.
type Engine struct {
	store        store.DocumentStore
	embedder     embed.Embedder
	defaultLimit int
	oversample   int
	retry        amerrors.RetryConfig
}

// Ensure Engine implements Searcher.
var _ Searcher = (*Engine)(nil)

// Option configures the search engine.
type Option func(*Engine)

// WithDefaultLimit sets the limit used when a caller passes limit < 1.
func WithDefaultLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.defaultLimit = n
		}
	}
}

// WithOversample sets how many store hits are fetched per requested result.
func WithOversample(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.oversample = n
		}
	}
}

// WithRetry sets the retry policy for query embedding.
func WithRetry(cfg amerrors.RetryConfig) Option {
	return func(e *Engine) {
		e.retry = cfg
	}
}

// New creates a search engine. Both dependencies are required.
func New(st store.DocumentStore, embedder embed.Embedder, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: store", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder", ErrNilDependency)
	}

	e := &Engine{
		store:        st,
		embedder:     embedder,
		defaultLimit: DefaultLimit,
		oversample:   DefaultOversample,
		retry:        amerrors.EmbeddingRetryConfig(embed.DefaultMaxRetries),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search embeds query and returns at most limit results, one per file,
// sorted by ascending distance. Fewer distinct files than limit is not an
// error, and an empty or uninitialized store yields no results. Limits
// above MaxLimit are lowered to it.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, amerrors.New(amerrors.ErrCodeQueryEmpty, "search query is empty", nil).
			WithSuggestion("Provide some text to search for")
	}
	if limit < 1 {
		limit = e.defaultLimit
	}
	limit = min(limit, MaxLimit)

	start := time.Now()

	vec, err := amerrors.RetryWithResult(ctx, e.retry, func() ([]float32, error) {
		v, err := e.embedder.Embed(ctx, query)
		if err != nil {
			if _, ok := amerrors.As(err); ok {
				return nil, err
			}
			return nil, amerrors.EmbeddingError(fmt.Sprintf("query embedding failed: %v", err), err)
		}
		return v, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	hits, err := e.store.Search(ctx, vec, limit*e.oversample)
	if err != nil {
		return nil, err
	}

	results := rank(dedupByPath(hits), limit)

	slog.Debug("search_complete",
		slog.Int("limit", limit),
		slog.Int("fetched", len(hits)),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	return results, nil
}

// dedupByPath keeps the closest hit for each file. On equal distance the
// first hit seen wins. The returned order is first-seen order.
func dedupByPath(hits []*store.Hit) []*store.Hit {
	best := make(map[string]int, len(hits))
	out := make([]*store.Hit, 0, len(hits))
	for _, h := range hits {
		if h == nil || h.Record == nil {
			continue
		}
		i, seen := best[h.Record.FilePath]
		if !seen {
			best[h.Record.FilePath] = len(out)
			out = append(out, h)
			continue
		}
		if h.Distance < out[i].Distance {
			out[i] = h
		}
	}
	return out
}

// rank stable-sorts hits by distance and converts the first limit of them.
func rank(hits []*store.Hit, limit int) []Result {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			FilePath: h.Record.FilePath,
			Preview:  h.Record.Preview,
			Distance: h.Distance,
			Score:    h.Score,
			Metadata: h.Record.Metadata,
		})
	}
	return results
}
