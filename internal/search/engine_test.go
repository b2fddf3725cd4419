package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amandocs/internal/embed"
	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/extract"
	"github.com/Aman-CERP/amandocs/internal/hash"
	"github.com/Aman-CERP/amandocs/internal/index"
	"github.com/Aman-CERP/amandocs/internal/store"
)

// MockStore is a DocumentStore whose Search is scripted.
type MockStore struct {
	SearchFn  func(ctx context.Context, query []float32, limit int) ([]*store.Hit, error)
	lastLimit int
}

func (m *MockStore) Upsert(context.Context, *store.Record) error                 { return nil }
func (m *MockStore) ReplaceByPath(context.Context, *store.Record) (int, error)   { return 0, nil }
func (m *MockStore) DeleteByPath(context.Context, string) (int, error)           { return 0, nil }
func (m *MockStore) FindByPath(context.Context, string) ([]*store.Record, error) { return nil, nil }
func (m *MockStore) Count(context.Context) (int, error)                          { return 0, nil }
func (m *MockStore) List(context.Context) ([]*store.FileSummary, error)          { return nil, nil }
func (m *MockStore) Reset(context.Context) error                                 { return nil }
func (m *MockStore) Close() error                                                { return nil }

func (m *MockStore) Search(ctx context.Context, query []float32, limit int) ([]*store.Hit, error) {
	m.lastLimit = limit
	if m.SearchFn != nil {
		return m.SearchFn(ctx, query, limit)
	}
	return nil, nil
}

// MockEmbedder returns a fixed vector unless EmbedFn is set.
type MockEmbedder struct {
	EmbedFn func(ctx context.Context, text string) ([]float32, error)
	calls   atomic.Int64
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.EmbedFn != nil {
		return m.EmbedFn(ctx, text)
	}
	return []float32{1, 0, 0}, nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *MockEmbedder) Dimensions() int                  { return 3 }
func (m *MockEmbedder) ModelName() string                { return "mock" }
func (m *MockEmbedder) Available(_ context.Context) bool { return true }
func (m *MockEmbedder) Close() error                     { return nil }

func hit(path string, distance float32) *store.Hit {
	return &store.Hit{
		Record:   &store.Record{FilePath: path, Preview: "preview of " + path},
		Distance: distance,
		Score:    1 - distance/2,
	}
}

func fixedHits(hits ...*store.Hit) func(context.Context, []float32, int) ([]*store.Hit, error) {
	return func(_ context.Context, _ []float32, limit int) ([]*store.Hit, error) {
		if len(hits) > limit {
			return hits[:limit], nil
		}
		return hits, nil
	}
}

func newEngine(t *testing.T, st store.DocumentStore, emb embed.Embedder, opts ...Option) *Engine {
	t.Helper()
	e, err := New(st, emb, opts...)
	require.NoError(t, err)
	return e
}

func TestNew_NilDependencies(t *testing.T) {
	_, err := New(nil, &MockEmbedder{})
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = New(&MockStore{}, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestSearch_DedupKeepsMinimumDistance(t *testing.T) {
	// Given: three hits for one path at distances 0.9, 0.3, 0.5
	st := &MockStore{SearchFn: fixedHits(hit("a.txt", 0.9), hit("a.txt", 0.3), hit("a.txt", 0.5))}
	e := newEngine(t, st, &MockEmbedder{})

	// When: searching
	results, err := e.Search(context.Background(), "query", 10)

	// Then: a single result with the smallest distance remains
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.txt", results[0].FilePath)
	assert.InDelta(t, 0.3, results[0].Distance, 1e-6)
}

func TestSearch_DedupTieKeepsFirst(t *testing.T) {
	first := hit("a.txt", 0.4)
	first.Record.Preview = "first"
	second := hit("a.txt", 0.4)
	second.Record.Preview = "second"
	e := newEngine(t, &MockStore{SearchFn: fixedHits(first, second)}, &MockEmbedder{})

	results, err := e.Search(context.Background(), "query", 5)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "first", results[0].Preview)
}

func TestSearch_OrderingAndTruncation(t *testing.T) {
	// Given: hits for several files in arbitrary order
	st := &MockStore{SearchFn: fixedHits(
		hit("c.txt", 0.7), hit("a.txt", 0.2), hit("b.txt", 0.5),
		hit("a.txt", 0.1), hit("d.txt", 0.9), hit("b.txt", 0.6),
	)}
	e := newEngine(t, st, &MockEmbedder{})

	// When: asking for two results
	results, err := e.Search(context.Background(), "query", 2)

	// Then: the two closest distinct files come back in order
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a.txt", results[0].FilePath)
	assert.InDelta(t, 0.1, results[0].Distance, 1e-6)
	assert.Equal(t, "b.txt", results[1].FilePath)
	assert.Equal(t, 6, st.lastLimit, "limit times oversample")
}

func TestSearch_ResultsNonDecreasing(t *testing.T) {
	st := &MockStore{SearchFn: fixedHits(
		hit("e", 0.8), hit("d", 0.4), hit("c", 0.4), hit("b", 0.1), hit("a", 0.6),
	)}
	e := newEngine(t, st, &MockEmbedder{})

	results, err := e.Search(context.Background(), "query", 10)

	require.NoError(t, err)
	require.Len(t, results, 5)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
	assert.Equal(t, "d", results[1].FilePath, "stable sort keeps store order on ties")
	assert.Equal(t, "c", results[2].FilePath)
}

func TestSearch_DegenerateFetch(t *testing.T) {
	// Given: only two files exist
	st := &MockStore{SearchFn: fixedHits(hit("a.txt", 0.2), hit("b.txt", 0.4))}
	e := newEngine(t, st, &MockEmbedder{})

	// When: asking for ten
	results, err := e.Search(context.Background(), "query", 10)

	// Then: both come back without error
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_EmptyStore(t *testing.T) {
	e := newEngine(t, &MockStore{}, &MockEmbedder{})

	results, err := e.Search(context.Background(), "anything", 3)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_EmptyQuery(t *testing.T) {
	emb := &MockEmbedder{}
	e := newEngine(t, &MockStore{}, emb)

	for _, q := range []string{"", "   \t"} {
		_, err := e.Search(context.Background(), q, 3)
		assert.Equal(t, amerrors.ErrCodeQueryEmpty, amerrors.GetCode(err))
	}
	assert.Equal(t, int64(0), emb.calls.Load())
}

func TestSearch_LimitBelowOneUsesDefault(t *testing.T) {
	st := &MockStore{}
	e := newEngine(t, st, &MockEmbedder{}, WithDefaultLimit(4), WithOversample(2))

	_, err := e.Search(context.Background(), "query", 0)

	require.NoError(t, err)
	assert.Equal(t, 8, st.lastLimit)

	_, err = e.Search(context.Background(), "query", -3)
	require.NoError(t, err)
	assert.Equal(t, 8, st.lastLimit)
}

func TestSearch_HugeLimitIsCapped(t *testing.T) {
	// Given: a limit whose oversampled fetch would overflow int
	st := &MockStore{SearchFn: fixedHits(hit("a.txt", 0.2))}
	e := newEngine(t, st, &MockEmbedder{})

	// When: searching with it
	results, err := e.Search(context.Background(), "query", 3074457345618258603)

	// Then: the fetch is capped and results still come back
	require.NoError(t, err)
	assert.Equal(t, MaxLimit*DefaultOversample, st.lastLimit)
	assert.Len(t, results, 1)
}

func TestSearch_RetriesQueryEmbedding(t *testing.T) {
	// Given: an embedder that fails once
	var attempts atomic.Int64
	emb := &MockEmbedder{EmbedFn: func(_ context.Context, _ string) ([]float32, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("timeout")
		}
		return []float32{0, 1, 0}, nil
	}}
	st := &MockStore{SearchFn: fixedHits(hit("a.txt", 0.1))}
	e := newEngine(t, st, emb, WithRetry(amerrors.RetryConfig{
		MaxRetries: 2, InitialDelay: time.Millisecond, Multiplier: 1, RetryIf: amerrors.IsRetryable,
	}))

	// When: searching
	results, err := e.Search(context.Background(), "query", 1)

	// Then: the retry succeeds
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int64(2), attempts.Load())
}

func TestSearch_EmbeddingFailure(t *testing.T) {
	emb := &MockEmbedder{EmbedFn: func(_ context.Context, _ string) ([]float32, error) {
		return nil, errors.New("down")
	}}
	e := newEngine(t, &MockStore{}, emb, WithRetry(amerrors.RetryConfig{
		MaxRetries: 1, InitialDelay: time.Millisecond, Multiplier: 1, RetryIf: amerrors.IsRetryable,
	}))

	_, err := e.Search(context.Background(), "query", 1)

	assert.Equal(t, amerrors.ErrCodeEmbeddingFailed, amerrors.GetCode(err))
	assert.Equal(t, int64(2), emb.calls.Load())
}

func TestSearch_StoreErrorPropagates(t *testing.T) {
	st := &MockStore{SearchFn: func(context.Context, []float32, int) ([]*store.Hit, error) {
		return nil, amerrors.New(amerrors.ErrCodeDimensionMismatch, "query has 3 dimensions, index has 384", nil)
	}}
	e := newEngine(t, st, &MockEmbedder{})

	_, err := e.Search(context.Background(), "query", 1)

	assert.Equal(t, amerrors.ErrCodeDimensionMismatch, amerrors.GetCode(err))
}

func TestSearch_ConcreteScenario(t *testing.T) {
	// Given: two documents indexed with the static embedder
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, ".amandocs"), store.DefaultConfig())
	require.NoError(t, err)
	defer st.Close()

	emb := embed.NewStaticEmbedder(embed.DefaultDimensions)
	h, err := hash.New(hash.AlgorithmSHA256)
	require.NoError(t, err)
	ix, err := index.New(st, emb, h)
	require.NoError(t, err)

	docs := map[string]string{
		"db.txt": "vector databases and embeddings",
		"ma.txt": "mergers and acquisitions",
	}
	for name, text := range docs {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
		_, err := ix.IndexFile(context.Background(), path, extract.Text)
		require.NoError(t, err)
	}

	e := newEngine(t, st, emb)

	// When: searching for "database technology"
	results, err := e.Search(context.Background(), "database technology", 5)

	// Then: the database document ranks above the finance one
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, filepath.Join(dir, "db.txt"), results[0].FilePath)
	assert.Equal(t, filepath.Join(dir, "ma.txt"), results[1].FilePath)
	assert.Less(t, results[0].Distance, results[1].Distance)
	assert.Equal(t, "vector databases and embeddings", results[0].Preview)
	assert.Equal(t, ".txt", results[0].Metadata[index.MetaExtension])
}
