package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amandocs/internal/embed"
	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/extract"
	"github.com/Aman-CERP/amandocs/internal/hash"
	"github.com/Aman-CERP/amandocs/internal/store"
)

// MockEmbedder is a test double with overridable behavior.
type MockEmbedder struct {
	EmbedFn func(ctx context.Context, text string) ([]float32, error)
	Dims    int
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

func (m *MockEmbedder) Dimensions() int                  { return m.Dims }
func (m *MockEmbedder) ModelName() string                { return "mock" }
func (m *MockEmbedder) Available(_ context.Context) bool { return true }
func (m *MockEmbedder) Close() error                     { return nil }

type fixture struct {
	dir      string
	store    *store.SQLiteStore
	embedder embed.Embedder
	indexer  *Indexer
}

func newFixture(t *testing.T, embedder embed.Embedder, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, ".amandocs"), store.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h, err := hash.New(hash.AlgorithmSHA256)
	require.NoError(t, err)

	if embedder == nil {
		embedder = embed.NewStaticEmbedder(embed.DefaultDimensions)
	}
	opts = append([]Option{WithRetry(amerrors.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, Multiplier: 1, RetryIf: amerrors.IsRetryable})}, opts...)
	ix, err := New(st, embedder, h, opts...)
	require.NoError(t, err)

	return &fixture{dir: dir, store: st, embedder: embedder, indexer: ix}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.store.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestNew_RequiresCollaborators(t *testing.T) {
	h, _ := hash.New("")
	_, err := New(nil, embed.NewStaticEmbedder(8), h)
	assert.Error(t, err)
}

func TestIndexFile_Idempotent(t *testing.T) {
	// Given: an indexed file
	f := newFixture(t, nil)
	path := f.write(t, "notes.txt", "vector databases and embeddings")
	ctx := context.Background()

	first, err := f.indexer.IndexFile(ctx, path, extract.Text)
	require.NoError(t, err)

	// When: indexing it again unchanged
	second, err := f.indexer.IndexFile(ctx, path, extract.Text)

	// Then: nothing is written and the count stays at one
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, 1, f.count(t))
}

func TestIndexFile_ChangeDetection(t *testing.T) {
	// Given: an indexed file
	f := newFixture(t, nil)
	path := f.write(t, "notes.txt", "quarterly revenue report")
	ctx := context.Background()
	_, err := f.indexer.IndexFile(ctx, path, extract.Text)
	require.NoError(t, err)
	before, err := f.store.FindByPath(ctx, path)
	require.NoError(t, err)
	require.Len(t, before, 1)

	// When: the content changes and it is re-indexed
	f.write(t, "notes.txt", "kubernetes cluster autoscaling")
	indexed, err := f.indexer.IndexFile(ctx, path, extract.Text)

	// Then: one record remains, with a new hash and vector
	require.NoError(t, err)
	assert.True(t, indexed)
	after, err := f.store.FindByPath(ctx, path)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.NotEqual(t, before[0].FileHash, after[0].FileHash)
	assert.NotEqual(t, before[0].Vector, after[0].Vector)
	assert.Equal(t, "kubernetes cluster autoscaling", after[0].Preview)
	assert.Equal(t, 1, f.count(t))
}

func TestIndexFile_RecordContents(t *testing.T) {
	f := newFixture(t, nil, WithPreviewChars(5))
	path := f.write(t, "doc.md", "héllo world")

	_, err := f.indexer.IndexFile(context.Background(), path, extract.Text)
	require.NoError(t, err)

	recs, err := f.store.FindByPath(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "héllo", rec.Preview)
	assert.Equal(t, ".md", rec.Metadata[MetaExtension])
	assert.Equal(t, "12", rec.Metadata[MetaSize])
	assert.Equal(t, "sha256", rec.Metadata[MetaHashAlgo])
	assert.Equal(t, f.embedder.ModelName(), rec.Metadata[MetaEmbedder])
	assert.NotEmpty(t, rec.Metadata[MetaModTime])
	assert.Len(t, rec.Vector, embed.DefaultDimensions)
}

func TestIndexFile_ExtractionFailure_LeavesStoreUntouched(t *testing.T) {
	// Given: an indexed file and an extractor that now fails
	f := newFixture(t, nil)
	path := f.write(t, "doc.txt", "original text")
	ctx := context.Background()
	_, err := f.indexer.IndexFile(ctx, path, extract.Text)
	require.NoError(t, err)
	f.write(t, "doc.txt", "changed text")

	failing := func(p string) (string, error) { return "", errors.New("corrupt file") }

	// When: re-indexing
	indexed, err := f.indexer.IndexFile(ctx, path, failing)

	// Then: an extraction error is returned and the old record survives
	require.Error(t, err)
	assert.False(t, indexed)
	assert.Equal(t, amerrors.ErrCodeExtractionFailed, amerrors.GetCode(err))
	recs, err := f.store.FindByPath(ctx, path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "original text", recs[0].Preview)
}

func TestIndexFile_TypedExtractionErrorPassesThrough(t *testing.T) {
	f := newFixture(t, nil)
	path := f.write(t, "bad.json", "{")

	_, err := f.indexer.IndexFile(context.Background(), path, extract.JSON)

	de, ok := amerrors.As(err)
	require.True(t, ok)
	assert.Contains(t, de.Message, "Error reading JSON:")
	assert.Equal(t, 0, f.count(t))
}

func TestIndexFile_RetriesRetryableEmbeddingErrors(t *testing.T) {
	// Given: an embedder that fails twice, then succeeds
	var attempts atomic.Int64
	mock := &MockEmbedder{Dims: 3, EmbedFn: func(_ context.Context, _ string) ([]float32, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("connection reset")
		}
		return []float32{0, 1, 0}, nil
	}}
	f := newFixture(t, mock)
	path := f.write(t, "a.txt", "text")

	// When: indexing
	indexed, err := f.indexer.IndexFile(context.Background(), path, extract.Text)

	// Then: the third attempt is stored
	require.NoError(t, err)
	assert.True(t, indexed)
	assert.Equal(t, int64(3), attempts.Load())
	assert.Equal(t, 1, f.count(t))
}

func TestIndexFile_EmbeddingFailureGivesUp(t *testing.T) {
	mock := &MockEmbedder{Dims: 3, EmbedFn: func(_ context.Context, _ string) ([]float32, error) {
		return nil, errors.New("model crashed")
	}}
	f := newFixture(t, mock)
	path := f.write(t, "a.txt", "text")

	_, err := f.indexer.IndexFile(context.Background(), path, extract.Text)

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeEmbeddingFailed, amerrors.GetCode(err))
	assert.True(t, amerrors.IsRetryable(err))
	assert.Equal(t, int64(3), mock.calls.Load(), "initial attempt plus two retries")
	assert.Equal(t, 0, f.count(t))
}

func TestIndexFile_NonRetryableEmbeddingError(t *testing.T) {
	mock := &MockEmbedder{Dims: 3, EmbedFn: func(_ context.Context, _ string) ([]float32, error) {
		return nil, amerrors.ConfigError("model not installed", nil)
	}}
	f := newFixture(t, mock)
	path := f.write(t, "a.txt", "text")

	_, err := f.indexer.IndexFile(context.Background(), path, extract.Text)

	assert.Equal(t, amerrors.ErrCodeConfigInvalid, amerrors.GetCode(err))
	assert.Equal(t, int64(1), mock.calls.Load())
}

func TestIndexFile_EmptyTextIsStored(t *testing.T) {
	f := newFixture(t, nil)
	path := f.write(t, "blank.txt", "   \n")

	indexed, err := f.indexer.IndexFile(context.Background(), path, extract.Text)

	require.NoError(t, err)
	assert.True(t, indexed)
	assert.Equal(t, 1, f.count(t))
}

func TestIndexFile_FileRewrittenDuringExtraction_HashMatchesText(t *testing.T) {
	// Given: an extractor that rewrites the file once before reading it
	f := newFixture(t, nil)
	path := f.write(t, "doc.txt", "old content about cooking")
	var rewrites atomic.Int64
	extractFn := func(p string) (string, error) {
		if rewrites.Add(1) == 1 {
			require.NoError(t, os.WriteFile(p, []byte("new content about databases"), 0o644))
		}
		return extract.Text(p)
	}

	// When: indexing
	indexed, err := f.indexer.IndexFile(context.Background(), path, extractFn)

	// Then: the stored hash is the hash of the text that was embedded
	require.NoError(t, err)
	assert.True(t, indexed)
	assert.Equal(t, int64(2), rewrites.Load(), "extraction repeated after the change")

	records, err := f.store.FindByPath(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new content about databases", records[0].Preview)
	h, err := hash.New(hash.AlgorithmSHA256)
	require.NoError(t, err)
	assert.Equal(t, h.HashBytes([]byte("new content about databases")), records[0].FileHash)
	assert.Equal(t, "27", records[0].Metadata[MetaSize])
}

func TestIndexFile_FileKeepsChanging_FailsWithoutWriting(t *testing.T) {
	// Given: an extractor that rewrites the file on every read
	f := newFixture(t, nil)
	path := f.write(t, "busy.txt", "v0")
	var n atomic.Int64
	extractFn := func(p string) (string, error) {
		v := n.Add(1)
		require.NoError(t, os.WriteFile(p, []byte(fmt.Sprintf("v%d", v)), 0o644))
		return extract.Text(p)
	}

	// When: indexing
	indexed, err := f.indexer.IndexFile(context.Background(), path, extractFn)

	// Then: it gives up with a per-file error and stores nothing
	require.Error(t, err)
	assert.False(t, indexed)
	assert.Equal(t, amerrors.ErrCodeIndexFailed, amerrors.GetCode(err))
	assert.False(t, amerrors.IsFatal(err))
	assert.Equal(t, int64(maxReadAttempts), n.Load())
	assert.Equal(t, 0, f.count(t))
}

func TestIndexFile_MissingFile(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.indexer.IndexFile(context.Background(), filepath.Join(f.dir, "gone.txt"), extract.Text)

	assert.Equal(t, amerrors.ErrCodeFileNotFound, amerrors.GetCode(err))
}

func TestIndexFile_CancelledContext(t *testing.T) {
	// Given: an embedder that cancels the context mid-call
	ctx, cancel := context.WithCancel(context.Background())
	mock := &MockEmbedder{Dims: 3, EmbedFn: func(_ context.Context, _ string) ([]float32, error) {
		cancel()
		return []float32{1, 0, 0}, nil
	}}
	f := newFixture(t, mock)
	path := f.write(t, "a.txt", "text")

	// When: indexing
	_, err := f.indexer.IndexFile(ctx, path, extract.Text)

	// Then: nothing is committed
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.count(t))
}

func TestIndexFile_DimensionMismatchRejected(t *testing.T) {
	mock := &MockEmbedder{Dims: 3}
	f := newFixture(t, mock)
	ctx := context.Background()
	_, err := f.indexer.IndexFile(ctx, f.write(t, "a.txt", "a"), extract.Text)
	require.NoError(t, err)

	mock.EmbedFn = func(_ context.Context, _ string) ([]float32, error) { return []float32{1, 0}, nil }
	_, err = f.indexer.IndexFile(ctx, f.write(t, "b.txt", "b"), extract.Text)

	assert.Equal(t, amerrors.ErrCodeDimensionMismatch, amerrors.GetCode(err))
	assert.Equal(t, 1, f.count(t))
}

func TestIndexFile_SamePathSerialized(t *testing.T) {
	// Given: concurrent indexing of one path
	f := newFixture(t, nil)
	path := f.write(t, "a.txt", "shared content")

	var wg sync.WaitGroup
	var indexed atomic.Int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.indexer.IndexFile(context.Background(), path, extract.Text)
			assert.NoError(t, err)
			if ok {
				indexed.Add(1)
			}
		}()
	}
	wg.Wait()

	// Then: exactly one call wrote, the rest saw an unchanged file
	assert.Equal(t, int64(1), indexed.Load())
	assert.Equal(t, 1, f.count(t))
	assert.Equal(t, 0, f.indexer.locks.len())
}

func TestDeleteFile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	path := f.write(t, "a.txt", "text")
	_, err := f.indexer.IndexFile(ctx, path, extract.Text)
	require.NoError(t, err)

	n, err := f.indexer.DeleteFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, f.count(t))

	n, err = f.indexer.DeleteFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPrune_RemovesVanishedFiles(t *testing.T) {
	// Given: two indexed files, one of which is then removed
	f := newFixture(t, nil)
	ctx := context.Background()
	keep := f.write(t, "docs/keep.txt", "keep me")
	gone := f.write(t, "docs/gone.txt", "remove me")
	for _, p := range []string{keep, gone} {
		_, err := f.indexer.IndexFile(ctx, p, extract.Text)
		require.NoError(t, err)
	}
	require.NoError(t, os.Remove(gone))

	// When: pruning the folder
	pruned, err := f.indexer.Prune(ctx, filepath.Join(f.dir, "docs"))

	// Then: only the vanished file's record is deleted
	require.NoError(t, err)
	assert.Equal(t, []string{gone}, pruned)
	assert.Equal(t, 1, f.count(t))
}

func TestPrune_IgnoresOtherRoots(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	path := f.write(t, "a/x.txt", "x")
	_, err := f.indexer.IndexFile(ctx, path, extract.Text)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	pruned, err := f.indexer.Prune(ctx, filepath.Join(f.dir, "b"))

	require.NoError(t, err)
	assert.Empty(t, pruned)
	assert.Equal(t, 1, f.count(t))
}

func TestConcreteScenario_StaticEmbedderRanking(t *testing.T) {
	// Given: two documents indexed with the static embedder
	f := newFixture(t, nil)
	ctx := context.Background()
	db := f.write(t, "db.txt", "vector databases and embeddings")
	ma := f.write(t, "ma.txt", "mergers and acquisitions")
	for _, p := range []string{db, ma} {
		_, err := f.indexer.IndexFile(ctx, p, extract.Text)
		require.NoError(t, err)
	}

	// When: searching for "database technology"
	q, err := f.embedder.Embed(ctx, "database technology")
	require.NoError(t, err)
	hits, err := f.store.Search(ctx, q, 2)

	// Then: the database document ranks first
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, db, hits[0].Record.FilePath)
	assert.Equal(t, ma, hits[1].Record.FilePath)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 0))
}
