package store

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

func openTestStore(t *testing.T, cfg Config) (*SQLiteStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func rec(path string, vec ...float32) *Record {
	return &Record{
		FilePath: path,
		FileHash: "hash-" + path,
		Preview:  "preview of " + path,
		Vector:   vec,
	}
}

func TestSQLiteStore_Uninitialized_IsEmptyNotError(t *testing.T) {
	// Given: a freshly opened store with no writes
	s, dir := openTestStore(t, DefaultConfig())
	ctx := context.Background()

	// When: reading from it
	count, errCount := s.Count(ctx)
	hits, errSearch := s.Search(ctx, []float32{1, 0, 0}, 5)
	removed, errDelete := s.DeleteByPath(ctx, "missing.txt")
	list, errList := s.List(ctx)
	found, errFind := s.FindByPath(ctx, "missing.txt")

	// Then: every read is empty and nothing fails
	require.NoError(t, errCount)
	require.NoError(t, errSearch)
	require.NoError(t, errDelete)
	require.NoError(t, errList)
	require.NoError(t, errFind)
	assert.Equal(t, 0, count)
	assert.Empty(t, hits)
	assert.Equal(t, 0, removed)
	assert.Empty(t, list)
	assert.Empty(t, found)
	assert.FileExists(t, filepath.Join(dir, DatabaseFile))
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	// Given: a store with a few records
	s, _ := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, rec("a.txt", 1, 0, 0)))
	require.NoError(t, s.Upsert(ctx, rec("b.txt", 0, 1, 0)))
	require.NoError(t, s.Upsert(ctx, rec("c.txt", 0.7, 0.7, 0)))

	// When: searching with a stored vector
	hits, err := s.Search(ctx, []float32{0, 1, 0}, 3)

	// Then: that record comes first with ~zero distance
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "b.txt", hits[0].Record.FilePath)
	assert.Less(t, hits[0].Distance, float32(1e-5))
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.Equal(t, "preview of b.txt", hits[0].Record.Preview)
	assert.NotEmpty(t, hits[0].Record.ID)
}

func TestSQLiteStore_RoundTrip_ThousandRecords(t *testing.T) {
	// Given: a store with 1000 random 64-dimension vectors
	s, _ := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	r := rand.New(rand.NewPCG(42, 1))
	vecs := make([][]float32, 1000)
	for i := range vecs {
		vecs[i] = randomVector(r, 64)
		require.NoError(t, s.Upsert(ctx, rec(fmt.Sprintf("doc%04d.txt", i), vecs[i]...)))
	}

	// When/Then: every stored vector finds its own record first
	for i, vec := range vecs {
		hits, err := s.Search(ctx, vec, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, fmt.Sprintf("doc%04d.txt", i), hits[0].Record.FilePath)
		assert.Less(t, hits[0].Distance, float32(1e-5))
	}
}

func TestSQLiteStore_Search_OrderedAscending(t *testing.T) {
	s, _ := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		angle := float64(i) * math.Pi / 40
		require.NoError(t, s.Upsert(ctx, rec(fmt.Sprintf("doc%02d.txt", i),
			float32(math.Cos(angle)), float32(math.Sin(angle)), 0)))
	}

	hits, err := s.Search(ctx, []float32{1, 0, 0}, 10)

	require.NoError(t, err)
	require.Len(t, hits, 10)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
	}
	assert.Equal(t, "doc00.txt", hits[0].Record.FilePath)
}

func TestSQLiteStore_Search_LimitBelowOne(t *testing.T) {
	s, _ := openTestStore(t, DefaultConfig())
	require.NoError(t, s.Upsert(context.Background(), rec("a.txt", 1, 0)))

	hits, err := s.Search(context.Background(), []float32{1, 0}, 0)

	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSQLiteStore_DeleteByPath(t *testing.T) {
	// Given: two records for one path and one for another
	s, _ := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, rec("a.txt", 1, 0)))
	require.NoError(t, s.Upsert(ctx, rec("a.txt", 0.9, 0.1)))
	require.NoError(t, s.Upsert(ctx, rec("b.txt", 0, 1)))
	_, err := s.Search(ctx, []float32{1, 0}, 1) // build the graph first
	require.NoError(t, err)

	// When: deleting the path
	removed, err := s.DeleteByPath(ctx, "a.txt")

	// Then: its records are gone from count and search
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hits, err := s.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "a.txt", h.Record.FilePath)
	}

	again, err := s.DeleteByPath(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 0, again)
}

func TestSQLiteStore_ReplaceByPath_KeepsOneRecord(t *testing.T) {
	// Given: an indexed path
	s, _ := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, rec("a.txt", 1, 0)))
	_, err := s.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)

	// When: replacing it with a new version
	updated := rec("a.txt", 0, 1)
	updated.FileHash = "v2"
	removed, err := s.ReplaceByPath(ctx, updated)

	// Then: exactly the new record remains and search sees it
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	found, err := s.FindByPath(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "v2", found[0].FileHash)
	assert.Equal(t, []float32{0, 1}, found[0].Vector)

	hits, err := s.Search(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "v2", hits[0].Record.FileHash)
}

func TestSQLiteStore_ManyReplacements_CompactsGraph(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExactSearchLimit = -1
	s, _ := openTestStore(t, cfg)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, rec("a.txt", 1, 0)))
	_, err := s.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		_, err := s.ReplaceByPath(ctx, rec("a.txt", 1, float32(i)/100))
		require.NoError(t, err)
	}

	hits, err := s.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.Equal(t, 1, s.vectors.graph.Len(), "orphans dropped by rebuild")
}

func TestSQLiteStore_DimensionMismatch(t *testing.T) {
	// Given: a store whose width was pinned by the first write
	s, _ := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, rec("a.txt", 1, 0, 0)))

	// When: writing and searching with another width
	errWrite := s.Upsert(ctx, rec("b.txt", 1, 0))
	_, errSearch := s.Search(ctx, []float32{1, 0}, 1)

	// Then: both are rejected with the mismatch code
	assert.Equal(t, amerrors.ErrCodeDimensionMismatch, amerrors.GetCode(errWrite))
	assert.Equal(t, amerrors.ErrCodeDimensionMismatch, amerrors.GetCode(errSearch))
	count, _ := s.Count(ctx)
	assert.Equal(t, 1, count)
	assert.Equal(t, 3, s.Dimensions())
}

func TestSQLiteStore_ConfiguredDimensions(t *testing.T) {
	s, _ := openTestStore(t, Config{Dimensions: 4})

	err := s.Upsert(context.Background(), rec("a.txt", 1, 0))

	assert.Equal(t, amerrors.ErrCodeDimensionMismatch, amerrors.GetCode(err))
}

func TestSQLiteStore_Validation(t *testing.T) {
	s, _ := openTestStore(t, DefaultConfig())
	ctx := context.Background()

	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(s.Upsert(ctx, rec("", 1))))
	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(s.Upsert(ctx, rec("a.txt"))))
	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(s.Upsert(ctx, nil)))
}

func TestSQLiteStore_ZeroVector_NoNaN(t *testing.T) {
	s, _ := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, rec("empty.txt", 0, 0, 0)))
	require.NoError(t, s.Upsert(ctx, rec("full.txt", 1, 0, 0)))

	hits, err := s.Search(ctx, []float32{1, 0, 0}, 2)

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "full.txt", hits[0].Record.FilePath)
	assert.Equal(t, float32(1), hits[1].Distance)
	assert.False(t, math.IsNaN(float64(hits[1].Score)))
}

func TestSQLiteStore_MetadataRoundTrip(t *testing.T) {
	s, _ := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	r := rec("notes.md", 1, 0)
	r.Metadata = map[string]string{"ext": ".md", "size": "42"}
	require.NoError(t, s.Upsert(ctx, r))

	found, err := s.FindByPath(ctx, "notes.md")

	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, r.Metadata, found[0].Metadata)
	assert.Equal(t, r.ID, found[0].ID)
	assert.WithinDuration(t, r.CreatedAt, found[0].CreatedAt, 0)
}

func TestSQLiteStore_List(t *testing.T) {
	s, _ := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, rec("b.txt", 1, 0)))
	require.NoError(t, s.Upsert(ctx, rec("a.txt", 0, 1)))
	require.NoError(t, s.Upsert(ctx, rec("a.txt", 1, 1)))

	list, err := s.List(ctx)

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a.txt", list[0].FilePath)
	assert.Equal(t, 2, list[0].Records)
	assert.Equal(t, "b.txt", list[1].FilePath)
}

func TestSQLiteStore_Reset(t *testing.T) {
	// Given: a populated store with a saved graph
	s, dir := openTestStore(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, rec("a.txt", 1, 0, 0)))
	graphPath := filepath.Join(dir, GraphFile)
	require.NoError(t, os.WriteFile(graphPath, []byte("graph"), 0o644))

	// When: resetting it
	require.NoError(t, s.Reset(ctx))
	assert.NoFileExists(t, graphPath)

	// Then: it is uninitialized again and accepts a new width
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	hits, err := s.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, s.Upsert(ctx, rec("a.txt", 1, 0)))
	assert.Equal(t, 2, s.Dimensions())
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := Open(dir, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, s1.Upsert(ctx, rec("a.txt", 1, 0)))
	require.NoError(t, s1.Close())

	s2, err := Open(dir, DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	count, err := s2.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 2, s2.Dimensions())

	hits, err := s2.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestSQLiteStore_GraphFile_ReusedUntilNextWrite(t *testing.T) {
	// Given: a store large enough to need the graph, searched once
	dir := t.TempDir()
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.ExactSearchLimit = 5
	r := rand.New(rand.NewPCG(5, 8))

	s1, err := Open(dir, cfg)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		require.NoError(t, s1.Upsert(ctx, rec(fmt.Sprintf("doc%02d.txt", i), randomVector(r, 8)...)))
	}
	_, err = s1.Search(ctx, randomVector(r, 8), 3)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	graphPath := filepath.Join(dir, GraphFile)
	require.FileExists(t, graphPath)
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(graphPath, old, old))

	// When: a new store searches without any write in between
	s2, err := Open(dir, cfg)
	require.NoError(t, err)
	hits, err := s2.Search(ctx, randomVector(r, 8), 3)
	require.NoError(t, err)

	// Then: the saved graph is loaded, not rewritten
	assert.NotEmpty(t, hits)
	assert.True(t, s2.vectors.usesGraph())
	info, err := os.Stat(graphPath)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old))

	// When: a write happens and a fresh store searches
	require.NoError(t, s2.Upsert(ctx, rec("new.txt", randomVector(r, 8)...)))
	require.NoError(t, s2.Close())
	s3, err := Open(dir, cfg)
	require.NoError(t, err)
	defer func() { _ = s3.Close() }()
	hits, err = s3.Search(ctx, randomVector(r, 8), 25)
	require.NoError(t, err)

	// Then: the stale graph is rebuilt and saved again
	info, err = os.Stat(graphPath)
	require.NoError(t, err)
	assert.True(t, info.ModTime().After(old))
	assert.Equal(t, 21, s3.vectors.len())
	assert.NotEmpty(t, hits)
}

func TestSQLiteStore_SeesWritesFromOtherConnection(t *testing.T) {
	// Given: two stores sharing one data directory, the first with a built graph
	dir := t.TempDir()
	ctx := context.Background()
	a, err := Open(dir, DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	b, err := Open(dir, DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	require.NoError(t, a.Upsert(ctx, rec("a.txt", 1, 0)))
	_, err = a.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)

	// When: the second store writes
	require.NoError(t, b.Upsert(ctx, rec("b.txt", 0, 1)))

	// Then: the first store's search includes it
	hits, err := a.Search(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b.txt", hits[0].Record.FilePath)
}

func TestSQLiteStore_ConcurrentWriters(t *testing.T) {
	s, _ := openTestStore(t, DefaultConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.ReplaceByPath(ctx, rec(fmt.Sprintf("f%d.txt", i%4), float32(i), 1))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count, "one record per path")
}

func TestSQLiteStore_L2Metric(t *testing.T) {
	s, _ := openTestStore(t, Config{Metric: MetricEuclidean})
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, rec("near.txt", 1, 1)))
	require.NoError(t, s.Upsert(ctx, rec("far.txt", 10, 10)))

	hits, err := s.Search(ctx, []float32{1, 1}, 2)

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near.txt", hits[0].Record.FilePath)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
}

func TestOpen_CorruptDatabase(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DatabaseFile), []byte(strings.Repeat("not a database ", 512)), 0o644))

	_, err := Open(dir, DefaultConfig())

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeStoreCorrupt, amerrors.GetCode(err))
	assert.True(t, amerrors.IsFatal(err))
}

func TestOpen_UnknownMetric(t *testing.T) {
	_, err := Open(t.TempDir(), Config{Metric: "manhattan"})
	assert.Error(t, err)
}

func TestSQLiteStore_Closed(t *testing.T) {
	s, err := Open(t.TempDir(), DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Upsert(context.Background(), rec("a.txt", 1))
	assert.Equal(t, amerrors.ErrCodeStoreIO, amerrors.GetCode(err))
	_, err = s.Count(context.Background())
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}
