// Package index turns source files into stored document records.
//
// IndexFile is the unit of work: hash the file, skip it when unchanged,
// extract its text, embed it, and replace the path's record in one
// transaction. IndexPaths fans that out over a bounded worker pool.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/amandocs/internal/embed"
	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/extract"
	"github.com/Aman-CERP/amandocs/internal/hash"
	"github.com/Aman-CERP/amandocs/internal/store"
)

// DefaultPreviewChars is the preview length in runes.
const DefaultPreviewChars = 500

// Metadata keys written on every record.
const (
	MetaExtension = "ext"
	MetaSize      = "size"
	MetaHashAlgo  = "hash_algorithm"
	MetaEmbedder  = "embedder"
	MetaModTime   = "mod_time"
)

// Indexer writes one record per file into a DocumentStore.
// It is safe for concurrent use; calls for the same path are serialized.
type Indexer struct {
	store        store.DocumentStore
	embedder     embed.Embedder
	hasher       hash.Hasher
	previewChars int
	retry        amerrors.RetryConfig
	workers      int
	locks        *pathLocks
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithPreviewChars sets the preview length in runes.
func WithPreviewChars(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.previewChars = n
		}
	}
}

// WithRetry sets the retry policy for embedding calls.
func WithRetry(cfg amerrors.RetryConfig) Option {
	return func(ix *Indexer) {
		ix.retry = cfg
	}
}

// WithMaxRetries retries retryable embedding errors up to n times.
func WithMaxRetries(n int) Option {
	return func(ix *Indexer) {
		ix.retry = amerrors.EmbeddingRetryConfig(n)
	}
}

// WithWorkers bounds IndexPaths concurrency.
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// New creates an Indexer over the given collaborators.
func New(st store.DocumentStore, embedder embed.Embedder, hasher hash.Hasher, opts ...Option) (*Indexer, error) {
	if st == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}

	ix := &Indexer{
		store:        st,
		embedder:     embedder,
		hasher:       hasher,
		previewChars: DefaultPreviewChars,
		retry:        amerrors.EmbeddingRetryConfig(embed.DefaultMaxRetries),
		workers:      4,
		locks:        newPathLocks(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// IndexFile indexes path using extractFn for its text. It reports false
// when the stored record already matches the file's hash.
//
// Extraction and embedding failures leave the store untouched.
func (ix *Indexer) IndexFile(ctx context.Context, path string, extractFn extract.Func) (bool, error) {
	if extractFn == nil {
		return false, amerrors.ValidationError("no extractor for "+path, nil)
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	unlock := ix.locks.lock(path)
	defer unlock()

	start := time.Now()

	snap, unchanged, err := ix.readStable(ctx, path, extractFn)
	if err != nil || unchanged {
		return false, err
	}
	text := snap.text

	vec, err := amerrors.RetryWithResult(ctx, ix.retry, func() ([]float32, error) {
		v, err := ix.embedder.Embed(ctx, text)
		if err != nil {
			return nil, asEmbeddingError(err)
		}
		return v, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	rec := &store.Record{
		FilePath: path,
		FileHash: snap.hash,
		Preview:  truncateRunes(text, ix.previewChars),
		Metadata: ix.metadata(path, snap.size),
		Vector:   vec,
	}
	removed, err := ix.store.ReplaceByPath(ctx, rec)
	if err != nil {
		return false, err
	}

	slog.Info("file_indexed",
		slog.String("path", path),
		slog.Int("replaced", removed),
		slog.Int("dimensions", len(vec)),
		slog.Duration("duration", time.Since(start)))
	return true, nil
}

// maxReadAttempts bounds how often a file that changes during extraction
// is re-read before IndexFile gives up on it.
const maxReadAttempts = 3

// fileSnapshot is extracted text together with the hash of the bytes it
// was extracted from.
type fileSnapshot struct {
	hash string
	size int64
	text string
}

// readStable hashes path, skips it when a stored record has that hash,
// and extracts its text. The file is hashed again after extraction; if it
// changed in between, the read is repeated so the hash always describes
// the extracted text.
func (ix *Indexer) readStable(ctx context.Context, path string, extractFn extract.Func) (fileSnapshot, bool, error) {
	for attempt := 1; ; attempt++ {
		data, err := os.ReadFile(path)
		if err != nil {
			return fileSnapshot{}, false, amerrors.IOError(fmt.Sprintf("cannot read %s: %v", path, err), err).WithDetail("path", path)
		}
		snap := fileSnapshot{hash: ix.hasher.HashBytes(data), size: int64(len(data))}

		existing, err := ix.store.FindByPath(ctx, path)
		if err != nil {
			return fileSnapshot{}, false, err
		}
		for _, rec := range existing {
			if rec.FileHash == snap.hash {
				slog.Debug("file_unchanged", slog.String("path", path))
				return fileSnapshot{}, true, nil
			}
		}

		snap.text, err = extractFn(path)
		if err != nil {
			return fileSnapshot{}, false, asExtractionError(path, err)
		}

		after, err := ix.hasher.HashFile(path)
		if err != nil {
			return fileSnapshot{}, false, err
		}
		if after == snap.hash {
			return snap, false, nil
		}

		if attempt == maxReadAttempts {
			return fileSnapshot{}, false, amerrors.New(amerrors.ErrCodeIndexFailed,
				fmt.Sprintf("%s kept changing while it was being indexed", path), nil).
				WithDetail("path", path).
				WithSuggestion("Index it again once writes to it have finished")
		}
		slog.Debug("file_changed_during_extract",
			slog.String("path", path),
			slog.Int("attempt", attempt))
		if err := ctx.Err(); err != nil {
			return fileSnapshot{}, false, err
		}
	}
}

// DeleteFile removes every record for path.
func (ix *Indexer) DeleteFile(ctx context.Context, path string) (int, error) {
	unlock := ix.locks.lock(path)
	defer unlock()

	n, err := ix.store.DeleteByPath(ctx, path)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("file_deleted", slog.String("path", path), slog.Int("records", n))
	}
	return n, nil
}

// Prune deletes records for files under root that no longer exist.
// It returns the pruned paths.
func (ix *Indexer) Prune(ctx context.Context, root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, amerrors.IOError(fmt.Sprintf("cannot resolve %s: %v", root, err), err)
	}

	summaries, err := ix.store.List(ctx)
	if err != nil {
		return nil, err
	}

	var pruned []string
	for _, fs := range summaries {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		if !within(absRoot, fs.FilePath) {
			continue
		}
		if _, err := os.Stat(fs.FilePath); !os.IsNotExist(err) {
			continue
		}
		if _, err := ix.DeleteFile(ctx, fs.FilePath); err != nil {
			return pruned, err
		}
		pruned = append(pruned, fs.FilePath)
	}

	if len(pruned) > 0 {
		slog.Info("index_pruned", slog.String("root", absRoot), slog.Int("files", len(pruned)))
	}
	return pruned, nil
}

func (ix *Indexer) metadata(path string, size int64) map[string]string {
	meta := map[string]string{
		MetaExtension: strings.ToLower(filepath.Ext(path)),
		MetaSize:      strconv.FormatInt(size, 10),
		MetaHashAlgo:  ix.hasher.Algorithm(),
		MetaEmbedder:  ix.embedder.ModelName(),
	}
	if info, err := os.Stat(path); err == nil {
		meta[MetaModTime] = info.ModTime().UTC().Format(time.RFC3339)
	}
	return meta
}

// asExtractionError keeps typed extractor errors and wraps anything else.
func asExtractionError(path string, err error) error {
	if de, ok := amerrors.As(err); ok {
		switch de.Code {
		case amerrors.ErrCodeExtractionFailed, amerrors.ErrCodeUnsupportedFormat:
			return err
		}
	}
	return amerrors.ExtractionError(path, err.Error(), err)
}

// asEmbeddingError keeps DocErrors (their retryability is already decided)
// and marks anything else as a retryable embedding failure.
func asEmbeddingError(err error) error {
	if _, ok := amerrors.As(err); ok {
		return err
	}
	return amerrors.EmbeddingError(fmt.Sprintf("embedding failed: %v", err), err)
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func within(root, p string) bool {
	if !filepath.IsAbs(p) {
		return false
	}
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
