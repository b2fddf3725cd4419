package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/extract"
)

// Job is one file to index. A nil Extract uses the built-in registry.
type Job struct {
	Path    string
	Extract extract.Func
}

// Progress is reported after each file finishes.
type Progress struct {
	Done    int
	Total   int
	Path    string
	Indexed bool  // false when unchanged or failed
	Err     error // per-file failure, if any
	Elapsed time.Duration
}

// ETA estimates the time left from the average per-file duration so far.
func (p Progress) ETA() time.Duration {
	if p.Done == 0 || p.Done >= p.Total {
		return 0
	}
	perFile := p.Elapsed / time.Duration(p.Done)
	return perFile * time.Duration(p.Total-p.Done)
}

// FileError is a per-file failure that did not stop the batch.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// BatchResult summarizes IndexPaths.
type BatchResult struct {
	Indexed   int
	Unchanged int
	Failed    []FileError
	Duration  time.Duration
}

// Total is the number of files processed.
func (r *BatchResult) Total() int {
	return r.Indexed + r.Unchanged + len(r.Failed)
}

// IndexPaths indexes jobs with bounded concurrency. Per-file failures are
// collected in the result; a fatal error (store I/O, corruption) or
// cancellation stops the batch and is returned alongside partial results.
func (ix *Indexer) IndexPaths(ctx context.Context, jobs []Job, progress func(Progress)) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{}

	var mu sync.Mutex
	record := func(path string, indexed bool, err error) {
		mu.Lock()
		defer mu.Unlock()

		switch {
		case err != nil:
			result.Failed = append(result.Failed, FileError{Path: path, Err: err})
		case indexed:
			result.Indexed++
		default:
			result.Unchanged++
		}
		if progress != nil {
			progress(Progress{
				Done:    result.Total(),
				Total:   len(jobs),
				Path:    path,
				Indexed: indexed,
				Err:     err,
				Elapsed: time.Since(start),
			})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(ix.workers))

	for _, job := range jobs {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			fn := job.Extract
			if fn == nil {
				var err error
				if fn, err = extract.ForPath(job.Path); err != nil {
					record(job.Path, false, err)
					return nil
				}
			}

			indexed, err := ix.IndexFile(gctx, job.Path, fn)
			if err != nil && (amerrors.IsFatal(err) || gctx.Err() != nil) {
				return err
			}
			if err != nil {
				slog.Warn("file_index_failed",
					slog.String("path", job.Path),
					slog.String("code", amerrors.GetCode(err)),
					slog.String("error", err.Error()))
			}
			record(job.Path, indexed, err)
			return nil
		})
	}

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	result.Duration = time.Since(start)

	slog.Info("index_batch_complete",
		slog.Int("files", len(jobs)),
		slog.Int("indexed", result.Indexed),
		slog.Int("unchanged", result.Unchanged),
		slog.Int("failed", len(result.Failed)),
		slog.Duration("duration", result.Duration))

	return result, err
}
