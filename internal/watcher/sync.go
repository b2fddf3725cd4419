package watcher

import (
	"context"
	"log/slog"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/extract"
)

// FileIndexer is the part of index.Indexer a Syncer drives.
type FileIndexer interface {
	IndexFile(ctx context.Context, path string, extractFn extract.Func) (bool, error)
	DeleteFile(ctx context.Context, path string) (int, error)
	Prune(ctx context.Context, root string) ([]string, error)
}

// SyncStats counts what one batch did.
type SyncStats struct {
	Indexed   int
	Unchanged int
	Deleted   int
	Skipped   int
	Failed    int
}

// Syncer applies watcher events to an index.
type Syncer struct {
	indexer FileIndexer
	accept  func(absPath string) bool
	lookup  func(path string) (extract.Func, error)
}

// NewSyncer creates a Syncer. accept filters created and modified files
// (include/exclude globs, size cap); nil accepts every supported file.
func NewSyncer(ix FileIndexer, accept func(absPath string) bool) *Syncer {
	return &Syncer{indexer: ix, accept: accept, lookup: extract.ForPath}
}

// Run applies batches from w until its Events channel closes or ctx is
// done. Per-file failures are logged; a fatal store error stops Run.
func (s *Syncer) Run(ctx context.Context, w *Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-w.Errors():
			if ok {
				slog.Warn("watch_error", slog.String("error", err.Error()))
			}
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			if _, err := s.Apply(ctx, batch); err != nil {
				return err
			}
		}
	}
}

// Apply handles one batch: create/modify re-indexes the file, delete and
// rename remove the path (and anything stored beneath it, for directories).
func (s *Syncer) Apply(ctx context.Context, batch []FileEvent) (SyncStats, error) {
	var stats SyncStats

	for _, ev := range batch {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		var err error
		switch ev.Operation {
		case OpCreate, OpModify:
			err = s.index(ctx, ev, &stats)
		case OpDelete, OpRename:
			err = s.remove(ctx, ev, &stats)
		}
		if err == nil {
			continue
		}
		if amerrors.IsFatal(err) {
			return stats, err
		}
		stats.Failed++
		slog.Warn("watch_sync_failed",
			slog.String("path", ev.Path),
			slog.String("op", ev.Operation.String()),
			slog.String("code", amerrors.GetCode(err)),
			slog.String("error", err.Error()))
	}

	if stats != (SyncStats{}) {
		slog.Info("watch_batch_applied",
			slog.Int("indexed", stats.Indexed),
			slog.Int("deleted", stats.Deleted),
			slog.Int("failed", stats.Failed))
	}
	return stats, nil
}

func (s *Syncer) index(ctx context.Context, ev FileEvent, stats *SyncStats) error {
	if ev.IsDir {
		return nil
	}
	if s.accept != nil && !s.accept(ev.Path) {
		stats.Skipped++
		return nil
	}
	fn, err := s.lookup(ev.Path)
	if err != nil {
		stats.Skipped++
		return nil
	}

	indexed, err := s.indexer.IndexFile(ctx, ev.Path, fn)
	if err != nil {
		return err
	}
	if indexed {
		stats.Indexed++
	} else {
		stats.Unchanged++
	}
	return nil
}

func (s *Syncer) remove(ctx context.Context, ev FileEvent, stats *SyncStats) error {
	n, err := s.indexer.DeleteFile(ctx, ev.Path)
	if err != nil {
		return err
	}
	if n > 0 {
		stats.Deleted++
		return nil
	}

	// Nothing stored under the exact path: it may have been a directory.
	pruned, err := s.indexer.Prune(ctx, ev.Path)
	stats.Deleted += len(pruned)
	return err
}
