package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports debounced file changes under a root directory.
type Watcher struct {
	opts      Options
	fsWatcher *fsnotify.Watcher
	poller    *poller
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error
	stopCh    chan struct{}
	root      string

	mu             sync.RWMutex
	stopped        bool
	droppedBatches atomic.Uint64
}

// New creates a watcher. fsnotify is used unless it cannot be initialized
// or opts.ForcePolling is set.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	w := &Watcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
			return w, nil
		}
		slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
	}
	w.poller = newPoller(opts.PollInterval, w.skipDir)
	return w, nil
}

// Start watches root recursively. It blocks until Stop is called or ctx
// is cancelled.
func (w *Watcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.mu.Lock()
	w.root = absRoot
	w.mu.Unlock()

	go w.forward(ctx)

	if w.fsWatcher == nil {
		return w.poller.run(ctx, absRoot, w.stopCh, w.debouncer.Add, w.emitError)
	}

	if err := w.addRecursive(absRoot); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	slog.Info("watch_started", slog.String("root", absRoot), slog.String("type", w.Type()))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handle converts an fsnotify event and queues it.
func (w *Watcher) handle(event fsnotify.Event) {
	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
		if isDir {
			if w.skipDir(event.Name) {
				return
			}
			// Files written before the directory was watched are not reported.
			_ = w.addRecursive(event.Name)
			w.queueExisting(event.Name)
		}
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	w.debouncer.Add(FileEvent{Path: event.Name, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// queueExisting reports files already inside a newly created directory.
func (w *Watcher) queueExisting(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || p == dir {
			return nil
		}
		if d.IsDir() {
			if w.skipDir(p) {
				return filepath.SkipDir
			}
			return nil
		}
		w.debouncer.Add(FileEvent{Path: p, Operation: OpCreate, Timestamp: time.Now()})
		return nil
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip entries we can't access
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && w.skipDir(p) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(p)
	})
}

func (w *Watcher) skipDir(absDir string) bool {
	if alwaysSkipped[filepath.Base(absDir)] {
		return true
	}
	return w.opts.SkipDir != nil && w.opts.SkipDir(absDir)
}

func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emit(batch)
		}
	}
}

func (w *Watcher) emit(batch []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped || len(batch) == 0 {
		return
	}
	select {
	case w.events <- batch:
	default:
		n := w.droppedBatches.Add(1)
		slog.Warn("watch_batch_dropped",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped", n))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop releases resources and closes Events and Errors. Safe to call twice.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	close(w.events)
	close(w.errors)
	return nil
}

// Events returns batches of debounced events.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Type is "fsnotify" or "polling".
func (w *Watcher) Type() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// DroppedBatches counts batches lost to a full buffer.
func (w *Watcher) DroppedBatches() uint64 {
	return w.droppedBatches.Load()
}
