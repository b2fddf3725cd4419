package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"
)

// poller detects changes by rescanning the tree every interval.
// Used where fsnotify is unavailable (some network mounts and containers).
type poller struct {
	interval time.Duration
	skipDir  func(string) bool
	state    map[string]snapshot
}

type snapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

func newPoller(interval time.Duration, skipDir func(string) bool) *poller {
	return &poller{interval: interval, skipDir: skipDir}
}

// run blocks until ctx is done or stop is closed.
func (p *poller) run(ctx context.Context, root string, stop <-chan struct{}, emit func(FileEvent), emitErr func(error)) error {
	state, err := p.scan(root)
	if err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}
	p.state = state
	slog.Info("watch_started", slog.String("root", root), slog.String("type", "polling"))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			next, err := p.scan(root)
			if err != nil {
				emitErr(err)
				continue
			}
			for _, ev := range diff(p.state, next) {
				emit(ev)
			}
			p.state = next
		}
	}
}

func (p *poller) scan(root string) (map[string]snapshot, error) {
	state := make(map[string]snapshot)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() && path != root && p.skipDir != nil && p.skipDir(path) {
			return filepath.SkipDir
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		state[path] = snapshot{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return state, err
}

// diff turns two scans into events. Directories only produce create and
// delete events.
func diff(prev, next map[string]snapshot) []FileEvent {
	now := time.Now()
	var events []FileEvent

	for path, cur := range next {
		old, existed := prev[path]
		switch {
		case !existed:
			events = append(events, FileEvent{Path: path, Operation: OpCreate, IsDir: cur.isDir, Timestamp: now})
		case !cur.isDir && (!cur.modTime.Equal(old.modTime) || cur.size != old.size):
			events = append(events, FileEvent{Path: path, Operation: OpModify, Timestamp: now})
		}
	}
	for path, old := range prev {
		if _, ok := next[path]; !ok {
			events = append(events, FileEvent{Path: path, Operation: OpDelete, IsDir: old.isDir, Timestamp: now})
		}
	}
	return events
}
