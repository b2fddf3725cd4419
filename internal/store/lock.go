package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is the poll interval while another process holds the lock.
const lockRetryDelay = 50 * time.Millisecond

// writeLock serializes store writers across processes with an advisory
// file lock at <dataDir>/store.lock. Within a process, SQLiteStore's mutex
// already ensures only one goroutine touches it at a time.
type writeLock struct {
	path  string
	flock *flock.Flock
}

func newWriteLock(dir string) *writeLock {
	p := filepath.Join(dir, LockFile)
	return &writeLock{path: p, flock: flock.New(p)}
}

// acquire blocks until the lock is held or ctx is done.
func (l *writeLock) acquire(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	ok, err := l.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire store lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to acquire store lock %s", l.path)
	}
	return nil
}

// release drops the lock. Safe to call when not held.
func (l *writeLock) release() {
	_ = l.flock.Unlock()
}
