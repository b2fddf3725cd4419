package watcher

import (
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was renamed away from Path.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change under the watched root.
type FileEvent struct {
	Path      string // absolute
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the quiet period before coalesced events are emitted.
	DebounceWindow time.Duration

	// PollInterval is the rescan interval when polling.
	PollInterval time.Duration

	// EventBufferSize is the number of batches buffered for the consumer.
	EventBufferSize int

	// ForcePolling skips fsnotify.
	ForcePolling bool

	// SkipDir reports directories that should not be watched (absolute path).
	// Nil watches everything except the data directory names below.
	SkipDir func(absDir string) bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// alwaysSkipped are directory names never watched.
var alwaysSkipped = map[string]bool{
	".git":      true,
	".amandocs": true,
}
