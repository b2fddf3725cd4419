// Package store persists document records and answers nearest-neighbor
// queries over their embeddings.
//
// Records live in a single SQLite collection (documents.db). Vector search
// scans small collections exactly; larger ones use an HNSW graph that is
// saved next to the database (vectors.hnsw) and reused while no write has
// happened since.
package store

import (
	"context"
	"time"
)

// Collection and state names.
const (
	// DatabaseFile is the SQLite file name inside the data directory.
	DatabaseFile = "documents.db"

	// LockFile serializes writers across processes.
	LockFile = "store.lock"

	// GraphFile holds the saved HNSW graph.
	GraphFile = "vectors.hnsw"

	// StateKeyIndexDimension stores the vector width pinned by the first write.
	StateKeyIndexDimension = "index_dimension"

	// StateKeyGeneration counts committed writes. A saved graph is only
	// reused at the generation it was built at.
	StateKeyGeneration = "generation"
)

// Distance metrics.
const (
	MetricCosine    = "cos"
	MetricEuclidean = "l2"
)

// Record is one stored document: a source file's embedding plus what is
// needed to show and refresh it.
type Record struct {
	ID        string            // UUID assigned on first write
	FilePath  string            // Source file path as given to the indexer
	FileHash  string            // Content fingerprint the vector was computed from
	Preview   string            // Leading text of the document
	Metadata  map[string]string // Free-form attributes (extension, size, ...)
	Vector    []float32         // Embedding
	CreatedAt time.Time
}

// Hit is a search result: a record and its distance from the query.
// Lower distance is more similar.
type Hit struct {
	Record   *Record
	Distance float32
	Score    float32 // 0..1, higher is more similar
}

// FileSummary describes the records held for one path.
type FileSummary struct {
	FilePath  string
	FileHash  string
	Records   int
	IndexedAt time.Time
}

// Config configures a document store.
type Config struct {
	// Dimensions pins the vector width. 0 lets the first write decide.
	Dimensions int

	// Metric is "cos" (default) or "l2".
	Metric string

	// M is the HNSW neighbor count (default 16).
	M int

	// EfSearch is the HNSW search breadth (default 20).
	EfSearch int

	// ExactSearchLimit is the largest collection searched by a full scan.
	// 0 means DefaultExactSearchLimit; a negative value always uses the graph.
	ExactSearchLimit int
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{Metric: MetricCosine, M: 16, EfSearch: 20}
}

// DocumentStore persists document records and searches them by vector.
//
// A store that has never been written to is "uninitialized": reads on it
// return empty results, and deletes are no-ops. Neither is an error.
type DocumentStore interface {
	// Upsert appends a record, creating the collection on first use.
	Upsert(ctx context.Context, rec *Record) error

	// ReplaceByPath removes every record for rec.FilePath and inserts rec
	// in one transaction. Returns the number of records removed.
	ReplaceByPath(ctx context.Context, rec *Record) (int, error)

	// DeleteByPath removes every record for path. Returns the number removed.
	DeleteByPath(ctx context.Context, path string) (int, error)

	// FindByPath returns the records stored for path.
	FindByPath(ctx context.Context, path string) ([]*Record, error)

	// Search returns up to limit records by ascending distance from query.
	Search(ctx context.Context, query []float32, limit int) ([]*Hit, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int, error)

	// List summarizes stored records per path, sorted by path.
	List(ctx context.Context) ([]*FileSummary, error)

	// Reset drops the collection, returning the store to uninitialized.
	Reset(ctx context.Context) error

	// Close releases resources.
	Close() error
}
