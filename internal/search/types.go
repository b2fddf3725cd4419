// Package search answers natural-language queries against the document store.
//
// A query is embedded, the store is over-fetched, and hits are collapsed to
// the single closest record per file before ranking and truncation.
package search

import (
	"context"
)

// Defaults applied when an Engine is built without options.
const (
	DefaultLimit      = 10
	DefaultOversample = 3
)

// MaxLimit caps the results one search may ask for.
const MaxLimit = 1000

// Searcher runs ranked document searches.
type Searcher interface {
	// Search returns up to limit results, one per file, closest first.
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Result is one ranked file.
type Result struct {
	FilePath string            `json:"file_path"`
	Preview  string            `json:"preview"`
	Distance float32           `json:"distance"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
