// Package extract turns source documents into plain text for embedding.
//
// Every extractor has the same shape, Func, and reports failures as an
// ExtractionError whose message reads "Error reading <FMT>: <cause>".
// The standalone extract command prints that message instead of text.
package extract

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

// Func extracts the text of the file at path.
type Func func(path string) (string, error)

// Registry maps file extensions to extractors.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Func)}
}

// DefaultRegistry returns a registry with every built-in format.
// PDFs go through pdftotext on PATH.
func DefaultRegistry() *Registry {
	return NewRegistryWithRunner(ExecRunner{})
}

// NewRegistryWithRunner is DefaultRegistry with a custom command runner for PDFs.
func NewRegistryWithRunner(runner CommandRunner) *Registry {
	r := NewRegistry()
	r.Register(Text, ".txt", ".text", ".md", ".markdown", ".rst", ".log")
	r.Register(CSV, ".csv")
	r.Register(DOCX, ".docx")
	r.Register(JSON, ".json")
	r.Register(HTML, ".html", ".htm", ".xhtml")
	r.Register(NewPDF(runner).Extract, ".pdf")
	return r
}

// Register binds fn to each extension. Extensions are matched case-insensitively.
func (r *Registry) Register(fn Func, exts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range exts {
		r.byExt[normalizeExt(ext)] = fn
	}
}

// ForPath returns the extractor for path's extension, or an
// ERR_206_UNSUPPORTED_FORMAT error.
func (r *Registry) ForPath(path string) (Func, error) {
	ext := normalizeExt(filepath.Ext(path))

	r.mu.RLock()
	fn, ok := r.byExt[ext]
	r.mu.RUnlock()

	if !ok {
		return nil, amerrors.UnsupportedFormatError(path, ext)
	}
	return fn, nil
}

// Supports reports whether path has a registered extractor.
func (r *Registry) Supports(path string) bool {
	_, err := r.ForPath(path)
	return err == nil
}

// Extract runs the matching extractor on path.
func (r *Registry) Extract(path string) (string, error) {
	fn, err := r.ForPath(path)
	if err != nil {
		return "", err
	}
	return fn(path)
}

// Extensions lists registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

var builtin = DefaultRegistry()

// ForPath looks path up in the built-in registry.
func ForPath(path string) (Func, error) {
	return builtin.ForPath(path)
}

// Supports reports whether the built-in registry handles path.
func Supports(path string) bool {
	return builtin.Supports(path)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// readError builds the extraction error for format.
func readError(path, format string, cause error) *amerrors.DocError {
	return amerrors.ExtractionError(path, fmt.Sprintf("Error reading %s: %v", format, cause), cause)
}
