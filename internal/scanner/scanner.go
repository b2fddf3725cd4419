package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/amandocs/internal/gitignore"
)

// gitignoreCacheSize bounds the number of per-directory matchers kept.
const gitignoreCacheSize = 1000

// resultBuffer is the Scan channel capacity.
const resultBuffer = 64

// Scanner discovers indexable files. It is safe for concurrent use.
type Scanner struct {
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
}

// New creates a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitignore cache: %w", err)
	}
	return &Scanner{gitignoreCache: cache}, nil
}

// Scan walks opts.RootDir and streams matching files. The channel is
// closed when the walk ends or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) (<-chan ScanResult, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}

	absRoot, err := resolveRoot(opts.RootDir)
	if err != nil {
		return nil, err
	}

	results := make(chan ScanResult, resultBuffer)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, opts, results)
	}()
	return results, nil
}

// Files runs Scan to completion and returns every file found.
func (s *Scanner) Files(ctx context.Context, opts *ScanOptions) ([]*FileInfo, error) {
	results, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var files []*FileInfo
	var firstErr error
	for r := range results {
		if r.Error != nil {
			if firstErr == nil {
				firstErr = r.Error
			}
			continue
		}
		files = append(files, r.File)
	}
	if firstErr == nil {
		firstErr = ctx.Err()
	}
	return files, firstErr
}

// Accept reports whether absPath would be returned by a scan of
// opts.RootDir, and describes it if so. Used for watch events.
func (s *Scanner) Accept(opts *ScanOptions, absPath string) (*FileInfo, bool) {
	if opts == nil {
		opts = &ScanOptions{}
	}
	absRoot, err := resolveRoot(opts.RootDir)
	if err != nil {
		return nil, false
	}
	absPath, err = filepath.Abs(absPath)
	if err != nil {
		return nil, false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil, false
	}
	rel = filepath.ToSlash(rel)

	for dir := path.Dir(rel); dir != "."; dir = path.Dir(dir) {
		if s.excludeDir(dir, absRoot, opts) {
			return nil, false
		}
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return nil, false
	}
	return s.acceptFile(absRoot, absPath, rel, info, opts)
}

// SkipDir reports whether a scan of opts.RootDir would skip the directory
// absDir. The root itself is never skipped.
func (s *Scanner) SkipDir(opts *ScanOptions, absDir string) bool {
	if opts == nil {
		opts = &ScanOptions{}
	}
	absRoot, err := resolveRoot(opts.RootDir)
	if err != nil {
		return true
	}
	rel, err := filepath.Rel(absRoot, absDir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	if rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	for dir := rel; dir != "."; dir = path.Dir(dir) {
		if s.excludeDir(dir, absRoot, opts) {
			return true
		}
	}
	return false
}

// InvalidateGitignoreCache drops cached matchers. Call after a .gitignore changes.
func (s *Scanner) InvalidateGitignoreCache() {
	s.gitignoreCache.Purge()
}

func resolveRoot(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	absRoot, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return "", fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root path is not a directory: %s", absRoot)
	}
	return absRoot, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, opts *ScanOptions, results chan<- ScanResult) {
	err := filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return nil // Skip entries we can't access
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if s.excludeDir(rel, absRoot, opts) {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		file, ok := s.acceptFile(absRoot, p, rel, info, opts)
		if !ok {
			return nil
		}

		select {
		case results <- ScanResult{File: file}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		select {
		case results <- ScanResult{Error: err}:
		case <-ctx.Done():
		}
	}
}

// acceptFile applies every file-level filter. rel is slash-separated.
func (s *Scanner) acceptFile(absRoot, absPath, rel string, info fs.FileInfo, opts *ScanOptions) (*FileInfo, bool) {
	if info.Mode()&fs.ModeSymlink != 0 {
		if !opts.FollowSymlinks {
			return nil, false
		}
		target, err := os.Stat(absPath)
		if err != nil {
			return nil, false
		}
		info = target
	}
	if !info.Mode().IsRegular() {
		return nil, false
	}

	if s.excludeFile(rel, absRoot, opts) {
		return nil, false
	}
	if len(opts.IncludePatterns) > 0 && !matchesAny(rel, opts.IncludePatterns) {
		return nil, false
	}
	if opts.Supports != nil && !opts.Supports(rel) {
		return nil, false
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if info.Size() > maxSize {
		slog.Debug("file_skipped",
			slog.String("path", rel),
			slog.String("reason", "too_large"),
			slog.Int64("size", info.Size()))
		return nil, false
	}

	return &FileInfo{
		Path:    rel,
		AbsPath: absPath,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Format:  formatOf(rel),
	}, true
}

func (s *Scanner) excludeDir(rel, absRoot string, opts *ScanOptions) bool {
	if slices.Contains(defaultExcludeDirs, path.Base(rel)) {
		return true
	}
	if matchesAny(rel, opts.ExcludePatterns) {
		return true
	}
	return opts.RespectGitignore && s.isGitignored(rel, absRoot, true)
}

func (s *Scanner) excludeFile(rel, absRoot string, opts *ScanOptions) bool {
	if matchesAny(rel, sensitiveFilePatterns) || matchesAny(rel, opts.ExcludePatterns) {
		return true
	}
	return opts.RespectGitignore && s.isGitignored(rel, absRoot, false)
}

// matchesAny reports whether rel matches one of patterns.
// Slash-free patterns match the base name; "dir/**" also matches dir itself.
func matchesAny(rel string, patterns []string) bool {
	base := path.Base(rel)
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if !strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match(pattern, base); ok {
				return true
			}
			continue
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if trimmed, found := strings.CutSuffix(pattern, "/**"); found {
			if ok, _ := doublestar.Match(trimmed, rel); ok {
				return true
			}
		}
	}
	return false
}

// isGitignored checks the root .gitignore and those of each parent directory.
func (s *Scanner) isGitignored(rel, absRoot string, isDir bool) bool {
	if s.matcherFor(absRoot, "").Match(rel, isDir) {
		return true
	}

	base := ""
	for _, part := range strings.Split(path.Dir(rel), "/") {
		if part == "." || part == "" {
			continue
		}
		base = path.Join(base, part)
		if s.matcherFor(filepath.Join(absRoot, filepath.FromSlash(base)), base).Match(rel, isDir) {
			return true
		}
	}
	return false
}

// matcherFor returns the cached matcher for dir's .gitignore. Directories
// without one get an empty matcher.
func (s *Scanner) matcherFor(dir, base string) *gitignore.Matcher {
	if m, ok := s.gitignoreCache.Get(dir); ok {
		return m
	}

	m := gitignore.New()
	file := filepath.Join(dir, gitignore.FileName)
	if _, err := os.Stat(file); err == nil {
		if err := m.AddFromFile(file, base); err != nil {
			slog.Warn("gitignore_unreadable", slog.String("path", file), slog.String("error", err.Error()))
		}
	}
	s.gitignoreCache.Add(dir, m)
	return m
}
