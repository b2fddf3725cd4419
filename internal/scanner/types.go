// Package scanner discovers the documents to index under a directory.
// It applies include/exclude globs, .gitignore rules, a size cap and a
// fixed list of sensitive file patterns.
package scanner

import (
	"path"
	"strings"
	"time"
)

// DefaultMaxFileSize is used when ScanOptions.MaxFileSize is unset (50MB).
const DefaultMaxFileSize = 50 * 1024 * 1024

// FileInfo describes a discovered file.
type FileInfo struct {
	Path    string    // Slash-separated path relative to the scan root
	AbsPath string    // Absolute path
	Size    int64     // Bytes
	ModTime time.Time // Last modification time
	Format  string    // Lower-case extension without the dot ("pdf", "md")
}

// ScanOptions configures a scan.
type ScanOptions struct {
	// RootDir is the directory to scan ("." if empty).
	RootDir string

	// IncludePatterns are doublestar globs a file must match (empty = all).
	IncludePatterns []string

	// ExcludePatterns are doublestar globs for files and directories to skip.
	// A pattern without a slash matches the base name at any depth.
	ExcludePatterns []string

	// RespectGitignore applies .gitignore files found under RootDir.
	RespectGitignore bool

	// MaxFileSize skips larger files (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// FollowSymlinks includes symlinked files.
	FollowSymlinks bool

	// Supports filters files by type, typically extract.Supports. Nil accepts all.
	Supports func(path string) bool
}

// ScanResult is sent on the Scan channel.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// Sensitive file patterns that are never indexed.
var sensitiveFilePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}

// Directories skipped even without configuration.
var defaultExcludeDirs = []string{
	".git",
	".hg",
	".svn",
	"node_modules",
	"__pycache__",
}

func formatOf(p string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}
