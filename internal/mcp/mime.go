package mcp

import (
	"path/filepath"
	"strings"
)

// mimeTypes maps document extensions to MIME types.
var mimeTypes = map[string]string{
	// Plain text
	".txt":  "text/plain",
	".text": "text/plain",
	".log":  "text/plain",
	".rst":  "text/x-rst",

	// Markdown
	".md":       "text/markdown",
	".markdown": "text/markdown",

	// Web
	".html":  "text/html",
	".htm":   "text/html",
	".xhtml": "application/xhtml+xml",

	// Data
	".csv":  "text/csv",
	".json": "application/json",

	// Office and print
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pdf":  "application/pdf",
}

// MimeTypeForPath returns the MIME type of a source document.
// Returns "application/octet-stream" for unknown types.
func MimeTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := mimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}
