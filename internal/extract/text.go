package extract

import (
	"os"
	"path/filepath"
	"strings"
)

// Text reads plain text and Markdown files as-is. Invalid UTF-8 is replaced.
func Text(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", readError(path, formatName(path, "TXT"), err)
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// formatName is the upper-cased extension, or fallback when there is none.
func formatName(path, fallback string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return fallback
	}
	return strings.ToUpper(ext)
}
