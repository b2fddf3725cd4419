// Package output formats CLI results: status lines, search hits and the
// index listing.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/amandocs/internal/search"
	"github.com/Aman-CERP/amandocs/internal/store"
)

// hashPrefixLen is how much of a fingerprint List shows.
const hashPrefixLen = 12

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool
	path     lipgloss.Style
	dim      lipgloss.Style
	score    lipgloss.Style
}

// New creates a Writer. Color is enabled only for terminals without NO_COLOR.
func New(out io.Writer) *Writer {
	return newWriter(out, colorEnabled(out))
}

// NewPlain creates a Writer that never emits color.
func NewPlain(out io.Writer) *Writer {
	return newWriter(out, false)
}

func newWriter(out io.Writer, color bool) *Writer {
	w := &Writer{
		out:      out,
		useColor: color,
		path:     lipgloss.NewStyle(),
		dim:      lipgloss.NewStyle(),
		score:    lipgloss.NewStyle(),
	}
	if color {
		w.path = w.path.Bold(true).Foreground(lipgloss.Color("154"))
		w.dim = w.dim.Foreground(lipgloss.Color("245"))
		w.score = w.score.Foreground(lipgloss.Color("220"))
	}
	return w
}

func colorEnabled(out io.Writer) bool {
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return false
	}
	f, ok := out.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// SearchResults prints ranked hits, best first:
//
//	1. /docs/db.txt  (distance 0.412, score 0.794)
//	   vector databases and embeddings
func (w *Writer) SearchResults(results []search.Result, previewChars int) {
	if len(results) == 0 {
		_, _ = fmt.Fprintln(w.out, "No results.")
		return
	}

	for i, r := range results {
		_, _ = fmt.Fprintf(w.out, "%d. %s  %s\n", i+1,
			w.path.Render(r.FilePath),
			w.score.Render(fmt.Sprintf("(distance %.3f, score %.3f)", r.Distance, r.Score)))
		if preview := oneLine(r.Preview, previewChars); preview != "" {
			_, _ = fmt.Fprintf(w.out, "   %s\n", w.dim.Render(preview))
		}
	}
}

// FileList prints one line per indexed file: path, hash prefix, indexed-at.
func (w *Writer) FileList(files []*store.FileSummary) {
	if len(files) == 0 {
		_, _ = fmt.Fprintln(w.out, "Index is empty.")
		return
	}

	for _, f := range files {
		hash := f.FileHash
		if len(hash) > hashPrefixLen {
			hash = hash[:hashPrefixLen]
		}
		line := fmt.Sprintf("%s  %s  %s", f.FilePath, hash, f.IndexedAt.Local().Format("2006-01-02 15:04:05"))
		if f.Records > 1 {
			line += fmt.Sprintf("  (%d records)", f.Records)
		}
		_, _ = fmt.Fprintln(w.out, line)
	}
}

// oneLine collapses whitespace and cuts s to n runes, adding "..." when cut.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
