package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes the state of an index.
type StatusInfo struct {
	DataDir     string    `json:"data_dir"`
	Files       int       `json:"files"`
	Records     int       `json:"records"`
	Dimensions  int       `json:"dimensions,omitempty"`
	Metric      string    `json:"metric"`
	LastIndexed time.Time `json:"last_indexed,omitzero"`
	StoreSize   int64     `json:"store_size"`

	EmbedderType   string `json:"embedder_type"`
	EmbedderModel  string `json:"embedder_model,omitempty"`
	EmbedderStatus string `json:"embedder_status"` // "ready" or "offline"
}

// StatusRenderer prints StatusInfo.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes a human-readable status block.
func (r *StatusRenderer) Render(info StatusInfo) error {
	w := r.out
	_, _ = fmt.Fprintf(w, "%s\n\n", r.styles.Header.Render("Index: "+info.DataDir))

	if info.Records == 0 {
		_, _ = fmt.Fprintln(w, "  Empty. Run 'amandocs index <path>' to add documents.")
		_, _ = fmt.Fprintln(w)
	} else {
		_, _ = fmt.Fprintf(w, "  Files:        %d\n", info.Files)
		_, _ = fmt.Fprintf(w, "  Records:      %d\n", info.Records)
		_, _ = fmt.Fprintf(w, "  Dimensions:   %d (%s)\n", info.Dimensions, info.Metric)
		if !info.LastIndexed.IsZero() {
			_, _ = fmt.Fprintf(w, "  Last indexed: %s\n", formatTime(info.LastIndexed))
		}
		_, _ = fmt.Fprintf(w, "  Store size:   %s\n\n", FormatBytes(info.StoreSize))
	}

	_, _ = fmt.Fprintln(w, "  Embedder:")
	_, _ = fmt.Fprintf(w, "    Type:   %s\n", info.EmbedderType)
	if info.EmbedderModel != "" {
		_, _ = fmt.Fprintf(w, "    Model:  %s\n", info.EmbedderModel)
	}
	_, _ = fmt.Fprintf(w, "    Status: %s\n", r.renderStatus(info.EmbedderStatus))
	return nil
}

// RenderJSON writes status as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "offline":
		return r.styles.Warning.Render(status)
	default:
		return status
	}
}

// formatTime renders t relative to now, falling back to a date after a week.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
