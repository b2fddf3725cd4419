package mcp

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/amandocs/internal/index"
	"github.com/Aman-CERP/amandocs/internal/search"
)

// FormatSearchResults formats ranked documents as markdown.
func FormatSearchResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No documents found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d document", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		formatResult(&sb, i+1, r)
	}

	return sb.String()
}

// formatResult formats a single document hit.
func formatResult(sb *strings.Builder, num int, r search.Result) {
	fmt.Fprintf(sb, "### %d. %s (score: %.2f, distance: %.3f)\n\n",
		num,
		r.FilePath,
		r.Score,
		r.Distance,
	)

	preview := strings.TrimSpace(r.Preview)
	if preview == "" {
		sb.WriteString("_(no text extracted)_\n\n")
		return
	}

	// Markdown previews read better unfenced.
	switch strings.ToLower(filepath.Ext(r.FilePath)) {
	case ".md", ".markdown":
		sb.WriteString(preview)
		sb.WriteString("\n\n---\n\n")
	default:
		fmt.Fprintf(sb, "```text\n%s\n```\n\n", preview)
	}
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// toResultOutputs converts engine results to the tool's output schema.
func toResultOutputs(results []search.Result) []SearchResultOutput {
	out := make([]SearchResultOutput, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResultOutput{
			FilePath:  r.FilePath,
			Preview:   r.Preview,
			Distance:  r.Distance,
			Score:     r.Score,
			Extension: r.Metadata[index.MetaExtension],
		})
	}
	return out
}
