package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

// MaxSearchLimit caps the limit a client may request.
const MaxSearchLimit = 50

// Tool statuses reported by index_file.
const (
	StatusIndexed   = "indexed"
	StatusUnchanged = "unchanged"
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"natural-language description of the documents to find"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of documents, default 10, max 50"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"documents, closest first, one per file"`
}

// SearchResultOutput is one ranked document.
type SearchResultOutput struct {
	FilePath  string  `json:"file_path" jsonschema:"absolute path of the source file"`
	Preview   string  `json:"preview" jsonschema:"leading text of the document"`
	Distance  float32 `json:"distance" jsonschema:"vector distance from the query, lower is closer"`
	Score     float32 `json:"score" jsonschema:"similarity between 0 and 1, higher is closer"`
	Extension string  `json:"extension,omitempty" jsonschema:"file extension of the source"`
}

// IndexFileInput defines the input schema for the index_file tool.
type IndexFileInput struct {
	Path string `json:"path" jsonschema:"file to index, absolute or relative to the server root"`
}

// IndexFileOutput defines the output schema for the index_file tool.
type IndexFileOutput struct {
	Path   string `json:"path"`
	Status string `json:"status" jsonschema:"indexed or unchanged"`
}

// DeleteFileInput defines the input schema for the delete_file tool.
type DeleteFileInput struct {
	Path string `json:"path" jsonschema:"file whose records should be removed"`
}

// DeleteFileOutput defines the output schema for the delete_file tool.
type DeleteFileOutput struct {
	Path    string `json:"path"`
	Deleted int    `json:"deleted" jsonschema:"number of records removed"`
}

// CountInput defines the input schema for the count tool (no parameters).
type CountInput struct{}

// CountOutput defines the output schema for the count tool.
type CountOutput struct {
	Records int `json:"records" jsonschema:"number of records in the index"`
}

// handleSearch is the MCP handler for the search tool.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	start := time.Now()
	limit := clampLimit(input.Limit, s.config.Search.DefaultLimit, 1, MaxSearchLimit)

	results, err := s.searcher.Search(ctx, input.Query, limit)
	if err != nil {
		s.logger.Error("mcp_search_failed",
			slog.String("query", input.Query),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("mcp_search",
		slog.String("query", input.Query),
		slog.Int("limit", limit),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	output := SearchOutput{Results: toResultOutputs(results)}
	return textResult(FormatSearchResults(input.Query, results)), output, nil
}

// handleIndexFile is the MCP handler for the index_file tool.
func (s *Server) handleIndexFile(ctx context.Context, _ *mcp.CallToolRequest, input IndexFileInput) (
	*mcp.CallToolResult,
	IndexFileOutput,
	error,
) {
	path, err := s.resolvePath(input.Path)
	if err != nil {
		return nil, IndexFileOutput{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, IndexFileOutput{}, MapError(amerrors.IOError(fmt.Sprintf("cannot read %s", path), err))
	}
	if info.IsDir() {
		return nil, IndexFileOutput{}, NewInvalidParamsError(fmt.Sprintf("%s is a directory; index it with 'amandocs index'", path))
	}
	if limit := s.config.MaxFileSize(); limit > 0 && info.Size() > limit {
		return nil, IndexFileOutput{}, &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), limit),
		}
	}

	extractFn, err := s.lookup(path)
	if err != nil {
		return nil, IndexFileOutput{}, MapError(err)
	}

	indexed, err := s.indexer.IndexFile(ctx, path, extractFn)
	if err != nil {
		s.logger.Warn("mcp_index_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, IndexFileOutput{}, MapError(err)
	}

	output := IndexFileOutput{Path: path, Status: StatusUnchanged}
	if indexed {
		output.Status = StatusIndexed
		s.addDocumentResource(path, time.Now())
	}
	s.logger.Info("mcp_index_file", slog.String("path", path), slog.String("status", output.Status))

	return textResult(fmt.Sprintf("%s: %s", output.Status, path)), output, nil
}

// handleDeleteFile is the MCP handler for the delete_file tool.
func (s *Server) handleDeleteFile(ctx context.Context, _ *mcp.CallToolRequest, input DeleteFileInput) (
	*mcp.CallToolResult,
	DeleteFileOutput,
	error,
) {
	path, err := s.resolvePath(input.Path)
	if err != nil {
		return nil, DeleteFileOutput{}, err
	}

	n, err := s.indexer.DeleteFile(ctx, path)
	if err != nil {
		return nil, DeleteFileOutput{}, MapError(err)
	}
	s.removeDocumentResource(path)

	s.logger.Info("mcp_delete_file", slog.String("path", path), slog.Int("deleted", n))

	output := DeleteFileOutput{Path: path, Deleted: n}
	return textResult(fmt.Sprintf("deleted %d record(s) for %s", n, path)), output, nil
}

// handleCount is the MCP handler for the count tool.
func (s *Server) handleCount(ctx context.Context, _ *mcp.CallToolRequest, _ CountInput) (
	*mcp.CallToolResult,
	CountOutput,
	error,
) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return nil, CountOutput{}, MapError(err)
	}
	return textResult(fmt.Sprintf("%d records indexed", n)), CountOutput{Records: n}, nil
}

// textResult wraps human-readable text; the SDK attaches the structured output.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
