package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/extract"
	"github.com/Aman-CERP/amandocs/internal/search"
	"github.com/Aman-CERP/amandocs/internal/store"
)

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code, "message: %s", mcpErr.Message)
}

// ============================================================================
// search
// ============================================================================

func TestSearchTool_ReturnsStructuredAndMarkdown(t *testing.T) {
	// Given: a searcher with two hits
	ts := newTestServer(t)
	ts.searcher.SearchFn = func(_ context.Context, query string, _ int) ([]search.Result, error) {
		return []search.Result{
			{FilePath: "/docs/db.md", Preview: "Databases store rows.", Distance: 0.12, Score: 0.94, Metadata: map[string]string{"ext": ".md"}},
			{FilePath: "/docs/cats.txt", Preview: "Cats sleep.", Distance: 0.8, Score: 0.6},
		}, nil
	}

	// When: calling search
	res, out, err := ts.handleSearch(context.Background(), nil, SearchInput{Query: "database"})

	// Then: both forms carry the ranked files
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "/docs/db.md", out.Results[0].FilePath)
	assert.Equal(t, ".md", out.Results[0].Extension)
	assert.InDelta(t, 0.12, out.Results[0].Distance, 1e-6)

	text := resultText(t, res)
	assert.Contains(t, text, `## Search Results for "database"`)
	assert.Contains(t, text, "Found 2 documents")
	assert.Contains(t, text, "### 1. /docs/db.md")
}

func TestSearchTool_EmptyQuery(t *testing.T) {
	ts := newTestServer(t)
	called := false
	ts.searcher.SearchFn = func(context.Context, string, int) ([]search.Result, error) {
		called = true
		return nil, nil
	}

	for _, q := range []string{"", "   ", "\t\n"} {
		_, _, err := ts.handleSearch(context.Background(), nil, SearchInput{Query: q})
		requireCode(t, err, ErrCodeInvalidParams)
	}
	assert.False(t, called, "searcher must not run for blank queries")
}

func TestSearchTool_LimitClamping(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"default when zero", 0, 10},
		{"default when negative", -3, 10},
		{"passes through", 7, 7},
		{"capped", 500, MaxSearchLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			_, _, err := ts.handleSearch(context.Background(), nil, SearchInput{Query: "q", Limit: tt.in})

			require.NoError(t, err)
			assert.Equal(t, tt.want, ts.searcher.lastLimit)
		})
	}
}

func TestSearchTool_NoResults(t *testing.T) {
	ts := newTestServer(t)

	res, out, err := ts.handleSearch(context.Background(), nil, SearchInput{Query: "nothing"})

	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.Equal(t, `No documents found for "nothing"`, resultText(t, res))
}

func TestSearchTool_MapsErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"embedding", amerrors.EmbeddingError("model offline", nil), ErrCodeEmbeddingFailed},
		{"dimension", amerrors.New(amerrors.ErrCodeDimensionMismatch, "want 384, got 768", nil), ErrCodeInvalidParams},
		{"store", amerrors.StoreIOError("search", "/tmp/x", errors.New("disk")), ErrCodeStoreUnavailable},
		{"timeout", fmt.Errorf("embed: %w", context.DeadlineExceeded), ErrCodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.searcher.SearchFn = func(context.Context, string, int) ([]search.Result, error) {
				return nil, tt.err
			}

			_, _, err := ts.handleSearch(context.Background(), nil, SearchInput{Query: "q"})

			requireCode(t, err, tt.code)
		})
	}
}

// ============================================================================
// index_file
// ============================================================================

func TestIndexFileTool_Indexed(t *testing.T) {
	// Given: a text file under the root
	ts := newTestServer(t)
	path := ts.write(t, "notes/a.txt", "hello")
	var gotPath string
	var gotText string
	ts.indexer.IndexFileFn = func(_ context.Context, p string, fn extract.Func) (bool, error) {
		gotPath = p
		text, err := fn(p)
		gotText = text
		return true, err
	}

	// When: indexing by relative path
	res, out, err := ts.handleIndexFile(context.Background(), nil, IndexFileInput{Path: "notes/a.txt"})

	// Then: the absolute path reaches the indexer with the text extractor
	require.NoError(t, err)
	assert.Equal(t, path, gotPath)
	assert.Equal(t, "hello", gotText)
	assert.Equal(t, IndexFileOutput{Path: path, Status: StatusIndexed}, out)
	assert.Contains(t, resultText(t, res), "indexed")
	assert.True(t, ts.documents[documentURI(path)], "indexed file becomes a resource")
}

func TestIndexFileTool_Unchanged(t *testing.T) {
	ts := newTestServer(t)
	path := ts.write(t, "a.md", "# same")
	ts.indexer.IndexFileFn = func(context.Context, string, extract.Func) (bool, error) {
		return false, nil
	}

	_, out, err := ts.handleIndexFile(context.Background(), nil, IndexFileInput{Path: path})

	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, out.Status)
	assert.False(t, ts.documents[documentURI(path)])
}

func TestIndexFileTool_Rejects(t *testing.T) {
	ts := newTestServer(t)
	ts.write(t, "image.png", "\x89PNG")
	ts.write(t, "big.txt", strings.Repeat("x", 2*1024*1024))
	require.NoError(t, os.Mkdir(filepath.Join(ts.root, "sub"), 0o755))
	ts.config.Performance.MaxFileSizeMB = 1

	indexCalled := false
	ts.indexer.IndexFileFn = func(context.Context, string, extract.Func) (bool, error) {
		indexCalled = true
		return true, nil
	}

	tests := []struct {
		name string
		path string
		code int
	}{
		{"outside root", "../escape.txt", ErrCodeInvalidParams},
		{"missing", "missing.txt", ErrCodeFileNotFound},
		{"directory", "sub", ErrCodeInvalidParams},
		{"unsupported", "image.png", ErrCodeInvalidParams},
		{"too large", "big.txt", ErrCodeFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ts.handleIndexFile(context.Background(), nil, IndexFileInput{Path: tt.path})
			requireCode(t, err, tt.code)
		})
	}
	assert.False(t, indexCalled)
}

func TestIndexFileTool_IndexerError(t *testing.T) {
	ts := newTestServer(t)
	ts.write(t, "a.txt", "x")
	ts.indexer.IndexFileFn = func(_ context.Context, p string, _ extract.Func) (bool, error) {
		return false, amerrors.ExtractionError(p, "Error reading TXT: boom", nil)
	}

	_, _, err := ts.handleIndexFile(context.Background(), nil, IndexFileInput{Path: "a.txt"})

	requireCode(t, err, ErrCodeExtractionFailed)
	assert.Contains(t, err.Error(), "Error reading TXT: boom")
}

// ============================================================================
// delete_file
// ============================================================================

func TestDeleteFileTool(t *testing.T) {
	// Given: an indexed file registered as a resource
	ts := newTestServer(t)
	path := filepath.Join(ts.root, "gone.txt")
	ts.addDocumentResource(path, time.Now())
	var gotPath string
	ts.indexer.DeleteFileFn = func(_ context.Context, p string) (int, error) {
		gotPath = p
		return 1, nil
	}

	// When: deleting it (the file need not exist on disk)
	res, out, err := ts.handleDeleteFile(context.Background(), nil, DeleteFileInput{Path: "gone.txt"})

	// Then: the record count is reported and the resource is dropped
	require.NoError(t, err)
	assert.Equal(t, path, gotPath)
	assert.Equal(t, DeleteFileOutput{Path: path, Deleted: 1}, out)
	assert.Contains(t, resultText(t, res), "deleted 1 record(s)")
	assert.False(t, ts.documents[documentURI(path)])
}

func TestDeleteFileTool_NotIndexedIsZero(t *testing.T) {
	ts := newTestServer(t)

	_, out, err := ts.handleDeleteFile(context.Background(), nil, DeleteFileInput{Path: "never.txt"})

	require.NoError(t, err)
	assert.Equal(t, 0, out.Deleted)
}

func TestDeleteFileTool_Errors(t *testing.T) {
	ts := newTestServer(t)

	_, _, err := ts.handleDeleteFile(context.Background(), nil, DeleteFileInput{Path: "/etc/hosts"})
	requireCode(t, err, ErrCodeInvalidParams)

	ts.indexer.DeleteFileFn = func(context.Context, string) (int, error) {
		return 0, amerrors.StoreIOError("delete", "x", errors.New("locked"))
	}
	_, _, err = ts.handleDeleteFile(context.Background(), nil, DeleteFileInput{Path: "a.txt"})
	requireCode(t, err, ErrCodeStoreUnavailable)
}

// ============================================================================
// count
// ============================================================================

func TestCountTool(t *testing.T) {
	ts := newTestServer(t)
	ts.reader.CountFn = func(context.Context) (int, error) { return 42, nil }

	res, out, err := ts.handleCount(context.Background(), nil, CountInput{})

	require.NoError(t, err)
	assert.Equal(t, 42, out.Records)
	assert.Equal(t, "42 records indexed", resultText(t, res))
}

func TestCountTool_Error(t *testing.T) {
	ts := newTestServer(t)
	ts.reader.CountFn = func(context.Context) (int, error) {
		return 0, amerrors.StoreIOError("count", "x", errors.New("closed"))
	}

	_, _, err := ts.handleCount(context.Background(), nil, CountInput{})

	requireCode(t, err, ErrCodeStoreUnavailable)
}

// ============================================================================
// end to end over the SDK
// ============================================================================

func TestServer_ToolsOverInMemoryTransport(t *testing.T) {
	// Given: a server connected to a client over in-memory transports
	ts := newTestServer(t)
	ts.reader.CountFn = func(context.Context) (int, error) { return 3, nil }
	ts.reader.Files = []*store.FileSummary{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := ts.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	// When: listing and calling tools
	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "count", Arguments: map[string]any{}})
	require.NoError(t, err)

	// Then: the four tools are advertised and count answers
	names := make([]string, 0, len(tools.Tools))
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search", "index_file", "delete_file", "count"}, names)
	assert.False(t, res.IsError)
	assert.Equal(t, "3 records indexed", resultText(t, res))
}
