package mcp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amandocs/internal/config"
	"github.com/Aman-CERP/amandocs/internal/extract"
	"github.com/Aman-CERP/amandocs/internal/search"
	"github.com/Aman-CERP/amandocs/internal/store"
	"github.com/Aman-CERP/amandocs/pkg/version"
)

// Transports accepted by Serve.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// FileIndexer is the part of index.Indexer the server drives.
type FileIndexer interface {
	IndexFile(ctx context.Context, path string, extractFn extract.Func) (bool, error)
	DeleteFile(ctx context.Context, path string) (int, error)
}

// DocumentReader is the read side of store.DocumentStore.
type DocumentReader interface {
	FindByPath(ctx context.Context, path string) ([]*store.Record, error)
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]*store.FileSummary, error)
}

// Server is the MCP server for amandocs.
// It exposes search and single-file maintenance of one document index.
type Server struct {
	mcp      *mcp.Server
	searcher search.Searcher
	indexer  FileIndexer
	store    DocumentReader
	config   *config.Config
	logger   *slog.Logger
	rootPath string
	lookup   func(path string) (extract.Func, error)

	mu        sync.Mutex
	documents map[string]bool // registered document resource URIs
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var toolCatalog = []ToolInfo{
	{
		Name:        "search",
		Description: "Semantic search over the indexed documents. Returns the closest files first, one entry per file, with a text preview. Describe what the document is about rather than quoting exact words.",
	},
	{
		Name:        "index_file",
		Description: "Index or refresh one file under the server root. Unchanged files are skipped by content hash.",
	},
	{
		Name:        "delete_file",
		Description: "Remove a file's records from the index. The file on disk is not touched.",
	},
	{
		Name:        "count",
		Description: "Return the number of records in the index.",
	},
}

// NewServer creates a new MCP server rooted at rootPath. Paths passed to the
// file tools must resolve inside rootPath.
func NewServer(searcher search.Searcher, indexer FileIndexer, st DocumentReader, cfg *config.Config, rootPath string) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if indexer == nil {
		return nil, errors.New("indexer is required")
	}
	if st == nil {
		return nil, errors.New("document store is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	root, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", rootPath, err)
	}

	s := &Server{
		searcher:  searcher,
		indexer:   indexer,
		store:     st,
		config:    cfg,
		logger:    slog.Default(),
		rootPath:  root,
		lookup:    extract.ForPath,
		documents: make(map[string]bool),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    version.Name,
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools/resources
	)

	s.registerTools()
	s.registerDocumentList()

	return s, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, s.tool("search"), s.handleSearch)
	mcp.AddTool(s.mcp, s.tool("index_file"), s.handleIndexFile)
	mcp.AddTool(s.mcp, s.tool("delete_file"), s.handleDeleteFile)
	mcp.AddTool(s.mcp, s.tool("count"), s.handleCount)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(toolCatalog)))
}

func (s *Server) tool(name string) *mcp.Tool {
	for _, t := range toolCatalog {
		if t.Name == name {
			return &mcp.Tool{Name: t.Name, Description: t.Description}
		}
	}
	panic("mcp: unknown tool " + name)
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Root returns the directory file tools are confined to.
func (s *Server) Root() string {
	return s.rootPath
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(toolCatalog))
	copy(out, toolCatalog)
	return out
}

// Serve runs the server until ctx is canceled or the client disconnects.
// addr is only used by the http transport.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("mcp_server_starting",
		slog.String("transport", transport),
		slog.String("addr", addr),
		slog.String("root", s.rootPath))

	var err error
	switch transport {
	case TransportStdio, "":
		err = s.mcp.Run(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		err = s.serveHTTP(ctx, addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, http)", transport)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

// serveHTTP serves the streamable HTTP transport on addr.
func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("http transport requires an address")
	}

	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.mcp
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases server resources. The SDK server stops with its context.
func (s *Server) Close() error {
	return nil
}

// resolvePath turns a tool path into a clean absolute path inside the root.
func (s *Server) resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", NewInvalidParamsError("path parameter is required")
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(s.rootPath, path)
	}
	path = filepath.Clean(path)

	if !within(s.rootPath, path) {
		return "", NewInvalidParamsError(fmt.Sprintf("path %s is outside %s", path, s.rootPath))
	}

	// A symlink inside the root may still point out of it.
	realRoot, err := evalExisting(s.rootPath)
	if err != nil {
		return "", NewInvalidParamsError(fmt.Sprintf("cannot resolve %s: %v", s.rootPath, err))
	}
	realPath, err := evalExisting(path)
	if err != nil {
		return "", NewInvalidParamsError(fmt.Sprintf("cannot resolve %s: %v", path, err))
	}
	if !within(realRoot, realPath) {
		return "", NewInvalidParamsError(fmt.Sprintf("path %s resolves outside %s", path, s.rootPath))
	}
	return path, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// evalExisting resolves symlinks in the longest existing prefix of path and
// appends the missing remainder unchanged. Deleted files still resolve.
func evalExisting(path string) (string, error) {
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(path)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if _, lerr := os.Lstat(path); lerr == nil {
			// dangling link
			return "", err
		}
		parent := filepath.Dir(path)
		if parent == path {
			return "", err
		}
		rest = append([]string{filepath.Base(path)}, rest...)
		path = parent
	}
}
