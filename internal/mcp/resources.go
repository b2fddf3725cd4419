package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DocumentListURI is the resource listing every indexed file.
const DocumentListURI = "amandocs://documents"

// DocumentInfo is one entry of the document list resource.
type DocumentInfo struct {
	URI       string    `json:"uri"`
	FilePath  string    `json:"file_path"`
	FileHash  string    `json:"file_hash"`
	MIMEType  string    `json:"mime_type"`
	Records   int       `json:"records"`
	IndexedAt time.Time `json:"indexed_at"`
}

// documentURI returns the file:// URI of a document.
func documentURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// registerDocumentList registers the static document list resource.
func (s *Server) registerDocumentList() {
	s.mcp.AddResource(&mcp.Resource{
		URI:         DocumentListURI,
		Name:        "documents",
		Description: "Every indexed file with its content hash and index time",
		MIMEType:    "application/json",
	}, s.handleDocumentList)
}

// RegisterResources registers each indexed file under the root as a
// readable resource. Call it once before Serve; index_file and delete_file
// keep the set current afterwards.
func (s *Server) RegisterResources(ctx context.Context) error {
	files, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	count := 0
	for _, f := range files {
		if _, err := s.resolvePath(f.FilePath); err != nil {
			continue
		}
		s.addDocumentResource(f.FilePath, f.IndexedAt)
		count++
	}

	s.logger.Info("mcp_resources_registered", slog.Int("count", count))
	return nil
}

// addDocumentResource registers path as a resource unless it already is.
func (s *Server) addDocumentResource(path string, indexedAt time.Time) {
	uri := documentURI(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.documents[uri] {
		return
	}
	s.documents[uri] = true

	s.mcp.AddResource(
		&mcp.Resource{
			Name:        filepath.Base(path),
			URI:         uri,
			Description: fmt.Sprintf("%s (indexed %s)", path, indexedAt.Format(time.RFC3339)),
			MIMEType:    MimeTypeForPath(path),
		},
		s.makeDocumentHandler(path),
	)
}

// removeDocumentResource unregisters path if it was registered.
func (s *Server) removeDocumentResource(path string) {
	uri := documentURI(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.documents[uri] {
		return
	}
	delete(s.documents, uri)
	s.mcp.RemoveResources(uri)
}

// makeDocumentHandler creates a read handler for a specific file path.
func (s *Server) makeDocumentHandler(path string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.handleReadDocument(ctx, path)
	}
}

// handleReadDocument returns the extracted text of an indexed file.
func (s *Server) handleReadDocument(ctx context.Context, path string) (*mcp.ReadResourceResult, error) {
	uri := documentURI(path)

	if _, err := s.resolvePath(path); err != nil {
		return nil, err
	}

	records, err := s.store.FindByPath(ctx, path)
	if err != nil {
		return nil, MapError(err)
	}
	if len(records) == 0 {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{
				Code:    ErrCodeFileNotFound,
				Message: fmt.Sprintf("file not found: %s", path),
			}
		}
		return nil, MapError(err)
	}
	if limit := s.config.MaxFileSize(); limit > 0 && info.Size() > limit {
		return nil, &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), limit),
		}
	}

	extractFn, err := s.lookup(path)
	if err != nil {
		return nil, MapError(err)
	}
	text, err := extractFn(path)
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/plain",
				Text:     text,
			},
		},
	}, nil
}

// handleDocumentList returns every indexed file as JSON.
func (s *Server) handleDocumentList(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	files, err := s.store.List(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	infos := make([]DocumentInfo, 0, len(files))
	for _, f := range files {
		infos = append(infos, DocumentInfo{
			URI:       documentURI(f.FilePath),
			FilePath:  f.FilePath,
			FileHash:  f.FileHash,
			MIMEType:  MimeTypeForPath(f.FilePath),
			Records:   f.Records,
			IndexedAt: f.IndexedAt,
		})
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      DocumentListURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}
