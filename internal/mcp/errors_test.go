package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"file not found", amerrors.IOError("cannot read a.txt", errors.New("no such file")), ErrCodeFileNotFound, "cannot read a.txt"},
		{"too large", amerrors.New(amerrors.ErrCodeFileTooLarge, "too big", nil), ErrCodeFileTooLarge, "too big"},
		{"extraction", amerrors.ExtractionError("a.pdf", "Error reading PDF: bad xref", nil), ErrCodeExtractionFailed, "Error reading PDF"},
		{"unsupported", amerrors.UnsupportedFormatError("a.png", ".png"), ErrCodeInvalidParams, "Supported types"},
		{"store", amerrors.StoreIOError("upsert", "db", errors.New("full")), ErrCodeStoreUnavailable, "document store upsert failed"},
		{"corrupt", amerrors.New(amerrors.ErrCodeStoreCorrupt, "corrupt", nil), ErrCodeStoreUnavailable, "corrupt"},
		{"embedding", amerrors.EmbeddingError("model down", nil), ErrCodeEmbeddingFailed, "model down"},
		{"empty query", amerrors.New(amerrors.ErrCodeQueryEmpty, "query is empty", nil), ErrCodeInvalidParams, "query is empty"},
		{"network", amerrors.NetworkError("timeout", nil), ErrCodeTimeout, "timeout"},
		{"config", amerrors.ConfigError("bad", nil), ErrCodeInternalError, "bad"},
		{"wrapped doc error", fmt.Errorf("outer: %w", amerrors.EmbeddingError("inner", nil)), ErrCodeEmbeddingFailed, "inner"},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout, "timed out"},
		{"canceled", context.Canceled, ErrCodeTimeout, "canceled"},
		{"plain", errors.New("secret internals"), ErrCodeInternalError, "Internal server error."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)

			assert.Equal(t, tt.code, got.Code)
			assert.Contains(t, got.Message, tt.msg)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_PassesThroughMCPError(t *testing.T) {
	orig := NewInvalidParamsError("bad path")

	got := MapError(fmt.Errorf("wrap: %w", orig))

	assert.Same(t, orig, got)
}

func TestMapError_AppendsSuggestion(t *testing.T) {
	err := amerrors.EmbeddingError("model down", nil).WithSuggestion("Start Ollama.")

	got := MapError(err)

	assert.Equal(t, "model down Start Ollama.", got.Message)
}

func TestMapError_HidesPlainErrorText(t *testing.T) {
	got := MapError(errors.New("open /home/user/.secret: permission denied"))

	assert.NotContains(t, got.Message, "/home/user")
}

func TestMCPError_Error(t *testing.T) {
	assert.Equal(t, "MCP error -32602: bad", NewInvalidParamsError("bad").Error())
	assert.Contains(t, NewMethodNotFoundError("grep").Message, "'grep'")
}
