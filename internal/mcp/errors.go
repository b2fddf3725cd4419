// Package mcp serves the document index over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeStoreUnavailable indicates the document store cannot be read or written.
	ErrCodeStoreUnavailable = -32001

	// ErrCodeEmbeddingFailed indicates embedding generation failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a file does not exist on disk.
	ErrCodeFileNotFound = -32004

	// ErrCodeFileTooLarge indicates a file exceeds the size cap.
	ErrCodeFileTooLarge = -32005

	// ErrCodeExtractionFailed indicates text could not be read from a file.
	ErrCodeExtractionFailed = -32006

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	if de, ok := amerrors.As(err); ok {
		return mapDocError(de)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// mapDocError converts a DocError to an MCPError, keeping its suggestion.
func mapDocError(de *amerrors.DocError) *MCPError {
	message := de.Message
	if de.Suggestion != "" {
		message = fmt.Sprintf("%s %s", de.Message, de.Suggestion)
	}

	switch de.Code {
	case amerrors.ErrCodeFileNotFound:
		return &MCPError{Code: ErrCodeFileNotFound, Message: message}
	case amerrors.ErrCodeFileTooLarge:
		return &MCPError{Code: ErrCodeFileTooLarge, Message: message}
	case amerrors.ErrCodeExtractionFailed:
		return &MCPError{Code: ErrCodeExtractionFailed, Message: message}
	case amerrors.ErrCodeUnsupportedFormat:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case amerrors.ErrCodeStoreIO, amerrors.ErrCodeStoreCorrupt:
		return &MCPError{Code: ErrCodeStoreUnavailable, Message: message}
	case amerrors.ErrCodeEmbeddingFailed:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	}

	switch de.Category {
	case amerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case amerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
