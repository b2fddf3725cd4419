package errors

import (
	"errors"
	"fmt"
	"io/fs"
)

// DocError is the structured error type for amandocs.
// It carries enough context for retry decisions, logging, and CLI display.
type DocError struct {
	// Code is the unique error code (e.g., "ERR_205_EXTRACTION_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *DocError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DocError) Unwrap() error {
	return e.Cause
}

// Is matches another DocError by code, so errors.Is works against
// sentinel values built with New.
func (e *DocError) Is(target error) bool {
	if t, ok := target.(*DocError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *DocError) WithDetail(key, value string) *DocError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *DocError) WithSuggestion(suggestion string) *DocError {
	e.Suggestion = suggestion
	return e
}

// New creates a new DocError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *DocError {
	return &DocError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a DocError from an existing error.
// The error's message becomes the DocError message.
func Wrap(code string, err error) *DocError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *DocError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates a file I/O error. Permission failures get their own code.
func IOError(message string, cause error) *DocError {
	if cause != nil && errors.Is(cause, fs.ErrPermission) {
		return New(ErrCodeFilePermission, message, cause)
	}
	return New(ErrCodeFileNotFound, message, cause)
}

// ExtractionError reports that text could not be extracted from a source file.
// The message is shown to users verbatim by the standalone extractor.
func ExtractionError(path, message string, cause error) *DocError {
	return New(ErrCodeExtractionFailed, message, cause).WithDetail("path", path)
}

// UnsupportedFormatError reports a file type with no registered extractor.
func UnsupportedFormatError(path, ext string) *DocError {
	return New(ErrCodeUnsupportedFormat, fmt.Sprintf("unsupported file type %q", ext), nil).
		WithDetail("path", path).
		WithSuggestion("Supported types: .txt .md .html .csv .docx .json .pdf")
}

// EmbeddingError reports an embedder failure. Embedding errors are retryable.
func EmbeddingError(message string, cause error) *DocError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// StoreIOError reports a document store failure for the given operation.
// Store I/O errors are fatal for that operation.
func StoreIOError(op, path string, cause error) *DocError {
	msg := fmt.Sprintf("document store %s failed", op)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return New(ErrCodeStoreIO, msg, cause).
		WithDetail("op", op).
		WithDetail("path", path)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *DocError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *DocError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *DocError {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first DocError in err's chain.
func As(err error) (*DocError, bool) {
	var de *DocError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsRetryable checks if an error (or anything it wraps) is retryable.
func IsRetryable(err error) bool {
	if de, ok := As(err); ok {
		return de.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if de, ok := As(err); ok {
		return de.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a DocError.
// Returns empty string if not a DocError.
func GetCode(err error) string {
	if de, ok := As(err); ok {
		return de.Code
	}
	return ""
}

// GetCategory extracts the category from a DocError.
func GetCategory(err error) Category {
	if de, ok := As(err); ok {
		return de.Category
	}
	return ""
}
