package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// PDFTool is the external converter used for PDFs (poppler-utils).
const PDFTool = "pdftotext"

// DefaultPDFTimeout bounds a single pdftotext run.
const DefaultPDFTimeout = 2 * time.Minute

// ErrPDFToolNotFound is returned when pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH (install poppler-utils)")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		if name == PDFTool {
			return nil, ErrPDFToolNotFound
		}
		return nil, err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s failed: %s", name, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	return out, nil
}

// PDF extracts text from every page, in order.
type PDF struct {
	runner  CommandRunner
	timeout time.Duration
}

// NewPDF creates a PDF extractor. A nil runner uses ExecRunner.
func NewPDF(runner CommandRunner) *PDF {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PDF{runner: runner, timeout: DefaultPDFTimeout}
}

// Extract implements Func.
func (p *PDF) Extract(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", readError(path, "PDF", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	out, err := p.runner.Run(ctx, PDFTool, "-enc", "UTF-8", "-q", path, "-")
	if err != nil {
		return "", readError(path, "PDF", err)
	}

	// pdftotext ends each page with a form feed.
	text := strings.ReplaceAll(string(out), "\f", "")
	return strings.TrimSpace(strings.ToValidUTF8(text, "�")), nil
}
