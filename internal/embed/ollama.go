package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

// OllamaEmbedder generates embeddings using Ollama's HTTP API.
// Transient failures surface as retryable errors; retrying is the caller's job.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	modelName string
	dims      int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates a new Ollama embedder, verifying the model is
// installed and detecting its dimension unless SkipHealthCheck is set.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}

	// Short idle timeout: CLI runs are short-lived.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// No client-level timeout; each request gets its own context deadline.
	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		name, err := e.findModel(checkCtx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
		e.modelName = name

		if e.dims == 0 {
			vecs, err := e.doEmbed(checkCtx, []string{"dimension probe"})
			if err != nil {
				transport.CloseIdleConnections()
				return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
			}
			e.dims = len(vecs[0])
		}
	}

	if e.dims == 0 {
		e.dims = DefaultDimensions
	}

	slog.Debug("ollama_embedder_ready",
		slog.String("host", cfg.Host),
		slog.String("model", e.modelName),
		slog.Int("dimensions", e.dims))

	return e, nil
}

// findModel resolves the configured model against installed models,
// accepting a match with or without the tag suffix.
func (e *OllamaEmbedder) findModel(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", unavailable(e.config.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var list OllamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", amerrors.EmbeddingError("failed to decode Ollama model list", err)
	}

	want := strings.ToLower(e.config.Model)
	wantBase := strings.Split(want, ":")[0]
	for _, m := range list.Models {
		name := strings.ToLower(m.Name)
		if name == want || strings.Split(name, ":")[0] == wantBase {
			return m.Name, nil
		}
	}

	return "", amerrors.New(amerrors.ErrCodeConfigInvalid,
		fmt.Sprintf("embedding model %q is not installed in Ollama", e.config.Model), nil).
		WithSuggestion(fmt.Sprintf("Run: ollama pull %s", e.config.Model))
}

// Embed generates embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings in BatchSize requests.
// Whitespace-only texts get a zero vector without a round trip.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	results := make([][]float32, len(texts))
	var idx []int
	var pending []string
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
			continue
		}
		idx = append(idx, i)
		pending = append(pending, text)
	}

	for start := 0; start < len(pending); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+e.config.BatchSize, len(pending))

		vecs, err := e.doEmbed(ctx, pending[start:end])
		if err != nil {
			return nil, err
		}
		for j, v := range vecs {
			if len(v) != e.dims {
				return nil, amerrors.New(amerrors.ErrCodeDimensionMismatch,
					fmt.Sprintf("model returned %d dimensions, expected %d", len(v), e.dims), nil)
			}
			results[idx[start+j]] = v
		}
	}

	return results, nil
}

// doEmbed performs one /api/embed request.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(OllamaEmbedRequest{Model: e.modelName, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, unavailable(e.config.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, amerrors.EmbeddingError("failed to decode Ollama response", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, amerrors.EmbeddingError(
			fmt.Sprintf("Ollama returned %d embeddings for %d inputs", len(out.Embeddings), len(texts)), nil)
	}

	vecs := make([][]float32, len(out.Embeddings))
	for i, v := range out.Embeddings {
		vecs[i] = toFloat32(v)
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the resolved model name.
func (e *OllamaEmbedder) ModelName() string {
	return e.modelName
}

// Available reports whether the Ollama API answers.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, OllamaConnectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

func unavailable(host string, err error) error {
	return amerrors.New(amerrors.ErrCodeNetworkUnavailable,
		fmt.Sprintf("cannot reach embedding service at %s", host), err).
		WithSuggestion("Is Ollama running? Start it with: ollama serve")
}

// statusError maps an HTTP failure: 5xx and 429 are retryable, other 4xx are not.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	de := amerrors.EmbeddingError(
		fmt.Sprintf("embedding request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), nil)
	if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		de.Retryable = false
	}
	return de
}
