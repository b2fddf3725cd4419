package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Aman-CERP/amandocs/internal/config"
	"github.com/Aman-CERP/amandocs/internal/embed"
	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/extract"
	"github.com/Aman-CERP/amandocs/internal/hash"
	"github.com/Aman-CERP/amandocs/internal/index"
	"github.com/Aman-CERP/amandocs/internal/scanner"
	"github.com/Aman-CERP/amandocs/internal/search"
	"github.com/Aman-CERP/amandocs/internal/store"
)

// app owns the collaborators of one command invocation. Commands that only
// read or delete records open the store alone; the rest add the pipeline.
type app struct {
	root    string
	dataDir string
	cfg     *config.Config
	store   *store.SQLiteStore

	embedder embed.Embedder
	indexer  *index.Indexer
	engine   *search.Engine
}

// loadProject resolves the project directory and loads its configuration.
func loadProject(dir string) (string, *config.Config, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, amerrors.ConfigError(err.Error(), err).
			WithSuggestion("Check .amandocs.yaml or run 'amandocs config show'")
	}
	return root, cfg, nil
}

// storeConfig maps the [store] config section onto store.Config.
func storeConfig(cfg *config.Config) store.Config {
	sc := store.DefaultConfig()
	sc.Metric = cfg.Store.Metric
	sc.M = cfg.Store.M
	sc.EfSearch = cfg.Store.EfSearch
	return sc
}

// openStore loads the project config and opens its document store.
func openStore(g *globalOptions) (*app, error) {
	root, cfg, err := loadProject(g.dir)
	if err != nil {
		return nil, err
	}

	dataDir := cfg.DataDirFor(root)
	st, err := store.Open(dataDir, storeConfig(cfg))
	if err != nil {
		return nil, err
	}

	return &app{root: root, dataDir: dataDir, cfg: cfg, store: st}, nil
}

// openPipeline opens the store plus the embedder, indexer and search engine.
func openPipeline(ctx context.Context, g *globalOptions) (*app, error) {
	a, err := openStore(g)
	if err != nil {
		return nil, err
	}
	if err := a.initPipeline(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) initPipeline(ctx context.Context) error {
	embedder, err := newEmbedder(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.embedder = embedder

	hasher, err := hash.New(a.cfg.Store.Hash)
	if err != nil {
		return amerrors.ConfigError(err.Error(), err)
	}

	a.indexer, err = index.New(a.store, embedder, hasher,
		index.WithPreviewChars(a.cfg.Search.PreviewChars),
		index.WithMaxRetries(a.cfg.Embeddings.MaxRetries),
		index.WithWorkers(a.cfg.Performance.IndexWorkers),
	)
	if err != nil {
		return err
	}

	a.engine, err = search.New(a.store, embedder,
		search.WithDefaultLimit(a.cfg.Search.DefaultLimit),
		search.WithOversample(a.cfg.Search.Oversample),
		search.WithRetry(amerrors.EmbeddingRetryConfig(a.cfg.Embeddings.MaxRetries)),
	)
	return err
}

// newEmbedder builds the configured embedder.
func newEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	provider, err := embed.ParseProvider(cfg.Embeddings.Provider)
	if err != nil {
		return nil, amerrors.ConfigError(err.Error(), err)
	}

	embedder, err := embed.NewEmbedder(ctx, embed.Options{
		Provider:      provider,
		Model:         cfg.Embeddings.Model,
		Dimensions:    cfg.Embeddings.Dimensions,
		Timeout:       cfg.EmbedTimeout(),
		OllamaHost:    cfg.Embeddings.OllamaHost,
		OpenAIBaseURL: cfg.Embeddings.OpenAIBaseURL,
		OpenAIAPIKey:  cfg.Embeddings.OpenAIAPIKey,
		CacheSize:     cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return nil, amerrors.EmbeddingError(err.Error(), err).
			WithSuggestion("Check the embeddings section of your config, or use provider 'static' offline")
	}
	return embedder, nil
}

// scanOptions builds crawl options for root from the [paths] config.
func (a *app) scanOptions(root string) *scanner.ScanOptions {
	return &scanner.ScanOptions{
		RootDir:          root,
		IncludePatterns:  a.cfg.Paths.Include,
		ExcludePatterns:  a.cfg.Paths.Exclude,
		RespectGitignore: true,
		MaxFileSize:      a.cfg.MaxFileSize(),
		Supports:         extract.Supports,
	}
}

// Close releases everything the app opened.
func (a *app) Close() error {
	var errs []error
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
