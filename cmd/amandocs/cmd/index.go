package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/extract"
	"github.com/Aman-CERP/amandocs/internal/index"
	"github.com/Aman-CERP/amandocs/internal/output"
	"github.com/Aman-CERP/amandocs/internal/scanner"
	"github.com/Aman-CERP/amandocs/internal/ui"
)

type indexOptions struct {
	prune bool
	noTUI bool
}

func newIndexCmd(g *globalOptions) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index <path>",
		Short: "Index a file or folder",
		Long: `Index a single file or every supported file under a folder.

Unchanged files are skipped by content hash. Files that cannot be read or
embedded are reported and skipped; the run still succeeds.

Relative paths are resolved against the project directory (-C).

Examples:
  amandocs index notes/meeting.md
  amandocs index ~/Documents/papers
  amandocs index . --prune`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, g, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.prune, "prune", false, "Remove records for files that no longer exist under the folder")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Plain progress output even on a terminal")

	return cmd
}

// resolveTarget makes path absolute, relative to the project root.
func resolveTarget(root, path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return filepath.Clean(path)
}

func runIndex(ctx context.Context, cmd *cobra.Command, g *globalOptions, path string, opts indexOptions) error {
	a, err := openPipeline(ctx, g)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	target := resolveTarget(a.root, path)
	info, err := os.Stat(target)
	if err != nil {
		return amerrors.IOError(fmt.Sprintf("cannot access %s", target), err)
	}

	slog.Info("index_started", slog.String("path", target), slog.Bool("dir", info.IsDir()))

	if !info.IsDir() {
		return indexSingleFile(ctx, cmd, a, target)
	}
	return indexFolder(ctx, cmd, a, target, opts)
}

// indexSingleFile indexes one file. Extraction and embedding failures are
// reported but do not fail the command.
func indexSingleFile(ctx context.Context, cmd *cobra.Command, a *app, path string) error {
	out := output.New(cmd.OutOrStdout())

	fn, err := extract.ForPath(path)
	if err == nil {
		var indexed bool
		indexed, err = a.indexer.IndexFile(ctx, path, fn)
		if err == nil {
			if indexed {
				out.Successf("Indexed %s", path)
			} else {
				out.Statusf("=", "Unchanged %s", path)
			}
			return nil
		}
	}

	if amerrors.IsFatal(err) || ctx.Err() != nil {
		return err
	}
	printError(cmd.ErrOrStderr(), err)
	return nil
}

func indexFolder(ctx context.Context, cmd *cobra.Command, a *app, root string, opts indexOptions) error {
	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithRootDir(root),
	))
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "Scanning " + root})

	sc, err := scanner.New()
	if err != nil {
		return err
	}
	files, err := sc.Files(ctx, a.scanOptions(root))
	if err != nil {
		return err
	}

	jobs := make([]index.Job, 0, len(files))
	for _, f := range files {
		jobs = append(jobs, index.Job{Path: f.AbsPath})
	}

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageIndexing, Total: len(jobs)})

	result, err := a.indexer.IndexPaths(ctx, jobs, func(p index.Progress) {
		if p.Err != nil {
			renderer.AddError(ui.ErrorEvent{File: p.Path, Err: p.Err})
		}
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageIndexing,
			Current:     p.Done,
			Total:       p.Total,
			CurrentFile: p.Path,
			ETA:         p.ETA(),
		})
	})
	if err != nil {
		return err
	}

	var pruned []string
	if opts.prune {
		renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StagePruning, Message: "Removing deleted files"})
		if pruned, err = a.indexer.Prune(ctx, root); err != nil {
			return err
		}
	}

	stats := ui.CompletionStats{
		Files:     len(files),
		Indexed:   result.Indexed,
		Unchanged: result.Unchanged,
		Failed:    len(result.Failed),
		Pruned:    len(pruned),
		Duration:  result.Duration,
		Embedder: ui.EmbedderInfo{
			Backend:    a.cfg.Embeddings.Provider,
			Model:      a.embedder.ModelName(),
			Dimensions: a.embedder.Dimensions(),
		},
	}
	renderer.Complete(stats)

	slog.Info("index_complete",
		slog.String("root", root),
		slog.Int("files", stats.Files),
		slog.Int("indexed", stats.Indexed),
		slog.Int("unchanged", stats.Unchanged),
		slog.Int("failed", stats.Failed),
		slog.Int("pruned", stats.Pruned),
		slog.Duration("duration", stats.Duration))
	return nil
}
