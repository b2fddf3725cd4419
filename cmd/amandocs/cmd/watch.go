package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/output"
	"github.com/Aman-CERP/amandocs/internal/scanner"
	"github.com/Aman-CERP/amandocs/internal/watcher"
)

type watchOptions struct {
	noInitial bool
	polling   bool
}

func newWatchCmd(g *globalOptions) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Keep the index in sync with a folder",
		Long: `Index a folder, then watch it and apply changes as they happen:
created or modified files are re-indexed, deleted or renamed-away files are
removed from the index. Runs until interrupted.

dir defaults to the project directory (-C).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			err := runWatch(cmd.Context(), cmd, g, dir, opts)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.noInitial, "no-initial", false, "Skip the initial index pass")
	cmd.Flags().BoolVar(&opts.polling, "polling", false, "Poll for changes instead of using file system notifications")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, g *globalOptions, dir string, opts watchOptions) error {
	a, err := openPipeline(ctx, g)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	root := resolveTarget(a.root, dir)
	if info, err := os.Stat(root); err != nil {
		return amerrors.IOError(fmt.Sprintf("cannot access %s", root), err)
	} else if !info.IsDir() {
		return amerrors.ValidationError(fmt.Sprintf("%s is not a directory", root), nil)
	}

	if !opts.noInitial {
		if err := indexFolder(ctx, cmd, a, root, indexOptions{prune: true, noTUI: true}); err != nil {
			return err
		}
	}

	sc, err := scanner.New()
	if err != nil {
		return err
	}
	scanOpts := a.scanOptions(root)

	w, err := watcher.New(watcher.Options{
		DebounceWindow: a.cfg.WatchDebounce(),
		ForcePolling:   opts.polling,
		SkipDir: func(absDir string) bool {
			return absDir == a.dataDir || sc.SkipDir(scanOpts, absDir)
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	syncer := watcher.NewSyncer(a.indexer, func(absPath string) bool {
		_, ok := sc.Accept(scanOpts, absPath)
		return ok
	})

	output.New(cmd.OutOrStdout()).Statusf("👀", "Watching %s (%s). Press Ctrl+C to stop.", root, w.Type())
	slog.Info("watch_running", slog.String("root", root), slog.String("type", w.Type()))

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return w.Start(gctx, root)
	})
	grp.Go(func() error {
		err := syncer.Run(gctx, w)
		_ = w.Stop()
		return err
	})

	return grp.Wait()
}
