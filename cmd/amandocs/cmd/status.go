package cmd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandocs/internal/ui"
)

// embedderProbeTimeout bounds the availability check of a remote embedder.
const embedderProbeTimeout = 3 * time.Second

func newStatusCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and embedder status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openStore(g)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			info, err := collectStatus(ctx, a)
			if err != nil {
				return err
			}

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}

func collectStatus(ctx context.Context, a *app) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		DataDir:      a.dataDir,
		Metric:       a.cfg.Store.Metric,
		EmbedderType: a.cfg.Embeddings.Provider,
	}

	files, err := a.store.List(ctx)
	if err != nil {
		return info, err
	}
	info.Files = len(files)
	for _, f := range files {
		info.Records += f.Records
		if f.IndexedAt.After(info.LastIndexed) {
			info.LastIndexed = f.IndexedAt
		}
	}
	info.Dimensions = a.store.Dimensions()

	for _, suffix := range []string{"", "-wal", "-shm"} {
		if st, err := os.Stat(a.store.Path() + suffix); err == nil {
			info.StoreSize += st.Size()
		}
	}

	info.EmbedderStatus = "offline"
	embedder, err := newEmbedder(ctx, a.cfg)
	if err != nil {
		slog.Debug("status_embedder_unavailable", slog.String("error", err.Error()))
		return info, nil
	}
	defer func() { _ = embedder.Close() }()

	info.EmbedderModel = embedder.ModelName()
	probeCtx, cancel := context.WithTimeout(ctx, embedderProbeTimeout)
	defer cancel()
	if embedder.Available(probeCtx) {
		info.EmbedderStatus = "ready"
	}
	return info, nil
}
