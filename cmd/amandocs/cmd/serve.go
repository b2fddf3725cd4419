package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandocs/internal/logging"
	"github.com/Aman-CERP/amandocs/internal/mcp"
)

type serveOptions struct {
	transport string
	addr      string
}

func newServeCmd(g *globalOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index over the Model Context Protocol",
		Long: `Start an MCP server exposing the search, index_file, delete_file and
count tools, plus every indexed file as a resource.

File tools are confined to the project directory (-C). With the default
stdio transport nothing but protocol traffic is written to stdout; logs go
to ~/.amandocs/logs/amandocs.log.

Examples:
  amandocs serve
  amandocs -C ~/Documents serve --transport http --addr 127.0.0.1:8765`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationOwnLogging: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openPipeline(ctx, g)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			level := a.cfg.Server.LogLevel
			if g.debug {
				level = "debug"
			}
			if err := g.setupLogging(logging.ServerConfig(level)); err != nil {
				return err
			}

			srv, err := mcp.NewServer(a.engine, a.indexer, a.store, a.cfg, a.root)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Close() }()

			if err := srv.RegisterResources(ctx); err != nil {
				slog.Warn("mcp_resources_failed", slog.String("error", err.Error()))
			}

			return srv.Serve(ctx, opts.transport, opts.addr)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", mcp.TransportStdio, "Transport: stdio or http")
	cmd.Flags().StringVar(&opts.addr, "addr", "127.0.0.1:8765", "Listen address for the http transport")

	return cmd
}
