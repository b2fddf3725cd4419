package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/output"
	"github.com/Aman-CERP/amandocs/internal/search"
)

type searchOptions struct {
	json bool
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query> [limit]",
		Short: "Find the documents closest to a query",
		Long: `Search the index with a natural-language query.

Results are ranked by vector distance, closest first, with at most one
result per file. limit defaults to search.default_limit (10).

Examples:
  amandocs search "quarterly revenue forecast"
  amandocs search "onboarding checklist" 3
  amandocs search "vector databases" --json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit := 0
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil {
					return amerrors.ValidationError(fmt.Sprintf("limit must be an integer, got %q", args[1]), err)
				}
				limit = n
			}
			return runSearch(cmd.Context(), cmd, g, args[0], limit, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, g *globalOptions, query string, limit int, opts searchOptions) error {
	a, err := openPipeline(ctx, g)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	results, err := a.engine.Search(ctx, query, limit)
	if err != nil {
		return err
	}

	slog.Info("search_complete", slog.String("query", query), slog.Int("results", len(results)))

	if opts.json {
		if results == nil {
			results = []search.Result{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	output.New(cmd.OutOrStdout()).SearchResults(results, a.cfg.Search.PreviewChars)
	return nil
}
