package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandocs/internal/output"
)

func newDeleteCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>",
		Short: "Remove a file's records from the index",
		Long: `Remove every record stored for a file. The file on disk is not touched.

Deleting a path that was never indexed is not an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStore(g)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			path := resolveTarget(a.root, args[0])
			n, err := a.store.DeleteByPath(cmd.Context(), path)
			if err != nil {
				return err
			}

			slog.Info("delete_complete", slog.String("path", path), slog.Int("records", n))

			out := output.New(cmd.OutOrStdout())
			if n == 0 {
				out.Statusf("=", "Nothing indexed for %s", path)
				return nil
			}
			out.Successf("Deleted %d record(s) for %s", n, path)
			return nil
		},
	}
}

func newCountCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of indexed records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openStore(g)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.store.Count(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
}

func newListCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed files",
		Long:  `List every indexed file with its content hash prefix and the time it was indexed.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openStore(g)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			files, err := a.store.List(cmd.Context())
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).FileList(files)
			return nil
		},
	}
}

func newResetCmd(g *globalOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every record in the index",
		Long: `Drop the whole document collection. The next index run starts from an
empty store and may use a different embedding dimension.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openStore(g)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := output.New(cmd.OutOrStdout())
			if !yes && !confirm(cmd, fmt.Sprintf("Delete every record in %s? [y/N] ", a.store.Path())) {
				out.Status("=", "Aborted")
				return nil
			}

			if err := a.store.Reset(cmd.Context()); err != nil {
				return err
			}
			slog.Info("index_reset", slog.String("data_dir", a.dataDir))
			out.Success("Index reset")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

// confirm asks a yes/no question on the command's input.
func confirm(cmd *cobra.Command, prompt string) bool {
	_, _ = fmt.Fprint(cmd.OutOrStdout(), prompt)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
