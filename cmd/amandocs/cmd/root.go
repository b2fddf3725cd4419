// Package cmd provides the CLI commands for amandocs.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/logging"
	"github.com/Aman-CERP/amandocs/pkg/version"
)

// annotationOwnLogging marks commands that configure logging themselves.
const annotationOwnLogging = "own-logging"

// globalOptions holds persistent flags shared by every subcommand.
type globalOptions struct {
	dir   string
	debug bool

	loggingCleanup func()
}

// NewRootCmd creates the root command for the amandocs CLI.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "amandocs",
		Short: "Local semantic search over your documents",
		Long: `amandocs indexes plain text, Markdown, HTML, CSV, JSON, DOCX and PDF
files into a local vector store and answers natural-language queries with
the closest documents, one result per file.

Everything runs locally. The index lives in .amandocs/ next to your files.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("amandocs version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&g.dir, "dir", "C", ".", "Project directory holding the config and .amandocs/ index")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging (also mirrored to stderr)")

	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		if c.Annotations[annotationOwnLogging] == "true" {
			return nil
		}
		cfg := logging.DefaultConfig()
		if g.debug {
			cfg = logging.DebugConfig()
		}
		return g.setupLogging(cfg)
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		g.stopLogging()
		return nil
	}

	cmd.AddCommand(newIndexCmd(g))
	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newDeleteCmd(g))
	cmd.AddCommand(newCountCmd(g))
	cmd.AddCommand(newListCmd(g))
	cmd.AddCommand(newResetCmd(g))
	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newWatchCmd(g))
	cmd.AddCommand(newStatusCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging installs a file logger as the slog default. A logger that
// cannot be created is not fatal: records are discarded instead.
func (g *globalOptions) setupLogging(cfg logging.Config) error {
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return nil
	}
	slog.SetDefault(logger)
	g.loggingCleanup = cleanup
	slog.Debug("logging_started", slog.String("log_file", cfg.FilePath), slog.String("version", version.Version))
	return nil
}

func (g *globalOptions) stopLogging() {
	if g.loggingCleanup != nil {
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
}

// printError writes err for a terminal user. Typed errors carry a code and hint.
func printError(w io.Writer, err error) {
	if _, ok := amerrors.As(err); ok {
		fmt.Fprint(w, amerrors.FormatForCLI(err))
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

// Execute runs the root command. Errors are printed once, in CLI form.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		printError(os.Stderr, err)
	}
	return err
}
