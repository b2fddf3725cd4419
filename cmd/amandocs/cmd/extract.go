package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/extract"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the text extracted from a file",
		Long: `Print the text amandocs would embed for a file.

When extraction fails the reason is printed instead and the command still
exits 0.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			text, err := extract.DefaultRegistry().Extract(args[0])
			if err != nil {
				if e, ok := amerrors.As(err); ok {
					_, err = fmt.Fprintln(out, e.Message)
					return err
				}
				_, err = fmt.Fprintln(out, err.Error())
				return err
			}

			_, err = fmt.Fprintln(out, text)
			return err
		},
	}
}
