package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sacha-rebbouh/optim-financials/internal/pipeline"
)

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect FILENAME...",
		Short: "Show the issuer and file type guessed from file names",
		Args:  cobra.MinimumNArgs(1),
		Run: func(ccmd *cobra.Command, args []string) {
			for _, name := range args {
				src := pipeline.DetectSource(name)
				fmt.Fprintf(ccmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", name, src.Key, src.Label, pipeline.FileTypeOf(name))
			}
		},
	}
}
