package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/pipeline"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ingest FILE...",
		Short:   "Parse, enrich and store local statement files",
		Example: "optim ingest --user=u1 isracard-03.xlsx releve-banque.csv",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(ccmd *cobra.Command, args []string) error {
			return withSetup(ccmd, func(ctx context.Context, e env) error {
				if e.user == "" {
					e.log.Warn().Msg("no --user given, transactions will not be stored")
				}
				return runBatch(ctx, ccmd, e.setup.Ingestor, e.user, args)
			})
		},
	}
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse FILE...",
		Short: "Parse and enrich statement files without storing anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(ccmd *cobra.Command, args []string) error {
			return withSetup(ccmd, func(ctx context.Context, e env) error {
				return runBatch(ctx, ccmd, e.setup.Ingestor, "", args)
			})
		},
	}
}

// runBatch ingests the files in order and prints one summary per file.
func runBatch(ctx context.Context, ccmd *cobra.Command, ingestor *pipeline.Ingestor, userID string, paths []string) error {
	files := make([]pipeline.FileInput, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		files = append(files, pipeline.FileInput{Filename: filepath.Base(p), Data: data, UserID: userID})
	}

	summaries, batchErr := ingestor.IngestBatch(ctx, files)
	if err := printJSON(ccmd.OutOrStdout(), struct {
		Results []domain.IngestSummary `json:"results"`
	}{summaries}); err != nil {
		return err
	}
	return batchErr
}
