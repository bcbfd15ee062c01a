// Package cmd holds the optim command line: local ingestion, dry-run
// parsing, uploads and duplicate maintenance.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sacha-rebbouh/optim-financials/cmd/setup"
	"github.com/sacha-rebbouh/optim-financials/internal/config"
	"github.com/sacha-rebbouh/optim-financials/internal/logger"
)

const (
	flagConfig  = "config"
	flagTimeout = "timeout"
	flagUser    = "user"
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the optim command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "optim",
		Short:         "Ingest credit card and bank statements",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().String(flagConfig, config.DefaultName, "config file name without the .env extension")
	root.PersistentFlags().Duration(flagTimeout, 5*time.Minute, "overall timeout of the command")
	root.PersistentFlags().String(flagUser, "", "id of the user the command acts for")

	root.AddCommand(
		newIngestCmd(),
		newParseCmd(),
		newUploadCmd(),
		newConsolidateCmd(),
		newCleanupCmd(),
		newDetectCmd(),
	)
	return root
}

// env is what a command needs once the service is wired.
type env struct {
	setup *setup.Setup
	log   zerolog.Logger
	user  string
}

// withSetup loads the configuration, wires the service and runs fn under
// the command timeout.
func withSetup(ccmd *cobra.Command, fn func(ctx context.Context, e env) error) error {
	configName, _ := ccmd.Flags().GetString(flagConfig)
	timeout, _ := ccmd.Flags().GetDuration(flagTimeout)
	user, _ := ccmd.Flags().GetString(flagUser)

	cfg, err := config.LoadConfig(configName)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logger.NewWithWriter(ccmd.ErrOrStderr())
	if lvl, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		log = log.Level(lvl)
	}

	ctx, cancel := context.WithTimeout(ccmd.Context(), timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	s, stoppers, err := setup.Init(ctx, cfg, log)
	defer func() {
		if err := setup.Stop(context.Background(), stoppers); err != nil {
			log.Warn().Err(err).Msg("releasing resources failed")
		}
	}()
	if err != nil {
		return err
	}

	return fn(ctx, env{setup: s, log: log, user: user})
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
