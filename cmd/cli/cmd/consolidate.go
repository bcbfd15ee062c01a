package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var errNoUser = errors.New("--user is required")

func newConsolidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consolidate",
		Short: "Report duplicate transactions of a user",
		Args:  cobra.NoArgs,
		RunE: func(ccmd *cobra.Command, _ []string) error {
			return withSetup(ccmd, func(ctx context.Context, e env) error {
				if e.user == "" {
					return errNoUser
				}
				stats, err := e.setup.Consolidator.Stats(ctx, e.user)
				if err != nil {
					return err
				}
				return printJSON(ccmd.OutOrStdout(), stats)
			})
		},
	}
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete duplicate transactions of a user, keeping the earliest of each",
		Args:  cobra.NoArgs,
		RunE: func(ccmd *cobra.Command, _ []string) error {
			return withSetup(ccmd, func(ctx context.Context, e env) error {
				if e.user == "" {
					return errNoUser
				}
				deleted, err := e.setup.Consolidator.Cleanup(ctx, e.user)
				if err != nil {
					return err
				}
				return printJSON(ccmd.OutOrStdout(), map[string]int{"deleted": deleted})
			})
		},
	}
}
