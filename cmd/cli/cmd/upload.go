package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sacha-rebbouh/optim-financials/internal/gcsuploader"
)

const flagObject = "object"

func newUploadCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a statement file to the attachment bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(ccmd *cobra.Command, args []string) error {
			object, _ := ccmd.Flags().GetString(flagObject)
			return withSetup(ccmd, func(ctx context.Context, e env) error {
				if e.setup.Blobs == nil {
					return errors.New("no storage bucket configured (GCS_BUCKET)")
				}
				if object == "" {
					object = gcsuploader.ObjectName(e.user, filepath.Base(args[0]), time.Now())
				}

				uri, err := e.setup.Blobs.UploadFile(ctx, object, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(ccmd.OutOrStdout(), uri)
				return nil
			})
		},
	}
	c.Flags().String(flagObject, "", "object name (defaults to uploads/<user>/<yyyy>/<mm>/<uuid>-<file>)")
	return c
}
