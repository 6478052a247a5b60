package main

import (
	"fmt"

	"github.com/ds124wfegd/imagecaption/internal/appServer"
	"github.com/ds124wfegd/imagecaption/internal/pkg/models"
	"github.com/ds124wfegd/imagecaption/internal/pkg/projector"
	"github.com/ds124wfegd/imagecaption/internal/pkg/storage"
	"github.com/spf13/cobra"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage model artifacts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Write the projector weights in use to the model directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store := storage.NewFileStorage(cfg.Models.Dir)
			set, err := models.Load(appServer.ModelsConfig(cfg), store)
			if err != nil {
				return err
			}
			defer set.Close()

			if err := models.ExportProjector(set, store); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", store.Path(projector.WeightsFile))
			return nil
		},
	})

	return cmd
}
