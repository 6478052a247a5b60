package main

import (
	"github.com/ds124wfegd/imagecaption/internal/appServer"
	"github.com/spf13/cobra"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP captioning API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}
			appServer.NewServer(cfg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "Override the listen port")
	return cmd
}
