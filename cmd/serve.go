package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"structured-router/internal/server"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			if overridePort := v.GetInt(keyPort); overridePort != 0 {
				if overridePort < 0 || overridePort > 65535 {
					return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
				}
				cfg.Server.Port = overridePort
			}

			rt, err := buildRouter(ctx, cfg)
			if err != nil {
				return err
			}

			srv, err := server.New(cfg, rt)
			if err != nil {
				return err
			}

			return srv.Run(ctx)
		},
	}

	cmd.Flags().Int(keyPort, 0, "override server port from configuration")
	_ = v.BindPFlag(keyPort, cmd.Flags().Lookup(keyPort))
	return cmd
}
