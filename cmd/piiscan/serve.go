package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/piiscan/internal/config"
	"github.com/koustreak/piiscan/internal/scanner"
	"github.com/koustreak/piiscan/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configPath, func(c *config.Config) {
				if cmd.Flags().Changed("addr") {
					c.Server.Addr = addr
				}
			})
			if err != nil {
				return err
			}
			log := newLogger(cmd, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(scanner.New(log), log, server.Config{
				ScanTimeout:        cfg.Server.ScanTimeout,
				MaxConcurrentScans: cfg.Server.MaxConcurrentScans,
			})
			if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
				return err
			}
			log.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}
