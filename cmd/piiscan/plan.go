package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/piiscan/internal/config"
	"github.com/koustreak/piiscan/internal/report"
	"github.com/koustreak/piiscan/internal/scanner"
	"github.com/spf13/cobra"
)

func newPlanCmd(configPath *string) *cobra.Command {
	var cf connFlags
	var sf scanFlags

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the strategy and table order a scan would use, without sampling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configPath, func(c *config.Config) {
				cf.apply(cmd, &c.Connection)
				sf.apply(cmd, c)
			})
			if err != nil {
				return err
			}
			log := newLogger(cmd, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			plan, err := scanner.New(log).Plan(ctx, cfg.Database(), cfg.ScanOptions())
			if err != nil {
				return err
			}

			format, err := report.ParseFormat(cfg.Report.Format)
			if err != nil {
				return err
			}
			if format == report.FormatTable {
				return report.WritePlanTable(cmd.OutOrStdout(), plan)
			}
			return report.WriteJSON(cmd.OutOrStdout(), plan)
		},
	}
	cf.AddFlags(cmd)
	sf.AddFlags(cmd, false)
	return cmd
}
