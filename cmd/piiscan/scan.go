package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/piiscan/internal/config"
	"github.com/koustreak/piiscan/internal/errs"
	"github.com/koustreak/piiscan/internal/filestore/minio"
	"github.com/koustreak/piiscan/internal/logger"
	"github.com/koustreak/piiscan/internal/report"
	"github.com/koustreak/piiscan/internal/scanner"
	"github.com/spf13/cobra"
)

func newScanCmd(configPath *string) *cobra.Command {
	var cf connFlags
	var sf scanFlags

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Sample the highest-priority tables and report personal data",
		Example: `  piiscan scan --engine postgres --host db.internal --database crm --user auditor
  piiscan scan --dsn "root:secret@tcp(127.0.0.1:3306)/shop" --engine mysql --mode fast --format table
  piiscan scan --config piiscan.yaml --out reports/crm.json --upload`,
		Args: cobra.NoArgs,
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

			res, err := scanner.New(log).Scan(ctx, cfg.Database(), cfg.ScanOptions())
			if err != nil {
				return err
			}
			if err := writeResult(cmd, cfg, res); err != nil {
				return err
			}
			if cfg.Report.Upload {
				// The upload outlives a cancelled scan so the partial report is kept.
				if err := upload(context.WithoutCancel(ctx), cmd, cfg, log, res); err != nil {
					return err
				}
			}
			if res.Cancelled {
				return errs.New(errs.ErrKindCancelled, "scan cancelled, report is partial")
			}
			return nil
		},
	}
	cf.AddFlags(cmd)
	sf.AddFlags(cmd, true)
	return cmd
}

func writeResult(cmd *cobra.Command, cfg *config.Config, res *scanner.Result) error {
	if cfg.Report.Output != "" {
		if err := report.WriteFile(cfg.Report.Output, res); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "report written to %s\n", cfg.Report.Output)
	}

	format, err := report.ParseFormat(cfg.Report.Format)
	if err != nil {
		return err
	}
	switch {
	case format == report.FormatTable:
		return report.WriteTable(cmd.OutOrStdout(), res)
	case cfg.Report.Output == "":
		return report.WriteJSON(cmd.OutOrStdout(), res)
	default:
		fmt.Fprintf(cmd.ErrOrStderr(), "risk score %d, compliance %.1f%%, %s\n",
			res.RiskScore, res.ComplianceScore, report.SeverityCounts(res))
		return nil
	}
}

func upload(ctx context.Context, cmd *cobra.Command, cfg *config.Config, log *logger.Logger, res *scanner.Result) error {
	fc := cfg.FileStore()
	store, err := minio.New(ctx, fc)
	if err != nil {
		return err
	}
	defer store.Close()

	url, err := report.Upload(ctx, store, fc.Bucket, fc.Prefix, fc.TTL(), res)
	if err != nil {
		return err
	}
	log.InfoWith("report uploaded", map[string]interface{}{
		"bucket": fc.Bucket,
		"key":    report.Key(res),
	})
	fmt.Fprintf(cmd.ErrOrStderr(), "report uploaded: %s\n", url)
	return nil
}
