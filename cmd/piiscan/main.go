package main

import (
	"fmt"
	"os"

	"github.com/koustreak/piiscan/internal/errs"
	"github.com/spf13/cobra"

	_ "github.com/koustreak/piiscan/internal/database/engines"
)

// Exit codes.
const (
	exitOK        = 0
	exitError     = 1
	exitUsage     = 2
	exitCancelled = 130
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "piiscan",
		Short:         "Scan databases for personal data and compliance risk",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (PIISCAN_* env vars override it)")
	root.PersistentFlags().String("log-level", "", "debug|info|warn|error")
	root.PersistentFlags().String("log-format", "", "json|console")

	root.AddCommand(newScanCmd(&configPath))
	root.AddCommand(newPlanCmd(&configPath))
	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newClassifyHostCmd())
	root.AddCommand(newEnginesCmd())
	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch errs.KindOf(err) {
	case errs.ErrKindCancelled:
		return exitCancelled
	case errs.ErrKindInvalidInput, errs.ErrKindUnsupported:
		return exitUsage
	default:
		return exitError
	}
}
