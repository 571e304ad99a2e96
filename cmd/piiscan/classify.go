package main

import (
	"fmt"

	"github.com/koustreak/piiscan/internal/cloud"
	"github.com/koustreak/piiscan/internal/database"
	"github.com/koustreak/piiscan/internal/report"
	"github.com/spf13/cobra"
)

func newClassifyHostCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify-host HOST",
		Short: "Print the hosting provider, region and jurisdiction of a database host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info := cloud.ClassifyHost(args[0])
			if asJSON {
				return report.WriteJSON(cmd.OutOrStdout(), info)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "provider:     %s\n", info.Provider)
			fmt.Fprintf(w, "service:      %s\n", info.Service)
			if info.Region != "" {
				fmt.Fprintf(w, "region:       %s\n", info.Region)
			}
			fmt.Fprintf(w, "jurisdiction: %s\n", info.Jurisdiction)
			fmt.Fprintf(w, "note:         %s\n", info.ComplianceNote)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newEnginesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List the database engines compiled into this binary",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, e := range database.Engines() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t(default port %d)\n", e, e.DefaultPort())
			}
		},
	}
}
