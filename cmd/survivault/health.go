package main

import (
	"github.com/spf13/cobra"

	"github.com/secopshq/survivault/internal/service/producthealth"
	"github.com/secopshq/survivault/internal/service/report"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Aggregate product health from current entity scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		svc := producthealth.NewService(a.tokens, a.agents, a.products, a.logger)
		results, err := svc.Run(cmd.Context())
		if err != nil {
			return err
		}

		w := report.NewWriter(a.cfg.Paths.ReportsDir, a.logger)
		if err := w.WriteProductReports(cmd.Context(), results); err != nil {
			return err
		}
		return printJSON(results)
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
