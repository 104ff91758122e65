package main

import (
	"github.com/spf13/cobra"

	"github.com/secopshq/survivault/internal/service/report"
	scoringsvc "github.com/secopshq/survivault/internal/service/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Re-score every credential and agent, then render reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		pol, err := a.loadPolicy()
		if err != nil {
			return err
		}

		svc := scoringsvc.NewService(a.tokens, a.agents, pol, a.logger, a.cfg.Pass.Workers)
		results, err := svc.Run(cmd.Context())
		if err != nil {
			return err
		}

		w := report.NewWriter(a.cfg.Paths.ReportsDir, a.logger)
		if err := w.WriteEntityReports(cmd.Context(), results); err != nil {
			return err
		}
		return printJSON(results)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}
