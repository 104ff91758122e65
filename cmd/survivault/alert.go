package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/secopshq/survivault/internal/service/alerting"
	scoringsvc "github.com/secopshq/survivault/internal/service/scoring"
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Send the alert digest built from the latest health report",
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

		path := filepath.Join(a.cfg.Paths.ReportsDir, "token_health.json")
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("no health report at %s, run `survivault score` first: %w", path, err)
		}
		var results []scoringsvc.Result
		if err := json.Unmarshal(raw, &results); err != nil {
			return fmt.Errorf("parsing health report %s: %w", path, err)
		}

		svc := alerting.NewService(a.notifier(), pol.Risk.CriticalThreshold, a.cfg.Paths.AlertLog, a.logger)
		summary, err := svc.Run(cmd.Context(), results, nil)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"total":     summary.Total,
			"healthy":   summary.Healthy,
			"degrading": summary.Degrading,
			"critical":  summary.Critical,
			"avg_score": summary.AvgScore,
			"alerts":    len(summary.Alerts),
		})
	},
}

func init() {
	rootCmd.AddCommand(alertCmd)
}
