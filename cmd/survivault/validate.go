package main

import (
	"fmt"

	"github.com/spf13/cobra"

	validatesvc "github.com/secopshq/survivault/internal/service/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check referential integrity across the three ledgers",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		svc := validatesvc.NewService(a.tokens, a.agents, a.products, a.logger)
		report, err := svc.Run(cmd.Context())
		if err != nil {
			return err
		}
		if err := printJSON(report); err != nil {
			return err
		}
		if !report.OK() {
			return fmt.Errorf("validation failed: %d error(s)", len(report.Errors))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
