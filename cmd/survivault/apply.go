package main

import (
	"github.com/spf13/cobra"

	"github.com/secopshq/survivault/internal/service/remediation"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply pending remediation manifests and reconcile outcomes",
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

		svc := remediation.NewService(a.tokens, a.agents, a.manifests, a.githubClient(),
			pol, a.cfg.Pass.Approver, a.logger)
		summary, err := svc.Apply(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
}
