package main

import (
	"github.com/spf13/cobra"

	"github.com/secopshq/survivault/internal/service/remediation"
)

var healCmd = &cobra.Command{
	Use:   "heal",
	Short: "Evaluate policy and stage remediation manifests",
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
		summary, err := svc.Detect(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

func init() {
	rootCmd.AddCommand(healCmd)
}
