package main

import (
	"github.com/spf13/cobra"

	syncsvc "github.com/secopshq/survivault/internal/service/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Seed the credential ledger from the org member directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		svc := syncsvc.NewService(a.cfg.GitHub.Org, a.githubClient(), a.tokens, a.logger)
		summary, err := svc.Run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
