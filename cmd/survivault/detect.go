package main

import (
	"github.com/spf13/cobra"

	"github.com/secopshq/survivault/internal/service/detection"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Discover agents and products and seed their ledgers",
}

var detectAgentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Detect agents from CI workflow files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		det := detection.NewAgentDetector(a.cfg.Paths.WorkflowsDir, a.tokens, a.agents, a.logger)
		summary, err := det.Run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

var detectProductsCmd = &cobra.Command{
	Use:   "products",
	Short: "Detect products from org repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		det := detection.NewProductDetector(a.cfg.GitHub.Org, a.githubClient(), a.products, a.logger)
		summary, err := det.Run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

func init() {
	detectCmd.AddCommand(detectAgentsCmd)
	detectCmd.AddCommand(detectProductsCmd)
	rootCmd.AddCommand(detectCmd)
}
