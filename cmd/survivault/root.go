package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/secopshq/survivault/internal/domain/policy"
	"github.com/secopshq/survivault/internal/infrastructure/config"
	"github.com/secopshq/survivault/internal/infrastructure/github"
	"github.com/secopshq/survivault/internal/infrastructure/ledger"
	"github.com/secopshq/survivault/internal/infrastructure/manifeststore"
	"github.com/secopshq/survivault/internal/infrastructure/notify"
	"github.com/secopshq/survivault/internal/infrastructure/telemetry"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "survivault",
	Short: "Survivability scoring and remediation for org credentials",
	Long: `survivault scores every credential, agent and product in the
organization's ledgers, stages remediation manifests for entities whose
survivability degrades, and applies them against the org's authorization
system with a full audit trail.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default configs/config.yaml)")
}

// app wires the shared infrastructure every subcommand needs. Policy is
// loaded separately because read-only commands must work without one.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	zlog      *zap.Logger
	tokens    *ledger.Store
	agents    *ledger.Store
	products  *ledger.ProductStore
	manifests *manifeststore.Store
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger := telemetry.SetupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	zlog, err := newZapLogger(cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("building infrastructure logger: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		zlog:      zlog,
		tokens:    ledger.NewStore(cfg.Paths.TokenLedger, zlog),
		agents:    ledger.NewStore(cfg.Paths.AgentLedger, zlog),
		products:  ledger.NewProductStore(cfg.Paths.ProductLedger, zlog),
		manifests: manifeststore.NewStore(cfg.Paths.OpsDir, zlog),
	}, nil
}

func newZapLogger(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadPolicy reads the remediation policy. A missing file falls back to
// the reference policy so read-and-report commands work out of the box;
// a present but invalid file is fatal.
func (a *app) loadPolicy() (policy.Policy, error) {
	if _, err := os.Stat(a.cfg.Paths.Policy); os.IsNotExist(err) {
		a.logger.Info("policy file not found, using reference policy",
			"path", a.cfg.Paths.Policy)
		return policy.Default(), nil
	}
	return policy.Load(a.cfg.Paths.Policy)
}

func (a *app) githubClient() *github.Client {
	return github.NewClient(github.Config{
		Org:          a.cfg.GitHub.Org,
		Token:        a.cfg.GitHub.Token,
		BaseURL:      a.cfg.GitHub.BaseURL,
		Timeout:      a.cfg.GitHub.Timeout,
		RateLimitRPS: a.cfg.GitHub.RateLimitRPS,
		BurstSize:    a.cfg.GitHub.BurstSize,
	}, a.zlog)
}

func (a *app) notifier() notify.Notifier {
	return notify.NewSlackNotifier(a.cfg.Slack.WebhookURL, a.cfg.Slack.Timeout, a.zlog)
}

func (a *app) close() {
	_ = a.zlog.Sync()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
