package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/secopshq/survivault/internal/infrastructure/telemetry"
	"github.com/secopshq/survivault/internal/metrics"
	"github.com/secopshq/survivault/internal/service/alerting"
	"github.com/secopshq/survivault/internal/service/engine"
	"github.com/secopshq/survivault/internal/service/producthealth"
	"github.com/secopshq/survivault/internal/service/remediation"
	"github.com/secopshq/survivault/internal/service/report"
	scoringsvc "github.com/secopshq/survivault/internal/service/scoring"
)

var runInterval time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full pass: score, aggregate, stage, apply, report, alert",
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

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		provider, err := telemetry.Initialize(ctx, &telemetry.Config{
			ServiceName:    "survivault",
			ServiceVersion: a.cfg.Version,
			Environment:    a.cfg.Environment,
			OTLPEndpoint:   a.cfg.Telemetry.OTLPEndpoint,
			Enabled:        a.cfg.Telemetry.Enabled,
			SamplingRate:   a.cfg.Telemetry.SamplingRate,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = provider.Shutdown(shutdownCtx)
		}()

		eng := engine.New(
			scoringsvc.NewService(a.tokens, a.agents, pol, a.logger, a.cfg.Pass.Workers),
			producthealth.NewService(a.tokens, a.agents, a.products, a.logger),
			remediation.NewService(a.tokens, a.agents, a.manifests, a.githubClient(),
				pol, a.cfg.Pass.Approver, a.logger),
			report.NewWriter(a.cfg.Paths.ReportsDir, a.logger),
			alerting.NewService(a.notifier(), pol.Risk.CriticalThreshold, a.cfg.Paths.AlertLog, a.logger),
			a.logger,
		)

		interval := runInterval
		if interval == 0 {
			interval = a.cfg.Pass.Interval
		}
		if interval == 0 {
			summary, err := eng.RunPass(ctx)
			if err != nil {
				return err
			}
			return engine.WriteSummary(os.Stdout, summary)
		}
		return runScheduled(ctx, a, eng, interval)
	},
}

// runScheduled runs passes on a fixed interval with the metrics endpoint
// up for scraping. A failed pass is logged and the schedule continues;
// the next pass starts from whatever state the failed one left behind.
func runScheduled(ctx context.Context, a *app, eng *engine.Engine, interval time.Duration) error {
	server := &http.Server{
		Addr:    a.cfg.Pass.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		a.logger.Info("metrics endpoint up", "addr", a.cfg.Pass.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("scheduled mode", "interval", interval)
	for {
		summary, err := eng.RunPass(ctx)
		if err != nil {
			a.logger.Error("pass failed", "error", err)
		} else if err := engine.WriteSummary(os.Stdout, summary); err != nil {
			a.logger.Error("writing pass summary failed", "error", err)
		}

		select {
		case <-ctx.Done():
			a.logger.Info("shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

func init() {
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "run passes on this interval (0 = run once)")
	rootCmd.AddCommand(runCmd)
}
