package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/secopshq/survivault/internal/domain/scoring"
	"github.com/secopshq/survivault/internal/infrastructure/telemetry"
	"github.com/secopshq/survivault/internal/metrics"
	"github.com/secopshq/survivault/internal/service/alerting"
	"github.com/secopshq/survivault/internal/service/producthealth"
	"github.com/secopshq/survivault/internal/service/remediation"
	"github.com/secopshq/survivault/internal/service/report"
	scoringsvc "github.com/secopshq/survivault/internal/service/scoring"
)

// PassSummary is the machine-readable outcome of one full pass, written
// to stdout so CI jobs and schedulers can react without parsing logs.
type PassSummary struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Entities  int `json:"entities"`
	Healthy   int `json:"healthy"`
	Degrading int `json:"degrading"`
	Critical  int `json:"critical"`
	Products  int `json:"products"`

	Detect remediation.DetectSummary `json:"detect"`
	Apply  remediation.ApplySummary  `json:"apply"`

	Alerts int `json:"alerts"`
}

// Engine sequences one full pass: score, aggregate product health, stage
// remediation, apply pending manifests, render reports, send alerts.
// Phases after scoring are best-effort against each other: a report
// failure must not block alerting, but a scoring failure aborts the pass
// because everything downstream would act on stale numbers.
type Engine struct {
	scoring *scoringsvc.Service
	health  *producthealth.Service
	rem     *remediation.Service
	reports *report.Writer
	alerts  *alerting.Service
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time

	// lastProducts carries the product phase output to the report phase
	// within one pass.
	lastProducts []producthealth.Result
}

func New(
	scoring *scoringsvc.Service,
	health *producthealth.Service,
	rem *remediation.Service,
	reports *report.Writer,
	alerts *alerting.Service,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		scoring: scoring,
		health:  health,
		rem:     rem,
		reports: reports,
		alerts:  alerts,
		logger:  logger,
		tracer:  telemetry.Tracer("survivault.engine"),
		now:     time.Now,
	}
}

// WithClock pins the pass clock; tests use it.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// RunPass executes one full pass and returns its summary.
func (e *Engine) RunPass(ctx context.Context) (PassSummary, error) {
	summary := PassSummary{StartedAt: e.now()}

	ctx, span := e.tracer.Start(ctx, "pass")
	defer span.End()

	results, err := e.phaseScore(ctx, &summary)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.PassFailures.WithLabelValues("scoring").Inc()
		return summary, err
	}

	e.phaseProductHealth(ctx, &summary)
	e.phaseDetect(ctx, &summary)
	e.phaseApply(ctx, &summary)
	e.phaseReports(ctx, results, &summary)
	e.phaseAlerts(ctx, results, &summary)

	summary.FinishedAt = e.now()
	span.SetAttributes(
		attribute.Int("entities", summary.Entities),
		attribute.Int("critical", summary.Critical),
		attribute.Int("manifests.staged", summary.Detect.Staged),
		attribute.Int("manifests.applied", summary.Apply.Applied),
	)
	e.logger.InfoContext(ctx, "pass complete",
		"entities", summary.Entities,
		"staged", summary.Detect.Staged,
		"applied", summary.Apply.Applied,
		"failed", summary.Apply.Failed,
		"duration", summary.FinishedAt.Sub(summary.StartedAt))
	return summary, nil
}

func (e *Engine) phaseScore(ctx context.Context, summary *PassSummary) ([]scoringsvc.Result, error) {
	ctx, span := e.tracer.Start(ctx, "pass.scoring")
	defer span.End()

	results, err := e.scoring.Run(ctx)
	if err != nil {
		return nil, err
	}
	summary.Entities = len(results)
	for _, r := range results {
		switch r.Status {
		case scoring.TierHealthy.String():
			summary.Healthy++
		case scoring.TierDegrading.String():
			summary.Degrading++
		case scoring.TierCritical.String():
			summary.Critical++
		}
	}
	return results, nil
}

func (e *Engine) phaseProductHealth(ctx context.Context, summary *PassSummary) {
	ctx, span := e.tracer.Start(ctx, "pass.product_health")
	defer span.End()

	products, err := e.health.Run(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.PassFailures.WithLabelValues("product_health").Inc()
		e.logger.ErrorContext(ctx, "product health phase failed", "error", err)
		return
	}
	summary.Products = len(products)
	e.lastProducts = products
}

func (e *Engine) phaseDetect(ctx context.Context, summary *PassSummary) {
	ctx, span := e.tracer.Start(ctx, "pass.detect")
	defer span.End()

	detect, err := e.rem.Detect(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.PassFailures.WithLabelValues("detect").Inc()
		e.logger.ErrorContext(ctx, "detection phase failed", "error", err)
		return
	}
	summary.Detect = detect
}

func (e *Engine) phaseApply(ctx context.Context, summary *PassSummary) {
	ctx, span := e.tracer.Start(ctx, "pass.apply")
	defer span.End()

	apply, err := e.rem.Apply(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.PassFailures.WithLabelValues("apply").Inc()
		e.logger.ErrorContext(ctx, "apply phase failed", "error", err)
		return
	}
	summary.Apply = apply
}

func (e *Engine) phaseReports(ctx context.Context, results []scoringsvc.Result, summary *PassSummary) {
	ctx, span := e.tracer.Start(ctx, "pass.reports")
	defer span.End()

	if err := e.reports.WriteEntityReports(ctx, results); err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.PassFailures.WithLabelValues("reports").Inc()
		e.logger.ErrorContext(ctx, "entity reports failed", "error", err)
	}
	if err := e.reports.WriteProductReports(ctx, e.lastProducts); err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.PassFailures.WithLabelValues("reports").Inc()
		e.logger.ErrorContext(ctx, "product reports failed", "error", err)
	}
}

func (e *Engine) phaseAlerts(ctx context.Context, results []scoringsvc.Result, summary *PassSummary) {
	ctx, span := e.tracer.Start(ctx, "pass.alerts")
	defer span.End()

	pending, err := e.rem.PendingIDs()
	if err != nil {
		e.logger.WarnContext(ctx, "listing pending manifests for digest failed", "error", err)
	}
	digest, err := e.alerts.Run(ctx, results, pending)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		e.logger.ErrorContext(ctx, "alerting phase failed", "error", err)
		return
	}
	summary.Alerts = len(digest.Alerts)
}

// WriteSummary renders the pass summary as indented JSON.
func WriteSummary(w io.Writer, s PassSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
