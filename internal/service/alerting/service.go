package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/secopshq/survivault/internal/domain/scoring"
	"github.com/secopshq/survivault/internal/infrastructure/notify"
	"github.com/secopshq/survivault/internal/metrics"
	scoringsvc "github.com/secopshq/survivault/internal/service/scoring"
)

// Warning and recovery bands sit inside the policy tiers: warnings fire
// below the midpoint of the degrading band, recoveries only once an
// entity is back at the healthy threshold.
const (
	warningThreshold  = 0.5
	recoveryThreshold = 0.8
)

// Service turns scoring results into a digest: per-entity alerts for
// entities that crossed a band, plus aggregate counts. Alerts are
// appended to a local log first, then sent to the notifier; delivery
// failure is logged and swallowed, never pass-fatal.
type Service struct {
	notifier notify.Notifier
	pol      struct{ critical float64 }
	alertLog string
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(notifier notify.Notifier, criticalThreshold float64, alertLog string, logger *slog.Logger) *Service {
	s := &Service{
		notifier: notifier,
		alertLog: alertLog,
		logger:   logger,
		now:      time.Now,
	}
	s.pol.critical = criticalThreshold
	return s
}

// WithClock pins the alerting clock; tests use it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run builds the digest from one pass's results and delivers it.
func (s *Service) Run(ctx context.Context, results []scoringsvc.Result, pendingManifests []string) (notify.Summary, error) {
	summary := notify.Summary{
		Total:            len(results),
		PendingManifests: pendingManifests,
		GeneratedAt:      s.now(),
	}

	var sum float64
	for _, r := range results {
		sum += r.Score
		switch r.Status {
		case scoring.TierHealthy.String():
			summary.Healthy++
		case scoring.TierDegrading.String():
			summary.Degrading++
		case scoring.TierCritical.String():
			summary.Critical++
		}
		if a := s.alertFor(r); a != nil {
			summary.Alerts = append(summary.Alerts, *a)
			s.appendAlertLog(a.Message)
		}
	}
	if len(results) > 0 {
		summary.AvgScore = math.Round(sum/float64(len(results))*1000) / 1000
	}

	s.appendAlertLog(fmt.Sprintf(
		"DIGEST: Total=%d, Healthy=%d, Degrading=%d, Critical=%d, AvgScore=%.3f",
		summary.Total, summary.Healthy, summary.Degrading, summary.Critical, summary.AvgScore))

	if err := s.notifier.SendSummary(ctx, summary); err != nil {
		metrics.PassFailures.WithLabelValues("alerting").Inc()
		s.logger.ErrorContext(ctx, "sending alert digest failed", "error", err)
	} else {
		s.logger.InfoContext(ctx, "alert digest sent",
			"alerts", len(summary.Alerts), "total", summary.Total)
	}
	return summary, nil
}

// alertFor classifies one result into an alert band, or nil when the
// entity sits in the quiet zone between warning and recovery.
func (s *Service) alertFor(r scoringsvc.Result) *notify.Alert {
	switch {
	case r.Score < s.pol.critical:
		return &notify.Alert{
			EntityID: r.EntityID, Owner: r.Owner, Score: r.Score, Status: r.Status,
			Severity: "CRITICAL",
			Message: fmt.Sprintf(
				"CRITICAL: entity %s (owner: %s) is in critical state with score %.3f. Immediate action required.",
				r.EntityID, r.Owner, r.Score),
		}
	case r.Score < warningThreshold:
		return &notify.Alert{
			EntityID: r.EntityID, Owner: r.Owner, Score: r.Score, Status: r.Status,
			Severity: "WARNING",
			Message: fmt.Sprintf(
				"WARNING: entity %s (owner: %s) is degrading with score %.3f. Reduced survivability detected.",
				r.EntityID, r.Owner, r.Score),
		}
	case r.Score >= recoveryThreshold && previouslyBelow(r, recoveryThreshold):
		return &notify.Alert{
			EntityID: r.EntityID, Owner: r.Owner, Score: r.Score, Status: r.Status,
			Severity: "RECOVERY",
			Message: fmt.Sprintf(
				"RECOVERY: entity %s (owner: %s) has recovered with score %.3f.",
				r.EntityID, r.Owner, r.Score),
		}
	default:
		return nil
	}
}

// previouslyBelow reports whether the reading before the current one sat
// under the threshold, so recoveries only fire on an actual transition.
func previouslyBelow(r scoringsvc.Result, threshold float64) bool {
	if len(r.History) < 2 {
		return false
	}
	return r.History[len(r.History)-2].Score < threshold
}

// appendAlertLog appends one line to the local alert log. The log is a
// plain text audit surface and must survive notifier outages, so write
// failures are logged but never propagated.
func (s *Service) appendAlertLog(message string) {
	if s.alertLog == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.alertLog), 0o755); err != nil {
		s.logger.Error("creating alert log directory failed", "error", err)
		return
	}
	f, err := os.OpenFile(s.alertLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Error("opening alert log failed", "error", err)
		return
	}
	defer f.Close()
	line := fmt.Sprintf("[%s] %s\n", s.now().Format("2006-01-02 15:04:05"), message)
	if _, err := f.WriteString(line); err != nil {
		s.logger.Error("writing alert log failed", "error", err)
	}
}
