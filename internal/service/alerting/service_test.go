package alerting

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/domain/errors"
	"github.com/secopshq/survivault/internal/infrastructure/notify"
	scoringsvc "github.com/secopshq/survivault/internal/service/scoring"
)

// fakeNotifier captures the delivered summary and fails on request.
type fakeNotifier struct {
	sent []notify.Summary
	err  error
}

func (f *fakeNotifier) SendSummary(ctx context.Context, s notify.Summary) error {
	f.sent = append(f.sent, s)
	return f.err
}

func historyOf(scores ...float64) entity.ScoreHistory {
	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -len(scores)+1)
	var h entity.ScoreHistory
	for i, s := range scores {
		h = h.Append(s, base.AddDate(0, 0, i))
	}
	return h
}

func result(id string, score float64, status string, history ...float64) scoringsvc.Result {
	return scoringsvc.Result{
		EntityID: id,
		Owner:    "alice",
		Kind:     "human_credential",
		Score:    score,
		Status:   status,
		History:  historyOf(history...),
	}
}

func newAlertFixture(t *testing.T, notifier *fakeNotifier) (*Service, string) {
	t.Helper()
	alertLog := filepath.Join(t.TempDir(), "logs", "alerts.log")
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	svc := NewService(notifier, 0.2, alertLog, slog.Default()).
		WithClock(func() time.Time { return now })
	return svc, alertLog
}

func TestRunBuildsDigest(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, _ := newAlertFixture(t, notifier)

	results := []scoringsvc.Result{
		result("tok-critical", 0.1, "Critical", 0.3, 0.1),
		result("tok-warning", 0.4, "Degrading", 0.5, 0.4),
		result("tok-quiet", 0.6, "Degrading", 0.6, 0.6),
		result("tok-healthy", 0.9, "Healthy", 0.9, 0.9),
	}

	summary, err := svc.Run(context.Background(), results, []string{"tok-critical"})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.Healthy)
	assert.Equal(t, 2, summary.Degrading)
	assert.Equal(t, 1, summary.Critical)
	assert.Equal(t, 0.5, summary.AvgScore)
	assert.Equal(t, []string{"tok-critical"}, summary.PendingManifests)

	require.Len(t, summary.Alerts, 2)
	assert.Equal(t, "CRITICAL", summary.Alerts[0].Severity)
	assert.Equal(t, "tok-critical", summary.Alerts[0].EntityID)
	assert.Equal(t, "WARNING", summary.Alerts[1].Severity)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, summary.Alerts, notifier.sent[0].Alerts)
}

func TestRecoveryFiresOnlyOnTransition(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, _ := newAlertFixture(t, notifier)

	results := []scoringsvc.Result{
		// Climbed back over the healthy threshold this pass.
		result("tok-recovered", 0.85, "Healthy", 0.4, 0.85),
		// Was already healthy; silence.
		result("tok-steady", 0.85, "Healthy", 0.9, 0.85),
		// First reading ever; no transition to report.
		result("tok-new", 0.85, "Healthy", 0.85),
	}

	summary, err := svc.Run(context.Background(), results, nil)
	require.NoError(t, err)

	require.Len(t, summary.Alerts, 1)
	assert.Equal(t, "RECOVERY", summary.Alerts[0].Severity)
	assert.Equal(t, "tok-recovered", summary.Alerts[0].EntityID)
}

func TestRunAppendsAlertLog(t *testing.T) {
	svc, alertLog := newAlertFixture(t, &fakeNotifier{})

	_, err := svc.Run(context.Background(), []scoringsvc.Result{
		result("tok-critical", 0.1, "Critical", 0.3, 0.1),
	}, nil)
	require.NoError(t, err)

	raw, err := os.ReadFile(alertLog)
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "[2026-08-30 09:00:00] CRITICAL: entity tok-critical")
	assert.Contains(t, content, "DIGEST: Total=1, Healthy=0, Degrading=0, Critical=1, AvgScore=0.100")
}

func TestNotifierFailureIsNotFatal(t *testing.T) {
	notifier := &fakeNotifier{err: errors.NewTransportError("slack", "boom")}
	svc, alertLog := newAlertFixture(t, notifier)

	summary, err := svc.Run(context.Background(), []scoringsvc.Result{
		result("tok-critical", 0.1, "Critical", 0.3, 0.1),
	}, nil)
	require.NoError(t, err)
	require.Len(t, summary.Alerts, 1)

	// The local alert log still captured everything.
	raw, readErr := os.ReadFile(alertLog)
	require.NoError(t, readErr)
	assert.Contains(t, string(raw), "CRITICAL")
}

func TestRunEmptyResults(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, _ := newAlertFixture(t, notifier)

	summary, err := svc.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, 0.0, summary.AvgScore)
	require.Len(t, notifier.sent, 1)
}
