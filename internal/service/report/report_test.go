package report

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/service/producthealth"
	"github.com/secopshq/survivault/internal/service/scoring"
)

func newWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	w := NewWriter(dir, slog.Default()).WithClock(func() time.Time { return now })
	return w, dir
}

func historyOf(scores ...float64) entity.ScoreHistory {
	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -len(scores)+1)
	var h entity.ScoreHistory
	for i, s := range scores {
		h = h.Append(s, base.AddDate(0, 0, i))
	}
	return h
}

func TestWriteEntityReports(t *testing.T) {
	w, dir := newWriter(t)

	results := []scoring.Result{
		{
			EntityID: "tok-1", Owner: "alice", Kind: "human_credential",
			Score: 0.85, Status: "Healthy", History: historyOf(0.9, 0.85),
		},
		{
			EntityID: "tok-2", Owner: "bob", Kind: "human_credential",
			Score: 0.1, Status: "Critical", History: historyOf(0.3, 0.1),
		},
	}

	require.NoError(t, w.WriteEntityReports(context.Background(), results))

	// Both JSON surfaces carry the same records.
	var health, history []scoring.Result
	rawHealth, err := os.ReadFile(filepath.Join(dir, "token_health.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(rawHealth, &health))
	rawHistory, err := os.ReadFile(filepath.Join(dir, "score_history.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(rawHistory, &history))
	assert.Equal(t, health, history)
	require.Len(t, health, 2)
	assert.Equal(t, "tok-1", health[0].EntityID)

	raw, err := os.ReadFile(filepath.Join(dir, "token_health_report.md"))
	require.NoError(t, err)
	md := string(raw)
	assert.Contains(t, md, "# Token Health Report")
	assert.Contains(t, md, "**Generated:** 2026-08-30 09:00:00 UTC")
	assert.Contains(t, md, "| tok-1 | alice | 0.85 | Healthy | 0.9 → 0.85 |")
	assert.Contains(t, md, "| tok-2 | bob | 0.1 | Critical | 0.3 → 0.1 |")
}

func TestWriteProductReports(t *testing.T) {
	w, dir := newWriter(t)

	results := []producthealth.Result{
		{ProductID: "product-checkout", Name: "checkout", Health: 0.5, Status: "Yellow"},
		{ProductID: "product-api", Name: "api", Health: 0, Status: "Red", Missing: []string{"tok-gone"}},
	}

	require.NoError(t, w.WriteProductReports(context.Background(), results))

	raw, err := os.ReadFile(filepath.Join(dir, "product_health_report.md"))
	require.NoError(t, err)
	md := string(raw)
	assert.Contains(t, md, "| product-checkout | checkout | 0.5 | Yellow | - |")
	assert.Contains(t, md, "| product-api | api | 0 | Red | tok-gone |")

	_, err = os.Stat(filepath.Join(dir, "product_health.json"))
	assert.NoError(t, err)
}

func TestWriteProductReportsNoProducts(t *testing.T) {
	w, dir := newWriter(t)

	require.NoError(t, w.WriteProductReports(context.Background(), nil))

	// Nothing to report means no files at all, not empty ones.
	_, err := os.Stat(filepath.Join(dir, "product_health.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "1", formatScore(1.0))
	assert.Equal(t, "0.85", formatScore(0.85))
	assert.Equal(t, "0.123", formatScore(0.1234))
	assert.Equal(t, "0", formatScore(0))
}
