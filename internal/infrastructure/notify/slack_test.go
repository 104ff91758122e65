package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secopshq/survivault/internal/domain/errors"
)

func summaryFixture() Summary {
	return Summary{
		Total: 3, Healthy: 1, Degrading: 1, Critical: 1,
		AvgScore: 0.5,
		Alerts: []Alert{{
			EntityID: "tok-1", Owner: "alice", Score: 0.1,
			Status: "Critical", Severity: "CRITICAL", Message: "critical",
		}},
		PendingManifests: []string{"tok-1"},
		GeneratedAt:      time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
	}
}

func TestSendSummaryPostsBlocks(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, time.Second, nil)
	require.NoError(t, n.SendSummary(context.Background(), summaryFixture()))

	assert.Equal(t, "Survivability: 1 healthy, 1 degrading, 1 critical", payload["text"])
	blocks, ok := payload["blocks"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, blocks)
}

func TestSendSummaryWebhookFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, time.Second, nil)
	err := n.SendSummary(context.Background(), summaryFixture())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
	assert.True(t, errors.IsRetryable(err))
}

func TestSendSummaryWithoutWebhookIsNoop(t *testing.T) {
	n := NewSlackNotifier("", time.Second, nil)
	assert.NoError(t, n.SendSummary(context.Background(), summaryFixture()))
}
