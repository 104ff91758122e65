package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/secopshq/survivault/internal/domain/errors"
)

// Alert is one per-entity notification line.
type Alert struct {
	EntityID string
	Owner    string
	Score    float64
	Status   string
	Severity string
	Message  string
}

// Summary is the structured digest delivered after every pass.
type Summary struct {
	Total     int
	Healthy   int
	Degrading int
	Critical  int
	AvgScore  float64
	Alerts    []Alert
	// PendingManifests lists entity ids with unresolved proposals.
	PendingManifests []string
	GeneratedAt      time.Time
}

// Notifier is the fire-and-forget notification sink. Delivery failure is
// never fatal to the pipeline; callers log and move on.
type Notifier interface {
	SendSummary(ctx context.Context, s Summary) error
}

// SlackNotifier posts Block Kit digests to an incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

func NewSlackNotifier(webhookURL string, timeout time.Duration, logger *zap.Logger) *SlackNotifier {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (n *SlackNotifier) SendSummary(ctx context.Context, s Summary) error {
	if n.webhookURL == "" {
		n.logger.Debug("slack webhook not configured, skipping notification")
		return nil
	}

	payload := map[string]interface{}{
		"text": fmt.Sprintf("Survivability: %d healthy, %d degrading, %d critical",
			s.Healthy, s.Degrading, s.Critical),
		"blocks": buildBlocks(s),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding slack payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "building slack request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.NewTransportError("slack", "posting summary").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewTransportError("slack", fmt.Sprintf("webhook returned status %d", resp.StatusCode))
	}
	return nil
}

func buildBlocks(s Summary) []map[string]interface{} {
	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]interface{}{
				"type": "plain_text",
				"text": "Survivability Report",
			},
		},
		{
			"type": "section",
			"text": map[string]interface{}{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Daily security status*\n_%s_",
					s.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")),
			},
		},
		{"type": "divider"},
		{
			"type": "section",
			"fields": []map[string]interface{}{
				{"type": "mrkdwn", "text": fmt.Sprintf("*Total entities:*\n%d", s.Total)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Average score:*\n%.3f", s.AvgScore)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Healthy:*\n%d", s.Healthy)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Degrading:*\n%d", s.Degrading)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Critical:*\n%d", s.Critical)},
			},
		},
	}

	if len(s.Alerts) > 0 {
		blocks = append(blocks,
			map[string]interface{}{"type": "divider"},
			map[string]interface{}{
				"type": "section",
				"text": map[string]interface{}{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Alerts (%d):*", len(s.Alerts)),
				},
			})
		for _, a := range s.Alerts {
			blocks = append(blocks, map[string]interface{}{
				"type": "section",
				"text": map[string]interface{}{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*%s*\nEntity: `%s` | Owner: `%s`\nScore: *%.3f* | Status: %s",
						a.Severity, a.EntityID, a.Owner, a.Score, a.Status),
				},
			})
		}
	} else {
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]interface{}{
				"type": "mrkdwn",
				"text": "*No alerts* - all entities operating normally",
			},
		})
	}

	if len(s.PendingManifests) > 0 {
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]interface{}{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Pending manifests (%d):* %v", len(s.PendingManifests), s.PendingManifests),
			},
		})
	}

	blocks = append(blocks,
		map[string]interface{}{"type": "divider"},
		map[string]interface{}{
			"type": "context",
			"elements": []map[string]interface{}{
				{"type": "mrkdwn", "text": "Automated by the survivability engine"},
			},
		})
	return blocks
}
