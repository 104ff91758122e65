package detection

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/infrastructure/ledger"
	"github.com/secopshq/survivault/internal/metrics"
)

// AgentSummary reports one agent detection run.
type AgentSummary struct {
	Workflows int      `json:"workflows"`
	Detected  int      `json:"detected"`
	Existing  int      `json:"existing"`
	Skipped   int      `json:"skipped"`
	AgentIDs  []string `json:"agent_ids,omitempty"`
}

// AgentDetector discovers automated agents from CI workflow definitions.
// One workflow file is one candidate agent; detection is additive and
// never rewrites agents that already exist.
type AgentDetector struct {
	workflowsDir string
	tokens       *ledger.Store
	agents       *ledger.Store
	logger       *slog.Logger
	now          func() time.Time
}

func NewAgentDetector(workflowsDir string, tokens, agents *ledger.Store, logger *slog.Logger) *AgentDetector {
	return &AgentDetector{
		workflowsDir: workflowsDir,
		tokens:       tokens,
		agents:       agents,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock pins the detection clock; tests use it.
func (d *AgentDetector) WithClock(now func() time.Time) *AgentDetector {
	d.now = now
	return d
}

// workflowDoc is the slice of a CI workflow definition detection reads.
type workflowDoc struct {
	Name        string            `yaml:"name"`
	Permissions map[string]string `yaml:"permissions"`
	Jobs        map[string]any    `yaml:"jobs"`
}

// Run scans the workflows directory and seeds one agent entity per
// workflow not already in the agent ledger. Workflows without any
// resolvable credential association are skipped: an agent the engine
// cannot tie back to a credential cannot be remediated.
func (d *AgentDetector) Run(ctx context.Context) (AgentSummary, error) {
	started := d.now()
	var summary AgentSummary

	tokens, err := d.tokens.LoadOrEmpty()
	if err != nil {
		return summary, err
	}
	agents, err := d.agents.LoadOrEmpty()
	if err != nil {
		return summary, err
	}

	files, err := d.workflowFiles()
	if err != nil {
		return summary, err
	}
	summary.Workflows = len(files)
	if len(files) == 0 {
		d.logger.InfoContext(ctx, "no workflow files found", "dir", d.workflowsDir)
		return summary, nil
	}

	now := d.now()
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		agentID := "agent-" + stem
		if _, ok := agents[agentID]; ok {
			summary.Existing++
			continue
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			summary.Skipped++
			d.logger.WarnContext(ctx, "unreadable workflow file, skipping",
				"path", path, "error", err)
			continue
		}
		var doc workflowDoc
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			summary.Skipped++
			d.logger.WarnContext(ctx, "invalid workflow file, skipping",
				"path", path, "error", err)
			continue
		}

		name := doc.Name
		if name == "" {
			name = stem
		}

		tokenID := associatedToken(name, tokens)
		if tokenID == "" {
			summary.Skipped++
			d.logger.WarnContext(ctx, "no credential association for workflow, skipping",
				"workflow", name)
			continue
		}

		scope := workflowScope(doc, string(raw))
		issued := now
		agents[agentID] = &entity.Entity{
			ID:                agentID,
			Kind:              entity.KindAgent,
			Role:              entity.RoleNone,
			State:             entity.StateActive,
			Scope:             scope,
			AgentName:         name,
			Purpose:           agentPurpose(name, doc.Jobs),
			AssociatedTokenID: tokenID,
			WorkflowFile:      path,
			IssuedOn:          &issued,
		}
		summary.Detected++
		summary.AgentIDs = append(summary.AgentIDs, agentID)
		d.logger.InfoContext(ctx, "agent detected",
			"agent_id", agentID, "workflow", name, "token_id", tokenID)
	}

	if err := d.agents.Save(agents); err != nil {
		return summary, err
	}

	metrics.PassDuration.WithLabelValues("detect_agents").Observe(d.now().Sub(started).Seconds())
	return summary, nil
}

func (d *AgentDetector) workflowFiles() ([]string, error) {
	if _, err := os.Stat(d.workflowsDir); os.IsNotExist(err) {
		return nil, nil
	}
	var files []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matched, err := filepath.Glob(filepath.Join(d.workflowsDir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matched...)
	}
	sort.Strings(files)
	return files, nil
}

// workflowScope maps workflow permission declarations to the capability
// vocabulary credentials use, so agents score through the same formula.
func workflowScope(doc workflowDoc, raw string) []string {
	var scope []string
	for perm, value := range doc.Permissions {
		if value == "read" || value == "write" {
			scope = append(scope, perm)
		}
	}
	sort.Strings(scope)
	if len(scope) > 0 {
		return scope
	}

	// No explicit permissions block; fall back to scanning the document
	// for the grants workflows most commonly rely on.
	for _, hint := range []struct{ needle, grant string }{
		{"contents: write", "repo"},
		{"pull-requests: write", "repo"},
		{"issues: write", "repo"},
		{"actions: write", "workflow"},
		{"admin:org", "admin:org"},
	} {
		if strings.Contains(raw, hint.needle) || strings.Contains(raw, strings.ReplaceAll(hint.needle, " ", "")) {
			scope = append(scope, hint.grant)
		}
	}
	scope = dedupe(scope)
	if len(scope) == 0 {
		scope = []string{"read:repo"}
	}
	return scope
}

// associatedToken resolves which credential a workflow runs as. Usage
// keywords are matched against service credentials first; a workflow that
// matches nothing falls back to any service credential, then any
// credential at all, because an unassociated agent is worse than a
// loosely associated one.
func associatedToken(workflowName string, tokens map[string]*entity.Entity) string {
	lower := strings.ToLower(workflowName)

	ids := make([]string, 0, len(tokens))
	for id := range tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, keyword := range []string{"ci", "deploy", "auto"} {
		if !strings.Contains(lower, keyword) {
			continue
		}
		for _, id := range ids {
			t := tokens[id]
			if t.Kind == entity.KindServiceCredential && strings.Contains(strings.ToLower(t.Purpose), keyword) {
				return id
			}
		}
	}
	for _, id := range ids {
		if tokens[id].Kind == entity.KindServiceCredential {
			return id
		}
	}
	if len(ids) > 0 {
		return ids[0]
	}
	return ""
}

func agentPurpose(name string, jobs map[string]any) string {
	if len(jobs) == 0 {
		return name
	}
	names := make([]string, 0, len(jobs))
	for job := range jobs {
		names = append(names, job)
	}
	sort.Strings(names)
	if len(names) > 2 {
		names = names[:2]
	}
	return fmt.Sprintf("%s (%s)", name, strings.Join(names, ", "))
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
