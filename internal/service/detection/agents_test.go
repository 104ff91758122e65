package detection

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
	"github.com/secopshq/survivault/internal/infrastructure/ledger"
	"github.com/secopshq/survivault/internal/testutil/fixtures"
)

type agentFixture struct {
	det          *AgentDetector
	tokens       *ledger.Store
	agents       *ledger.Store
	workflowsDir string
}

func newAgentFixture(t *testing.T) *agentFixture {
	t.Helper()
	dir := t.TempDir()
	workflows := filepath.Join(dir, "workflows")
	require.NoError(t, os.MkdirAll(workflows, 0o755))

	tokens := ledger.NewStore(filepath.Join(dir, "token-ledger.yml"), nil)
	agents := ledger.NewStore(filepath.Join(dir, "agent-ledger.yml"), nil)
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	det := NewAgentDetector(workflows, tokens, agents, slog.Default()).
		WithClock(func() time.Time { return now })
	return &agentFixture{det: det, tokens: tokens, agents: agents, workflowsDir: workflows}
}

func (f *agentFixture) writeWorkflow(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.workflowsDir, name), []byte(content), 0o644))
}

func (f *agentFixture) seedServiceToken(t *testing.T, id, purpose string) {
	t.Helper()
	tok := fixtures.NewEntityBuilder(id).
		WithKind(entity.KindServiceCredential).
		WithPurpose(purpose).
		Build()
	require.NoError(t, f.tokens.Save(map[string]*entity.Entity{id: tok}))
}

const ciWorkflow = `name: CI Pipeline
permissions:
  contents: read
  pull-requests: write
jobs:
  build:
    runs-on: ubuntu-latest
  test:
    runs-on: ubuntu-latest
  lint:
    runs-on: ubuntu-latest
`

func TestAgentDetection(t *testing.T) {
	f := newAgentFixture(t)
	f.seedServiceToken(t, "tok-svc", "ci automation")
	f.writeWorkflow(t, "ci.yml", ciWorkflow)

	summary, err := f.det.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Workflows)
	assert.Equal(t, 1, summary.Detected)
	assert.Equal(t, []string{"agent-ci"}, summary.AgentIDs)

	loaded, err := f.agents.Load()
	require.NoError(t, err)
	a := loaded["agent-ci"]
	require.NotNil(t, a)
	assert.Equal(t, entity.KindAgent, a.Kind)
	assert.Equal(t, entity.RoleNone, a.Role)
	assert.Equal(t, "CI Pipeline", a.AgentName)
	assert.Equal(t, "tok-svc", a.AssociatedTokenID)
	// Explicit permissions become the agent's scope, sorted.
	assert.Equal(t, []string{"contents", "pull-requests"}, a.Scope)
	// Purpose carries the first two job names for a human reader.
	assert.Equal(t, "CI Pipeline (build, lint)", a.Purpose)
	require.NotNil(t, a.IssuedOn)
}

func TestAgentDetectionIsAdditive(t *testing.T) {
	f := newAgentFixture(t)
	f.seedServiceToken(t, "tok-svc", "ci automation")
	f.writeWorkflow(t, "ci.yml", ciWorkflow)

	existing := fixtures.NewAgentBuilder("agent-ci", "tok-old").WithScoreHistory(0.4).Build()
	require.NoError(t, f.agents.Save(map[string]*entity.Entity{"agent-ci": existing}))

	summary, err := f.det.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Detected)
	assert.Equal(t, 1, summary.Existing)

	loaded, err := f.agents.Load()
	require.NoError(t, err)
	// The existing record, including its history and association, survived.
	assert.Equal(t, "tok-old", loaded["agent-ci"].AssociatedTokenID)
	assert.Len(t, loaded["agent-ci"].ScoreHistory, 1)
}

func TestAgentDetectionScopeHints(t *testing.T) {
	f := newAgentFixture(t)
	f.seedServiceToken(t, "tok-svc", "deploy bot")

	// No permissions block; grants come from content hints.
	f.writeWorkflow(t, "deploy.yml", `name: Deploy
jobs:
  release:
    steps:
      - run: gh api --method PUT ... # contents: write
      - run: gh workflow run other # actions: write
`)

	_, err := f.det.Run(context.Background())
	require.NoError(t, err)

	loaded, err := f.agents.Load()
	require.NoError(t, err)
	a := loaded["agent-deploy"]
	require.NotNil(t, a)
	assert.Equal(t, []string{"repo", "workflow"}, a.Scope)
}

func TestAgentDetectionDefaultScope(t *testing.T) {
	f := newAgentFixture(t)
	f.seedServiceToken(t, "tok-svc", "ci automation")
	f.writeWorkflow(t, "nightly.yaml", "name: Nightly\njobs:\n  noop:\n    runs-on: ubuntu-latest\n")

	_, err := f.det.Run(context.Background())
	require.NoError(t, err)

	loaded, err := f.agents.Load()
	require.NoError(t, err)
	// Nothing declared and no hints: the least grant is assumed.
	assert.Equal(t, []string{"read:repo"}, loaded["agent-nightly"].Scope)
}

func TestAgentDetectionSkipsWithoutAnyCredential(t *testing.T) {
	f := newAgentFixture(t)
	f.writeWorkflow(t, "ci.yml", ciWorkflow)

	summary, err := f.det.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Detected)
	assert.Equal(t, 1, summary.Skipped)
}

func TestAgentDetectionSkipsInvalidWorkflow(t *testing.T) {
	f := newAgentFixture(t)
	f.seedServiceToken(t, "tok-svc", "ci automation")
	f.writeWorkflow(t, "broken.yml", "{{not yaml")

	summary, err := f.det.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Detected)
}

func TestAssociatedTokenPrefersKeywordMatch(t *testing.T) {
	tokens := map[string]*entity.Entity{
		"tok-a": fixtures.NewEntityBuilder("tok-a").WithKind(entity.KindServiceCredential).WithPurpose("billing export").Build(),
		"tok-b": fixtures.NewEntityBuilder("tok-b").WithKind(entity.KindServiceCredential).WithPurpose("deploy pipeline").Build(),
		"tok-c": fixtures.NewEntityBuilder("tok-c").Build(),
	}

	assert.Equal(t, "tok-b", associatedToken("Deploy to prod", tokens))
	// No keyword match falls back to the first service credential.
	assert.Equal(t, "tok-a", associatedToken("Docs build", tokens))

	// No service credentials at all falls back to any credential.
	human := map[string]*entity.Entity{"tok-h": fixtures.NewEntityBuilder("tok-h").Build()}
	assert.Equal(t, "tok-h", associatedToken("Docs build", human))

	assert.Equal(t, "", associatedToken("Docs build", nil))
}
