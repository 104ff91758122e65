package sync

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/domain/errors"
	"github.com/secopshq/survivault/internal/infrastructure/github"
	"github.com/secopshq/survivault/internal/infrastructure/ledger"
	"github.com/secopshq/survivault/internal/testutil/fixtures"
)

// fakeDirectory serves a canned member list with per-login memberships.
type fakeDirectory struct {
	members     []github.Member
	memberships map[string]*github.Membership
}

func (f *fakeDirectory) ListMembers(ctx context.Context) ([]github.Member, error) {
	return f.members, nil
}

func (f *fakeDirectory) GetMembership(ctx context.Context, principal string) (*github.Membership, error) {
	m, ok := f.memberships[principal]
	if !ok {
		return nil, errors.NewNotFoundError("membership")
	}
	return m, nil
}

func newSyncFixture(t *testing.T, dir *fakeDirectory) (*Service, *ledger.Store) {
	t.Helper()
	tokens := ledger.NewStore(filepath.Join(t.TempDir(), "token-ledger.yml"), nil)
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	svc := NewService("acme", dir, tokens, slog.Default()).
		WithClock(func() time.Time { return now })
	return svc, tokens
}

func TestRunSeedsNewMembers(t *testing.T) {
	dir := &fakeDirectory{
		members: []github.Member{
			{Login: "alice", ID: 42},
			{Login: "bob", ID: 43},
		},
		memberships: map[string]*github.Membership{
			"alice": {Role: "admin", State: "active"},
			"bob":   {Role: "member", State: "active"},
		},
	}
	svc, tokens := newSyncFixture(t, dir)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Members)
	assert.Equal(t, 2, summary.Added)
	assert.Equal(t, []string{"42", "43"}, summary.AddedIDs)

	loaded, err := tokens.Load()
	require.NoError(t, err)

	alice := loaded["42"]
	require.NotNil(t, alice)
	assert.Equal(t, entity.KindHumanCredential, alice.Kind)
	assert.Equal(t, entity.RoleAdmin, alice.Role)
	assert.Equal(t, adminScope, alice.Scope)
	assert.Equal(t, []string{"org:acme", "role:admin"}, alice.Provenance)
	require.NotNil(t, alice.IssuedOn)

	bob := loaded["43"]
	require.NotNil(t, bob)
	assert.Equal(t, entity.RoleMember, bob.Role)
	assert.Equal(t, memberScope, bob.Scope)
}

func TestRunLeavesExistingRecordsUntouched(t *testing.T) {
	dir := &fakeDirectory{
		members: []github.Member{{Login: "alice", ID: 42}},
		memberships: map[string]*github.Membership{
			"alice": {Role: "member", State: "active"},
		},
	}
	svc, tokens := newSyncFixture(t, dir)

	// Seed an existing record with history that must survive the re-sync.
	existing := fixtures.NewEntityBuilder("42").
		WithRole(entity.RoleAdmin).
		WithScoreHistory(0.4, 0.6).
		Build()
	require.NoError(t, tokens.Save(map[string]*entity.Entity{"42": existing}))

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Added)
	assert.Equal(t, 1, summary.Existing)

	loaded, err := tokens.Load()
	require.NoError(t, err)
	got := loaded["42"]
	assert.Equal(t, entity.RoleAdmin, got.Role)
	assert.Len(t, got.ScoreHistory, 2)
}

func TestRunSkipsMemberWithFailedLookup(t *testing.T) {
	dir := &fakeDirectory{
		members: []github.Member{
			{Login: "alice", ID: 42},
			{Login: "ghost", ID: 99},
		},
		memberships: map[string]*github.Membership{
			"alice": {Role: "member", State: "active"},
		},
	}
	svc, tokens := newSyncFixture(t, dir)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 1, summary.Failed)

	loaded, err := tokens.Load()
	require.NoError(t, err)
	_, ok := loaded["99"]
	assert.False(t, ok, "member with failed role lookup must not be recorded")
}

func TestRunFallsBackToMemberRole(t *testing.T) {
	dir := &fakeDirectory{
		members: []github.Member{{Login: "carol", ID: 7}},
		memberships: map[string]*github.Membership{
			"carol": {Role: "billing_manager", State: "active"},
		},
	}
	svc, tokens := newSyncFixture(t, dir)

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	loaded, err := tokens.Load()
	require.NoError(t, err)
	got := loaded["7"]
	require.NotNil(t, got)
	// An unrecognized directory role gets the least privileged mapping.
	assert.Equal(t, entity.RoleMember, got.Role)
	assert.Equal(t, memberScope, got.Scope)
}
