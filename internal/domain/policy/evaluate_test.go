package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secopshq/survivault/internal/domain/entity"
)

func historyOf(scores ...float64) entity.ScoreHistory {
	var h entity.ScoreHistory
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, s := range scores {
		h = h.Append(s, base.AddDate(0, 0, i))
	}
	return h
}

func credential(score float64, scores ...float64) *entity.Entity {
	return &entity.Entity{
		ID:           "tok-1",
		Owner:        "alice",
		Kind:         entity.KindHumanCredential,
		Role:         entity.RoleMember,
		State:        entity.StateActive,
		Score:        score,
		ScoreHistory: historyOf(scores...),
	}
}

func TestEvaluateShortCircuits(t *testing.T) {
	p := Default()

	t.Run("products are never candidates", func(t *testing.T) {
		e := credential(0.05, 0.05)
		e.Kind = entity.KindProduct
		d := Evaluate(e, e.ScoreHistory, p)
		assert.False(t, d.Candidate)
	})

	t.Run("revoked entities are never candidates", func(t *testing.T) {
		e := credential(0.05, 0.05)
		e.State = entity.StateRevoked
		d := Evaluate(e, e.ScoreHistory, p)
		assert.False(t, d.Candidate)
		assert.Equal(t, "already_revoked", d.Reason)
	})

	t.Run("exemption by owner wins over critical score", func(t *testing.T) {
		p := Default()
		p.Exemptions.Owners = []string{"alice"}
		e := credential(0.05, 0.05)
		d := Evaluate(e, e.ScoreHistory, p)
		assert.False(t, d.Candidate)
		assert.Equal(t, "exempted", d.Reason)
	})

	t.Run("exemption by entity id", func(t *testing.T) {
		p := Default()
		p.Exemptions.Entities = []string{"tok-1"}
		e := credential(0.05, 0.05)
		d := Evaluate(e, e.ScoreHistory, p)
		assert.False(t, d.Candidate)
	})
}

func TestEvaluateHealthy(t *testing.T) {
	p := Default()
	e := credential(0.9, 0.88, 0.9)
	d := Evaluate(e, e.ScoreHistory, p)
	assert.False(t, d.Candidate)
	assert.Equal(t, "score_above_warning_threshold", d.Reason)
}

func TestEvaluateCritical(t *testing.T) {
	p := Default()

	t.Run("critical credential gets revocation", func(t *testing.T) {
		e := credential(0.1, 0.3, 0.1)
		d := Evaluate(e, e.ScoreHistory, p)
		require.True(t, d.Candidate)
		assert.Equal(t, entity.ActionRevokeAccess, d.Action.Type)
	})

	t.Run("critical agent gets revocation too", func(t *testing.T) {
		e := credential(0.1, 0.3, 0.1)
		e.Kind = entity.KindAgent
		e.Role = entity.RoleNone
		d := Evaluate(e, e.ScoreHistory, p)
		require.True(t, d.Candidate)
		assert.Equal(t, entity.ActionRevokeAccess, d.Action.Type)
	})
}

func TestEvaluateSevereDropFromHealthy(t *testing.T) {
	p := Default()

	// 0.85 -> 0.3 is a 0.55 fall from above the warning threshold, which
	// clears the severe drop bar (0.4 * 1.25 = 0.5) even though the new
	// score only lands in the degrading band.
	e := credential(0.3, 0.9, 0.85, 0.3)
	d := Evaluate(e, e.ScoreHistory, p)
	require.True(t, d.Candidate)
	assert.Contains(t, d.Reason, "severe_drop_from_healthy")
	assert.Equal(t, entity.ActionScopeReduction, d.Action.Type)
}

func TestEvaluateSevereDropNeedsHealthyPrevious(t *testing.T) {
	p := Default()

	// The same sized fall starting inside the degrading band does not use
	// the severe-drop path and falls through to the debounce rules.
	e := credential(0.25, 0.79, 0.25)
	d := Evaluate(e, e.ScoreHistory, p)
	assert.False(t, d.Candidate)
	assert.Equal(t, "insufficient_corroborating_evidence", d.Reason)
}

func TestEvaluateDegradingDebounce(t *testing.T) {
	t.Run("single degrading reading is held back", func(t *testing.T) {
		p := Default()
		e := credential(0.5, 0.6, 0.5)
		d := Evaluate(e, e.ScoreHistory, p)
		assert.False(t, d.Candidate)
		assert.Equal(t, "insufficient_corroborating_evidence", d.Reason)
		// The would-be action is still populated for visibility.
		assert.Equal(t, entity.ActionScopeReduction, d.Action.Type)
	})

	t.Run("sustained critical readings corroborate", func(t *testing.T) {
		p := Default() // needs MinCriticalCount+2 = 5 readings below critical
		e := credential(0.3, 0.1, 0.1, 0.1, 0.1, 0.1, 0.3)
		d := Evaluate(e, e.ScoreHistory, p)
		require.True(t, d.Candidate)
		assert.Contains(t, d.Reason, "high_critical_count=5")
	})

	t.Run("four critical readings are not enough", func(t *testing.T) {
		p := Default()
		e := credential(0.3, 0.1, 0.1, 0.1, 0.1, 0.3)
		d := Evaluate(e, e.ScoreHistory, p)
		assert.False(t, d.Candidate)
	})

	t.Run("large consecutive drop corroborates", func(t *testing.T) {
		p := Default()
		p.Acceptance.MaxDrop = 0.2 // degrading drop bar becomes 0.3
		e := credential(0.35, 0.7, 0.35)
		d := Evaluate(e, e.ScoreHistory, p)
		require.True(t, d.Candidate)
		assert.Contains(t, d.Reason, "severe_drop")
	})
}

func TestActionSelection(t *testing.T) {
	p := Default()

	t.Run("privileged human is downgraded, not narrowed", func(t *testing.T) {
		e := credential(0.3, 0.1, 0.1, 0.1, 0.1, 0.1, 0.3)
		e.Role = entity.RoleAdmin
		d := Evaluate(e, e.ScoreHistory, p)
		require.True(t, d.Candidate)
		require.Equal(t, entity.ActionRoleChange, d.Action.Type)
		assert.Equal(t, entity.RoleMember, d.Action.TargetRole)
	})

	t.Run("agents never receive a role change", func(t *testing.T) {
		e := credential(0.3, 0.1, 0.1, 0.1, 0.1, 0.1, 0.3)
		e.Kind = entity.KindAgent
		e.Role = entity.RoleAdmin // even with a stray role recorded
		d := Evaluate(e, e.ScoreHistory, p)
		require.True(t, d.Candidate)
		assert.Equal(t, entity.ActionScopeReduction, d.Action.Type)
	})

	t.Run("service credentials are narrowed", func(t *testing.T) {
		e := credential(0.3, 0.1, 0.1, 0.1, 0.1, 0.1, 0.3)
		e.Kind = entity.KindServiceCredential
		d := Evaluate(e, e.ScoreHistory, p)
		require.True(t, d.Candidate)
		require.Equal(t, entity.ActionScopeReduction, d.Action.Type)
		assert.Equal(t, p.Actions.ReducedScopes, d.Action.TargetScopes)
	})
}
