package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/secopshq/survivault/internal/domain/entity"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want float64
	}{
		{
			name: "no granted scopes scores zero",
			in:   Input{Kind: entity.KindHumanCredential, UsedPermissions: 3},
			want: 0,
		},
		{
			name: "admin with wide unused grant clamps to one",
			// quality=2, base=0.5, role=2.0, time=1.1, audit=1.0 -> 1.1
			in: Input{
				Kind: entity.KindHumanCredential, Role: entity.RoleAdmin,
				GrantedScopes: 2, UsedPermissions: 1, AuditTrail: 1,
			},
			want: 1,
		},
		{
			name: "agent without a trail halves",
			in: Input{
				Kind:          entity.KindAgent,
				GrantedScopes: 2, UsedPermissions: 2,
			},
			want: 0.5,
		},
		{
			name: "drift narrows the score",
			// cos(pi/3)=0.5: 0.5 * 1.5 * 1.1 = 0.825
			in: Input{
				Kind: entity.KindHumanCredential, Role: entity.RoleMember,
				GrantedScopes: 2, UsedPermissions: 2, ScopeDrift: 1.0471975511965976,
				AuditTrail: 1,
			},
			want: 0.825,
		},
		{
			name: "stale credential decays",
			// time = 1 - 0.01*(150-100) = 0.5: 1 * 1.5 * 0.5 = 0.75
			in: Input{
				Kind: entity.KindHumanCredential, Role: entity.RoleMember,
				GrantedScopes: 1, UsedPermissions: 1,
				AgeDays: 150, HasAge: true, AuditTrail: 1,
			},
			want: 0.75,
		},
		{
			name: "decay floors at 0.3",
			in: Input{
				Kind: entity.KindHumanCredential, Role: entity.RoleMember,
				GrantedScopes: 1, UsedPermissions: 1,
				AgeDays: 300, HasAge: true, AuditTrail: 1,
			},
			want: 0.45,
		},
		{
			name: "young service credential boost clamps",
			in: Input{
				Kind:          entity.KindServiceCredential,
				GrantedScopes: 1, UsedPermissions: 1,
				AgeDays: 10, HasAge: true, AuditTrail: 1,
			},
			want: 1,
		},
		{
			name: "repo exposure boosts rather than penalizes",
			in: Input{
				Kind: entity.KindHumanCredential, Role: entity.RoleMember,
				GrantedScopes: 2, UsedPermissions: 2,
				TotalRepos: 1, PrivateRepos: 1, HasRepoData: true,
				AuditTrail: 1,
			},
			want: 1,
		},
		{
			name: "human without trail or provenance falls to default audit factor",
			// 1 * 1.5 * 1.1 * 0.5 = 0.825
			in: Input{
				Kind: entity.KindHumanCredential, Role: entity.RoleMember,
				GrantedScopes: 1, UsedPermissions: 1,
			},
			want: 0.825,
		},
		{
			name: "agent ignores role and repo boosts",
			in: Input{
				Kind: entity.KindAgent, Role: entity.RoleAdmin,
				GrantedScopes: 2, UsedPermissions: 2,
				TotalRepos: 10, PrivateRepos: 5, AdminRepos: 2, HasRepoData: true,
				AuditTrail: 1,
			},
			want: 1, // base 1, every factor neutral
		},
		{
			name: "zero used permissions treated as one",
			// quality = 2/1, same as the admin example but member role:
			// 0.5 * 1.5 * 1.1 = 0.825
			in: Input{
				Kind: entity.KindHumanCredential, Role: entity.RoleMember,
				GrantedScopes: 2, UsedPermissions: 0, AuditTrail: 1,
			},
			want: 0.825,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.in), 1e-9)
		})
	}
}

func TestProvenanceMarkersSoftenMissingTrail(t *testing.T) {
	base := Input{
		Kind: entity.KindHumanCredential, Role: entity.RoleNone,
		GrantedScopes: 1, UsedPermissions: 1,
		ScopeDrift: 1.2, // keep the product under the clamp
	}

	none := Score(base)

	withMarkers := base
	withMarkers.Provenance = []string{"org:acme", "role:member"}
	marked := Score(withMarkers)

	assert.Greater(t, marked, none)

	// Short or unrelated markers carry no weight.
	junk := base
	junk.Provenance = []string{"org", "x", "team:payments"}
	assert.InDelta(t, none, Score(junk), 1e-9)
}

func TestBuildInput(t *testing.T) {
	now := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	issued := now.AddDate(0, 0, -45)
	e := &entity.Entity{
		ID:              "tok-1",
		Kind:            entity.KindHumanCredential,
		Role:            entity.RoleMember,
		Scope:           []string{"read:org", "repo"},
		UsedPermissions: 1,
		TotalRepos:      3,
		IssuedOn:        &issued,
		AuditTrail:      []entity.AuditEvent{{}},
	}

	in := BuildInput(e, now)

	assert.Equal(t, 2, in.GrantedScopes)
	assert.Equal(t, 45, in.AgeDays)
	assert.True(t, in.HasAge)
	assert.True(t, in.HasRepoData)
	assert.Equal(t, 1, in.AuditTrail)
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, TierCritical, TierFor(0.19, 0.2, 0.8))
	assert.Equal(t, TierDegrading, TierFor(0.2, 0.2, 0.8))
	assert.Equal(t, TierDegrading, TierFor(0.79, 0.2, 0.8))
	assert.Equal(t, TierHealthy, TierFor(0.8, 0.2, 0.8))
	assert.Equal(t, TierHealthy, TierFor(1.0, 0.2, 0.8))
}
