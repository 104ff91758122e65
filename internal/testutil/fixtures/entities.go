package fixtures

import (
	"time"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/domain/product"
)

// EntityBuilder builds test Entity records.
type EntityBuilder struct {
	e entity.Entity
}

// NewEntityBuilder creates an EntityBuilder with a healthy credential as
// the default: full scope usage, no drift, an audit trail present.
func NewEntityBuilder(id string) *EntityBuilder {
	issued := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	used := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	return &EntityBuilder{e: entity.Entity{
		ID:              id,
		Owner:           "alice",
		Kind:            entity.KindHumanCredential,
		Role:            entity.RoleMember,
		State:           entity.StateActive,
		Scope:           []string{"read:org", "repo"},
		UsedPermissions: 2,
		ScopeDrift:      0,
		Provenance:      []string{"org:acme", "role:member"},
		IssuedOn:        &issued,
		LastUsed:        &used,
		AuditTrail:      []entity.AuditEvent{{Event: entity.AuditProposed}},
	}}
}

func (b *EntityBuilder) WithOwner(owner string) *EntityBuilder {
	b.e.Owner = owner
	return b
}

func (b *EntityBuilder) WithKind(kind entity.Kind) *EntityBuilder {
	b.e.Kind = kind
	return b
}

func (b *EntityBuilder) WithRole(role entity.Role) *EntityBuilder {
	b.e.Role = role
	return b
}

func (b *EntityBuilder) WithState(state entity.State) *EntityBuilder {
	b.e.State = state
	return b
}

func (b *EntityBuilder) WithScope(scope ...string) *EntityBuilder {
	b.e.Scope = scope
	return b
}

func (b *EntityBuilder) WithUsedPermissions(n int) *EntityBuilder {
	b.e.UsedPermissions = n
	return b
}

func (b *EntityBuilder) WithScopeDrift(drift float64) *EntityBuilder {
	b.e.ScopeDrift = drift
	return b
}

func (b *EntityBuilder) WithProvenance(markers ...string) *EntityBuilder {
	b.e.Provenance = markers
	return b
}

func (b *EntityBuilder) WithRepos(total, private, admin int, names ...string) *EntityBuilder {
	b.e.TotalRepos = total
	b.e.PrivateRepos = private
	b.e.AdminRepos = admin
	b.e.Repos = names
	return b
}

func (b *EntityBuilder) WithIssuedOn(t time.Time) *EntityBuilder {
	b.e.IssuedOn = &t
	return b
}

func (b *EntityBuilder) WithNoAuditTrail() *EntityBuilder {
	b.e.AuditTrail = nil
	return b
}

func (b *EntityBuilder) WithPurpose(purpose string) *EntityBuilder {
	b.e.Purpose = purpose
	return b
}

func (b *EntityBuilder) WithAssociatedToken(tokenID string) *EntityBuilder {
	b.e.AssociatedTokenID = tokenID
	return b
}

// WithScoreHistory seeds the history window from oldest to newest, one
// reading per day ending 2026-08-30, and sets the current score to the
// last reading.
func (b *EntityBuilder) WithScoreHistory(scores ...float64) *EntityBuilder {
	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -len(scores)+1)
	var h entity.ScoreHistory
	for i, s := range scores {
		h = h.Append(s, base.AddDate(0, 0, i))
	}
	b.e.ScoreHistory = h
	if len(scores) > 0 {
		b.e.Score = scores[len(scores)-1]
	}
	return b
}

func (b *EntityBuilder) Build() *entity.Entity {
	e := b.e
	return &e
}

// NewAgentBuilder creates an EntityBuilder preset to an agent tied to a
// credential.
func NewAgentBuilder(id, tokenID string) *EntityBuilder {
	b := NewEntityBuilder(id)
	b.e.Owner = ""
	b.e.Kind = entity.KindAgent
	b.e.Role = entity.RoleNone
	b.e.Scope = []string{"contents", "pull-requests"}
	b.e.UsedPermissions = 2
	b.e.Provenance = nil
	b.e.AgentName = "ci"
	b.e.AssociatedTokenID = tokenID
	b.e.WorkflowFile = ".github/workflows/ci.yml"
	return b
}

// ProductBuilder builds test Product records.
type ProductBuilder struct {
	p product.Product
}

func NewProductBuilder(id string) *ProductBuilder {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return &ProductBuilder{p: product.Product{
		ID:              id,
		Name:            "checkout",
		ResponsibleTeam: "payments",
		HealthStatus:    product.HealthUnknown,
		CreatedAt:       now,
		UpdatedAt:       now,
	}}
}

func (b *ProductBuilder) WithName(name string) *ProductBuilder {
	b.p.Name = name
	return b
}

func (b *ProductBuilder) WithLinkedTokens(ids ...string) *ProductBuilder {
	b.p.LinkedTokens = ids
	return b
}

func (b *ProductBuilder) WithLinkedAgents(ids ...string) *ProductBuilder {
	b.p.LinkedAgents = ids
	return b
}

func (b *ProductBuilder) Build() *product.Product {
	p := b.p
	return &p
}
