package manifest

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/secopshq/survivault/internal/domain/entity"
)

// Status is the logical lifecycle of a proposal. The file store uses file
// presence as its persistence signal, but callers only ever see this
// field.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

// Manifest is a durable, disposable record of one proposed remediation
// action for one entity. It is created by the policy evaluator, consumed
// by the remediator, deleted on success and retained on failure so the
// next pass retries it. The ledger's audit trail, not the manifest, is the
// permanent record.
type Manifest struct {
	ID             uuid.UUID       `yaml:"manifest_id"`
	EntityID       string          `yaml:"entity_id"`
	Owner          string          `yaml:"owner,omitempty"`
	Kind           entity.Kind     `yaml:"entity_kind"`
	CurrentState   entity.Snapshot `yaml:"current_state"`
	ProposedAction entity.Action   `yaml:"proposed_action"`
	// TargetRepos lists the resources a scope reduction applies to.
	TargetRepos []string  `yaml:"target_repos,flow,omitempty"`
	Reason      string    `yaml:"reason"`
	ProposedAt  time.Time `yaml:"proposed_at"`
	Status      Status    `yaml:"status"`
	// LastFailure records the error class of a non-retryable application
	// failure. A manifest carrying one is never re-applied automatically;
	// it stays staged until an operator resolves it.
	LastFailure string `yaml:"last_failure,omitempty"`
}

// Blocked reports whether a prior application failed in a way retrying
// cannot fix.
func (m Manifest) Blocked() bool { return m.LastFailure != "" }

// New builds a pending manifest for an entity, snapshotting its
// role/state/scope at proposal time for fail-safe diffing.
func New(e *entity.Entity, action entity.Action, reason string, now time.Time) Manifest {
	m := Manifest{
		ID:             uuid.New(),
		EntityID:       e.ID,
		Owner:          e.Owner,
		Kind:           e.Kind,
		CurrentState:   e.Snapshot(),
		ProposedAction: action,
		Reason:         reason,
		ProposedAt:     now,
		Status:         StatusPending,
	}
	if action.Type == entity.ActionScopeReduction {
		m.TargetRepos = append(m.TargetRepos, e.Repos...)
	}
	return m
}

// Validate enforces the invariants a manifest must carry before it is ever
// applied.
func (m Manifest) Validate() error {
	if m.EntityID == "" {
		return fmt.Errorf("manifest %s missing entity id", m.ID)
	}
	switch m.ProposedAction.Type {
	case entity.ActionRoleChange, entity.ActionRevokeAccess, entity.ActionScopeReduction:
		return nil
	default:
		return fmt.Errorf("manifest %s carries unknown action type", m.ID)
	}
}
