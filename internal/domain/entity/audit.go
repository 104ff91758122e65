package entity

import (
	"time"

	"github.com/google/uuid"
)

// AuditEventType distinguishes the two lifecycle events the trail records.
type AuditEventType string

const (
	AuditProposed AuditEventType = "proposed"
	AuditApplied  AuditEventType = "applied"
)

// Outcome is the raw result of one remediation attempt as recorded in the
// audit trail.
type Outcome struct {
	OK     bool   `yaml:"ok"`
	Detail string `yaml:"detail"`
}

// AuditEvent is one immutable entry in an entity's audit trail. The trail
// is the sole source of truth for what happened and when; events are only
// ever appended.
type AuditEvent struct {
	ID        uuid.UUID      `yaml:"event_id"`
	Event     AuditEventType `yaml:"event"`
	Action    Action         `yaml:"action"`
	Reason    string         `yaml:"reason,omitempty"`
	Before    Snapshot       `yaml:"before"`
	After     *Snapshot      `yaml:"after,omitempty"`
	Result    *Outcome       `yaml:"result,omitempty"`
	Actor     string         `yaml:"actor"`
	Timestamp time.Time      `yaml:"timestamp"`
}

// NewProposedEvent records that an action was proposed for the entity.
func NewProposedEvent(e *Entity, action Action, reason, actor string, now time.Time) AuditEvent {
	return AuditEvent{
		ID:        uuid.New(),
		Event:     AuditProposed,
		Action:    action,
		Reason:    reason,
		Before:    e.Snapshot(),
		Actor:     actor,
		Timestamp: now,
	}
}

// NewAppliedEvent records the outcome of applying an action, with
// before/after snapshots bracketing the attempt.
func NewAppliedEvent(before, after Snapshot, action Action, result Outcome, actor string, now time.Time) AuditEvent {
	return AuditEvent{
		ID:        uuid.New(),
		Event:     AuditApplied,
		Action:    action,
		Before:    before,
		After:     &after,
		Result:    &result,
		Actor:     actor,
		Timestamp: now,
	}
}
