package entity

import (
	"fmt"
	"time"
)

// Entity is the unit of trust evaluation: a human credential, a service
// credential, an automated workflow agent, or an aggregated product.
type Entity struct {
	ID    string `yaml:"id" validate:"required"`
	Owner string `yaml:"owner"`
	Kind  Kind   `yaml:"kind"`
	Role  Role   `yaml:"role"`
	State State  `yaml:"state"`

	// Scope is the ordered set of granted capability names.
	Scope []string `yaml:"scope,flow"`
	// UsedPermissions is how many of the granted capabilities were exercised.
	UsedPermissions int `yaml:"used_permissions"`
	// ScopeDrift is the observed drift between granted and exercised
	// capabilities, in radians.
	ScopeDrift float64 `yaml:"scope_drift"`

	// Provenance carries org/role markers recorded at sync time
	// (e.g. "org:acme", "role:admin").
	Provenance []string `yaml:"provenance,flow,omitempty"`

	// Repo exposure, populated by member sync when available.
	Repos        []string `yaml:"repos,flow,omitempty"`
	TotalRepos   int      `yaml:"total_repos,omitempty"`
	PrivateRepos int      `yaml:"private_repos,omitempty"`
	AdminRepos   int      `yaml:"admin_repos,omitempty"`

	// Agent metadata, populated by workflow detection.
	AgentName         string `yaml:"agent_name,omitempty"`
	Purpose           string `yaml:"purpose,omitempty"`
	AssociatedTokenID string `yaml:"associated_token_id,omitempty"`
	WorkflowFile      string `yaml:"workflow_file,omitempty"`

	IssuedOn   *time.Time `yaml:"issued_on,omitempty"`
	LastUsed   *time.Time `yaml:"last_used,omitempty"`
	LastScored *time.Time `yaml:"last_scored,omitempty"`

	Score        float64      `yaml:"survivability_score"`
	ScoreHistory ScoreHistory `yaml:"score_history,omitempty"`
	AuditTrail   []AuditEvent `yaml:"audit_trail,omitempty"`
}

type Kind int

const (
	KindHumanCredential Kind = iota
	KindServiceCredential
	KindAgent
	KindProduct
)

func (k Kind) String() string {
	switch k {
	case KindHumanCredential:
		return "user"
	case KindServiceCredential:
		return "service_account"
	case KindAgent:
		return "agent"
	case KindProduct:
		return "product"
	default:
		return "unknown"
	}
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "user":
		return KindHumanCredential, nil
	case "service_account":
		return KindServiceCredential, nil
	case "agent":
		return KindAgent, nil
	case "product":
		return KindProduct, nil
	default:
		return 0, fmt.Errorf("unknown entity kind %q", s)
	}
}

func (k Kind) MarshalYAML() (interface{}, error) { return k.String(), nil }

func (k *Kind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Role is the organizational privilege level. RoleNone covers agents and
// service credentials that hold no org membership of their own.
type Role int

const (
	RoleNone Role = iota
	RoleMember
	RoleAdmin
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

func ParseRole(s string) (Role, error) {
	switch s {
	case "", "none":
		return RoleNone, nil
	case "member":
		return RoleMember, nil
	case "admin":
		return RoleAdmin, nil
	case "owner":
		return RoleOwner, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// Privileged reports whether the role sits in the elevated tier that the
// policy evaluator downgrades instead of scope-reducing.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleOwner
}

func (r Role) MarshalYAML() (interface{}, error) { return r.String(), nil }

func (r *Role) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// State is the lifecycle tag. Revocation is terminal: there is no
// transition out of StateRevoked.
type State int

const (
	StateActive State = iota
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

func ParseState(s string) (State, error) {
	switch s {
	case "", "active":
		return StateActive, nil
	case "revoked":
		return StateRevoked, nil
	default:
		return 0, fmt.Errorf("unknown state %q", s)
	}
}

func (s State) MarshalYAML() (interface{}, error) { return s.String(), nil }

func (s *State) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	parsed, err := ParseState(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IsCredential reports whether the entity is scored with the credential
// branch of the formula (role and repo boosts apply).
func (e *Entity) IsCredential() bool {
	return e.Kind == KindHumanCredential || e.Kind == KindServiceCredential
}

// Snapshot captures role/state/scope at a point in time. Manifests embed a
// snapshot taken at proposal time; audit events record before/after pairs.
type Snapshot struct {
	Role  Role     `yaml:"role"`
	State State    `yaml:"state"`
	Scope []string `yaml:"scope,flow"`
}

// Snapshot returns the entity's current role/state/scope.
func (e *Entity) Snapshot() Snapshot {
	scope := make([]string, len(e.Scope))
	copy(scope, e.Scope)
	return Snapshot{Role: e.Role, State: e.State, Scope: scope}
}

var ErrRevokedTerminal = fmt.Errorf("entity state is revoked; no further transitions exist")

// ApplyAction mutates the entity's live fields to mirror an externally
// confirmed action. Callers must only invoke this after the authorization
// system reported success; the ledger follows external reality, never
// leads it.
func (e *Entity) ApplyAction(a Action) error {
	if e.State == StateRevoked {
		if a.Type == ActionRevokeAccess {
			// Re-confirming a revocation is a no-op, not a transition.
			return nil
		}
		return ErrRevokedTerminal
	}
	switch a.Type {
	case ActionRoleChange:
		e.Role = a.TargetRole
	case ActionRevokeAccess:
		e.State = StateRevoked
	case ActionScopeReduction:
		if len(a.TargetScopes) > 0 {
			scope := make([]string, len(a.TargetScopes))
			copy(scope, a.TargetScopes)
			e.Scope = scope
		}
	default:
		return fmt.Errorf("unknown action type %d", a.Type)
	}
	return nil
}

// AppendAudit appends one event to the audit trail. The trail is
// append-only; events are never reordered or rewritten.
func (e *Entity) AppendAudit(ev AuditEvent) {
	e.AuditTrail = append(e.AuditTrail, ev)
}

// RecordScore stores a freshly computed score and pushes it onto the
// bounded history window.
func (e *Entity) RecordScore(score float64, now time.Time) {
	e.Score = score
	e.ScoreHistory = e.ScoreHistory.Append(score, now)
	ts := now
	e.LastScored = &ts
}
