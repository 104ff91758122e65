package entity

import "fmt"

// ActionType tags the closed set of remedial actions. Adding a kind here
// requires updating every switch in the remediation path; that is the
// point.
type ActionType int

const (
	ActionRoleChange ActionType = iota
	ActionRevokeAccess
	ActionScopeReduction
)

func (t ActionType) String() string {
	switch t {
	case ActionRoleChange:
		return "org_role_change"
	case ActionRevokeAccess:
		return "revoke_org_access"
	case ActionScopeReduction:
		return "scope_reduction"
	default:
		return "unknown"
	}
}

func ParseActionType(s string) (ActionType, error) {
	switch s {
	case "org_role_change":
		return ActionRoleChange, nil
	case "revoke_org_access":
		return ActionRevokeAccess, nil
	case "scope_reduction":
		return ActionScopeReduction, nil
	default:
		return 0, fmt.Errorf("unknown action type %q", s)
	}
}

func (t ActionType) MarshalYAML() (interface{}, error) { return t.String(), nil }

func (t *ActionType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseActionType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Action is a tagged variant: exactly one payload field is meaningful per
// Type. TargetRole accompanies ActionRoleChange, TargetScopes accompanies
// ActionScopeReduction, ActionRevokeAccess carries nothing.
type Action struct {
	Type         ActionType `yaml:"type"`
	TargetRole   Role       `yaml:"target_role,omitempty"`
	TargetScopes []string   `yaml:"target_scopes,flow,omitempty"`
}

func NewRoleChange(target Role) Action {
	return Action{Type: ActionRoleChange, TargetRole: target}
}

func NewRevokeAccess() Action {
	return Action{Type: ActionRevokeAccess}
}

func NewScopeReduction(scopes []string) Action {
	return Action{Type: ActionScopeReduction, TargetScopes: scopes}
}

func (a Action) String() string {
	switch a.Type {
	case ActionRoleChange:
		return fmt.Sprintf("org_role_change(%s)", a.TargetRole)
	case ActionRevokeAccess:
		return "revoke_org_access"
	case ActionScopeReduction:
		return fmt.Sprintf("scope_reduction(%v)", a.TargetScopes)
	default:
		return "unknown"
	}
}
