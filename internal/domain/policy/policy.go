package policy

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/domain/errors"
)

// Policy is the static remediation policy: risk thresholds, debounce
// acceptance rules, exemption lists and the action catalogue. It is loaded
// once per pass; nothing in the engine mutates it.
type Policy struct {
	Risk       RiskConfig       `yaml:"risk"`
	Acceptance AcceptanceConfig `yaml:"acceptance"`
	Exemptions ExemptionConfig  `yaml:"exemptions"`
	Actions    ActionConfig     `yaml:"actions"`
}

type RiskConfig struct {
	CriticalThreshold float64 `yaml:"critical_threshold" validate:"gte=0,lte=1"`
	WarningThreshold  float64 `yaml:"warning_threshold" validate:"gte=0,lte=1,gtefield=CriticalThreshold"`
}

// AcceptanceConfig is the debounce policy for the degrading band: a single
// noisy sample must not trigger an access reduction.
type AcceptanceConfig struct {
	// LastN bounds how many trailing readings are consulted.
	LastN int `yaml:"last_n" validate:"gte=1,lte=7"`
	// MinCriticalCount is the base corroboration requirement; the
	// degrading band requires MinCriticalCount+2 critical readings.
	MinCriticalCount int `yaml:"min_critical_count_in_last_n" validate:"gte=1"`
	// MaxDrop is the single-step drop that counts as evidence.
	MaxDrop float64 `yaml:"max_drop_24h" validate:"gt=0,lte=1"`
	// SevereDropMultiplier scales MaxDrop for the drop-from-healthy
	// guard.
	SevereDropMultiplier float64 `yaml:"severe_drop_multiplier" validate:"gte=1"`
	// DegradingDropMultiplier scales MaxDrop for consecutive-drop
	// evidence inside the degrading band.
	DegradingDropMultiplier float64 `yaml:"degrading_drop_multiplier" validate:"gte=1"`
}

type ExemptionConfig struct {
	// Owners exempts every entity owned by the listed principals.
	Owners []string `yaml:"users,flow"`
	// Entities exempts individual entity ids.
	Entities []string `yaml:"tokens,flow"`
}

type ActionConfig struct {
	// DowngradeTargetRole is where a privileged role lands on a
	// RoleChange proposal.
	DowngradeTargetRole entity.Role `yaml:"downgrade_target_role"`
	// ReducedScopes is the scope set a ScopeReduction narrows to.
	ReducedScopes []string `yaml:"reduced_scopes,flow" validate:"min=1"`
}

// Default returns the reference policy.
func Default() Policy {
	return Policy{
		Risk: RiskConfig{
			CriticalThreshold: 0.2,
			WarningThreshold:  0.8,
		},
		Acceptance: AcceptanceConfig{
			LastN:                   7,
			MinCriticalCount:        3,
			MaxDrop:                 0.4,
			SevereDropMultiplier:    1.25,
			DegradingDropMultiplier: 1.5,
		},
		Actions: ActionConfig{
			DowngradeTargetRole: entity.RoleMember,
			ReducedScopes:       []string{"read:org", "repo"},
		},
	}
}

// Load reads a policy file, fills unset knobs from the defaults and
// validates the result. A missing or invalid file is a ConfigError: the
// pass must abort before mutating anything.
func Load(path string) (Policy, error) {
	p := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, errors.NewConfigError("POLICY_UNREADABLE",
			fmt.Sprintf("reading policy %s", path)).WithCause(err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, errors.NewConfigError("POLICY_INVALID",
			fmt.Sprintf("parsing policy %s", path)).WithCause(err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks the policy invariants with struct tags.
func (p Policy) Validate() error {
	v := validator.New()
	if err := v.Struct(p); err != nil {
		return errors.NewConfigError("POLICY_INVALID", "policy failed validation").WithCause(err)
	}
	return nil
}

// Exempted reports whether the entity is covered by an exemption list.
func (p Policy) Exempted(e *entity.Entity) bool {
	for _, id := range p.Exemptions.Entities {
		if id == e.ID {
			return true
		}
	}
	for _, owner := range p.Exemptions.Owners {
		if owner != "" && owner == e.Owner {
			return true
		}
	}
	return false
}

// SevereDrop is the single-step drop that flags even a previously healthy
// entity.
func (p Policy) SevereDrop() float64 {
	return p.Acceptance.MaxDrop * p.Acceptance.SevereDropMultiplier
}

// DegradingDrop is the consecutive-reading drop that corroborates a
// degrading-band candidate.
func (p Policy) DegradingDrop() float64 {
	return p.Acceptance.MaxDrop * p.Acceptance.DegradingDropMultiplier
}
