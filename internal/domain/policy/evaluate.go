package policy

import (
	"fmt"
	"strings"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/domain/scoring"
)

// Decision is the evaluator's verdict for one entity. Action is always
// populated for entities below the warning threshold, even when debounce
// rules hold the candidacy back, so callers can see what would be
// proposed.
type Decision struct {
	Candidate bool
	Reason    string
	Action    entity.Action
}

// Evaluate decides candidacy and the proposed remedial action from the
// entity, its trailing score history and the policy. It is a total
// function: missing history or optional fields read as "no evidence" and
// default to the least severe interpretation.
func Evaluate(e *entity.Entity, history entity.ScoreHistory, p Policy) Decision {
	if e.Kind == entity.KindProduct {
		return Decision{Reason: "products aggregate linked scores and are never remediated"}
	}
	if e.State == entity.StateRevoked {
		return Decision{Reason: "already_revoked"}
	}
	if p.Exempted(e) {
		return Decision{Reason: "exempted"}
	}

	score := e.Score
	tier := scoring.TierFor(score, p.Risk.CriticalThreshold, p.Risk.WarningThreshold)
	recent := trailing(history, p.Acceptance.LastN)

	// A severe single-step fall from a healthy reading flags the entity
	// no matter which tier the new score lands in; a good rolling
	// average must not mask a sudden compromise.
	if drop, ok := recent.LastDrop(); ok {
		if prev, _ := recent.Previous(); prev >= p.Risk.WarningThreshold && drop >= p.SevereDrop() {
			return Decision{
				Candidate: true,
				Reason:    fmt.Sprintf("severe_drop_from_healthy=%.3f", drop),
				Action:    actionForTier(e, tier, p),
			}
		}
	}

	switch tier {
	case scoring.TierHealthy:
		return Decision{Reason: "score_above_warning_threshold"}

	case scoring.TierCritical:
		return Decision{
			Candidate: true,
			Reason:    criticalReason(score, recent, p),
			Action:    entity.NewRevokeAccess(),
		}

	default: // degrading band: require corroborating evidence
		action := actionForTier(e, tier, p)
		criticalCount := recent.CountBelow(p.Risk.CriticalThreshold)
		requiredCritical := p.Acceptance.MinCriticalCount + 2

		var reasons []string
		if criticalCount >= requiredCritical {
			reasons = append(reasons, fmt.Sprintf("degrading_score=%.3f; high_critical_count=%d/%d",
				score, criticalCount, p.Acceptance.LastN))
		}
		if drop, ok := recent.LastDrop(); ok && drop >= p.DegradingDrop() {
			reasons = append(reasons, fmt.Sprintf("degrading_score=%.3f; severe_drop=%.3f", score, drop))
		}
		if len(reasons) == 0 {
			return Decision{
				Reason: "insufficient_corroborating_evidence",
				Action: action,
			}
		}
		return Decision{
			Candidate: true,
			Reason:    strings.Join(reasons, "; "),
			Action:    action,
		}
	}
}

// actionForTier maps the tier to the proposal catalogue. The critical band
// always escalates to revocation; the degrading band downgrades privileged
// roles and narrows everything else. Agents and service credentials hold
// no org role, so they never receive a RoleChange.
func actionForTier(e *entity.Entity, tier scoring.Tier, p Policy) entity.Action {
	if tier == scoring.TierCritical {
		return entity.NewRevokeAccess()
	}
	switch e.Kind {
	case entity.KindHumanCredential:
		if e.Role.Privileged() {
			return entity.NewRoleChange(p.Actions.DowngradeTargetRole)
		}
		return entity.NewScopeReduction(p.Actions.ReducedScopes)
	default:
		return entity.NewScopeReduction(p.Actions.ReducedScopes)
	}
}

func criticalReason(score float64, recent entity.ScoreHistory, p Policy) string {
	criticalCount := recent.CountBelow(p.Risk.CriticalThreshold)
	reason := fmt.Sprintf("score=%.3f<%.1f; critical_count=%d/%d",
		score, p.Risk.CriticalThreshold, criticalCount, p.Acceptance.LastN)
	if drop, ok := recent.LastDrop(); ok && drop >= p.Acceptance.MaxDrop {
		reason += fmt.Sprintf("; drop_24h=%.3f", drop)
	}
	return reason
}

func trailing(h entity.ScoreHistory, n int) entity.ScoreHistory {
	if n > 0 && len(h) > n {
		return h[len(h)-n:]
	}
	return h
}
