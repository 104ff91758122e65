package remediation

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/domain/errors"
	"github.com/secopshq/survivault/internal/domain/manifest"
	"github.com/secopshq/survivault/internal/domain/policy"
	"github.com/secopshq/survivault/internal/infrastructure/ledger"
	"github.com/secopshq/survivault/internal/infrastructure/manifeststore"
	"github.com/secopshq/survivault/internal/metrics"
)

// DetectSummary reports one staging phase.
type DetectSummary struct {
	Evaluated int      `json:"evaluated"`
	Staged    int      `json:"staged"`
	Skipped   int      `json:"skipped_pending"`
	Manifests []string `json:"manifests"`
}

// ApplySummary reports one application phase. It distinguishes "nothing
// to do" from "everything failed".
type ApplySummary struct {
	Total   int `json:"total"`
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
	Dropped int `json:"dropped_integrity"`
	// Blocked counts manifests held back by a prior non-retryable
	// failure; they need an operator, not another pass.
	Blocked int `json:"blocked"`
	Pending int `json:"pending"`
}

// Service owns the remediation lifecycle: staging proposals for policy
// candidates, applying pending manifests against the authorization
// system, and reconciling outcomes into the ledgers. Passes are strictly
// sequential; the ledger stores serialize writes underneath.
type Service struct {
	tokens    *ledger.Store
	agents    *ledger.Store
	manifests *manifeststore.Store
	rem       *Remediator
	pol       policy.Policy
	approver  string
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(tokens, agents *ledger.Store, manifests *manifeststore.Store, authz Authorizer, pol policy.Policy, approver string, logger *slog.Logger) *Service {
	if approver == "" {
		approver = "auto-heal-bot"
	}
	return &Service{
		tokens:    tokens,
		agents:    agents,
		manifests: manifests,
		rem:       NewRemediator(authz),
		pol:       pol,
		approver:  approver,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock pins the pass clock; tests use it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Detect evaluates every ledger entity against the policy and stages one
// manifest per new candidate. An entity with an unresolved proposal is
// skipped: the store rejects duplicates and the evaluator re-running
// before resolution must not stack proposals.
func (s *Service) Detect(ctx context.Context) (DetectSummary, error) {
	started := s.now()
	var summary DetectSummary

	tokens, err := s.tokens.Load()
	if err != nil {
		return summary, err
	}
	agents, err := s.agents.LoadOrEmpty()
	if err != nil {
		return summary, err
	}

	for _, group := range []map[string]*entity.Entity{tokens, agents} {
		for _, id := range sortedIDs(group) {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			e := group[id]
			summary.Evaluated++

			decision := policy.Evaluate(e, e.ScoreHistory, s.pol)
			if !decision.Candidate {
				continue
			}

			m := manifest.New(e, decision.Action, decision.Reason, s.now())
			if _, err := s.manifests.Stage(m); err != nil {
				if errors.IsType(err, errors.ErrorTypeConflict) {
					summary.Skipped++
					s.logger.InfoContext(ctx, "manifest already pending, skipping",
						"entity_id", e.ID)
					continue
				}
				// A store failure for one entity must not block the
				// rest of the batch.
				metrics.PassFailures.WithLabelValues("detect").Inc()
				s.logger.ErrorContext(ctx, "staging manifest failed",
					"entity_id", e.ID, "error", err)
				continue
			}

			e.AppendAudit(entity.NewProposedEvent(e, decision.Action, decision.Reason, s.approver, s.now()))
			summary.Staged++
			summary.Manifests = append(summary.Manifests, e.ID)
			metrics.ManifestsStaged.WithLabelValues(decision.Action.Type.String()).Inc()
			s.logger.InfoContext(ctx, "remediation proposed",
				"entity_id", e.ID,
				"action", decision.Action.String(),
				"reason", decision.Reason)
		}
	}

	if err := s.tokens.Save(tokens); err != nil {
		return summary, err
	}
	if len(agents) > 0 {
		if err := s.agents.Save(agents); err != nil {
			return summary, err
		}
	}

	metrics.PassDuration.WithLabelValues("detect").Observe(s.now().Sub(started).Seconds())
	return summary, nil
}

// Apply walks every pending manifest, enacts it and reconciles the
// outcome. Ledgers are rewritten after each entity so an interrupted pass
// resumes cleanly: applied entities are committed, unapplied manifests
// are still staged.
func (s *Service) Apply(ctx context.Context) (ApplySummary, error) {
	started := s.now()
	var summary ApplySummary

	tokens, err := s.tokens.Load()
	if err != nil {
		return summary, err
	}
	agents, err := s.agents.LoadOrEmpty()
	if err != nil {
		return summary, err
	}

	pending, err := s.manifests.List()
	if err != nil {
		return summary, err
	}
	summary.Total = len(pending)

	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			break
		}

		if m.Blocked() {
			// A prior pass failed non-retryably. Re-applying cannot
			// succeed and would spam the authorization system and the
			// audit trail; hold the manifest for an operator.
			summary.Blocked++
			s.logger.WarnContext(ctx, "manifest blocked by non-retryable failure, needs operator",
				"entity_id", m.EntityID,
				"manifest_id", m.ID.String(),
				"failure", m.LastFailure)
			continue
		}

		e, home := s.findEntity(tokens, agents, m.EntityID)
		if e == nil {
			// The manifest outlived its entity. Drop it loudly and
			// move on; guessing would be worse than losing the
			// proposal.
			summary.Dropped++
			s.logger.ErrorContext(ctx, "manifest references entity missing from ledger, dropping",
				"entity_id", m.EntityID, "manifest_id", m.ID.String())
			if err := s.manifests.Discard(m.ID); err != nil {
				s.logger.ErrorContext(ctx, "discarding orphaned manifest failed",
					"manifest_id", m.ID.String(), "error", err)
			}
			continue
		}

		res := s.rem.Apply(ctx, m)
		if err := Reconcile(e, m, res, s.approver, s.now()); err != nil {
			summary.Failed++
			metrics.PassFailures.WithLabelValues("apply").Inc()
			s.logger.ErrorContext(ctx, "reconciliation failed",
				"entity_id", e.ID, "error", err)
			continue
		}

		if err := s.saveHome(home, tokens, agents); err != nil {
			return summary, err
		}

		if res.OK {
			summary.Applied++
			metrics.ManifestsApplied.WithLabelValues(m.ProposedAction.Type.String(), "ok").Inc()
			if err := s.manifests.Discard(m.ID); err != nil {
				s.logger.ErrorContext(ctx, "applied but discarding manifest failed",
					"manifest_id", m.ID.String(), "error", err)
			}
			s.logger.InfoContext(ctx, "remediation applied",
				"entity_id", e.ID, "action", m.ProposedAction.String(), "detail", res.Detail)
		} else {
			summary.Failed++
			metrics.ManifestsApplied.WithLabelValues(m.ProposedAction.Type.String(), "failed").Inc()
			if errors.IsRetryable(res.Err) {
				// Transient failure; the manifest stays staged and the
				// next pass retries it.
				s.logger.WarnContext(ctx, "remediation failed, manifest retained for retry",
					"entity_id", e.ID,
					"action", m.ProposedAction.String(),
					"detail", res.Detail)
			} else {
				// Retrying cannot help. Mark the manifest so later
				// passes hold it instead of re-applying.
				if err := s.manifests.MarkFailed(m.ID, string(errors.TypeOf(res.Err))); err != nil {
					s.logger.ErrorContext(ctx, "marking manifest failed did not persist",
						"manifest_id", m.ID.String(), "error", err)
				}
				s.logger.ErrorContext(ctx, "remediation failed non-retryably, manifest blocked",
					"entity_id", e.ID,
					"action", m.ProposedAction.String(),
					"failure", string(errors.TypeOf(res.Err)),
					"detail", res.Detail)
			}
		}
	}

	left, err := s.manifests.List()
	if err == nil {
		summary.Pending = len(left)
		metrics.ManifestsPending.Set(float64(len(left)))
	}
	metrics.PassDuration.WithLabelValues("apply").Observe(s.now().Sub(started).Seconds())
	return summary, nil
}

func (s *Service) findEntity(tokens, agents map[string]*entity.Entity, id string) (*entity.Entity, string) {
	if e, ok := tokens[id]; ok {
		return e, "tokens"
	}
	if e, ok := agents[id]; ok {
		return e, "agents"
	}
	return nil, ""
}

func (s *Service) saveHome(home string, tokens, agents map[string]*entity.Entity) error {
	if home == "agents" {
		return s.agents.Save(agents)
	}
	return s.tokens.Save(tokens)
}

func sortedIDs(m map[string]*entity.Entity) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PendingIDs lists entity ids with unresolved manifests, for digests.
func (s *Service) PendingIDs() ([]string, error) {
	pending, err := s.manifests.List()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(pending))
	for _, m := range pending {
		ids = append(ids, m.EntityID)
	}
	sort.Strings(ids)
	return ids, nil
}
