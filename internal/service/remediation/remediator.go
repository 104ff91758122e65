package remediation

import (
	"context"
	"fmt"
	"strings"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/domain/errors"
	"github.com/secopshq/survivault/internal/domain/manifest"
)

// Authorizer is the engine's contract with the external authorization
// system. Every call must be idempotent from the caller's side: the
// engine retries across passes with at-least-once semantics.
type Authorizer interface {
	SetMembershipRole(ctx context.Context, principal string, role entity.Role) error
	RemoveMembership(ctx context.Context, principal string) error
	SetResourcePermission(ctx context.Context, repoFullName, principal, permission string) error
}

// ReadOnlyPermission is the lowest access tier a scope reduction narrows
// repository collaborators down to.
const ReadOnlyPermission = "pull"

// Result reports one application attempt.
type Result struct {
	OK     bool
	Detail string
	// PerResource carries per-repository outcomes for scope reductions;
	// empty string means success.
	PerResource map[string]string
	// Err classifies the failure when OK is false.
	Err error
}

// Outcome converts the result into the audit-trail record.
func (r Result) Outcome() entity.Outcome {
	return entity.Outcome{OK: r.OK, Detail: r.Detail}
}

// Remediator maps each manifest action onto exactly one authorization
// system operation and reports the outcome. It never touches the ledger:
// that is the reconciler's job, and only after the external system
// confirmed the change.
type Remediator struct {
	authz Authorizer
}

func NewRemediator(authz Authorizer) *Remediator {
	return &Remediator{authz: authz}
}

// Apply enacts the manifest's proposed action.
func (r *Remediator) Apply(ctx context.Context, m manifest.Manifest) Result {
	if m.Owner == "" {
		err := errors.NewValidationError("MANIFEST_INVALID", "manifest missing owner")
		return Result{Detail: err.Error(), Err: err}
	}

	switch m.ProposedAction.Type {
	case entity.ActionRoleChange:
		target := m.ProposedAction.TargetRole
		if err := r.authz.SetMembershipRole(ctx, m.Owner, target); err != nil {
			return Result{Detail: err.Error(), Err: err}
		}
		return Result{OK: true, Detail: fmt.Sprintf("org role changed to %s", target)}

	case entity.ActionRevokeAccess:
		// Removing an already absent member succeeds inside the client;
		// a partial failure that landed externally retries clean.
		if err := r.authz.RemoveMembership(ctx, m.Owner); err != nil {
			return Result{Detail: err.Error(), Err: err}
		}
		return Result{OK: true, Detail: "org access revoked"}

	case entity.ActionScopeReduction:
		return r.reduceScopes(ctx, m)

	default:
		err := errors.NewUnknownActionError(m.ProposedAction.Type.String())
		return Result{Detail: err.Error(), Err: err}
	}
}

// reduceScopes narrows permission on every listed repository. Failures
// are reported per resource; a manifest with any failed resource is
// retained for retry, and repositories already reduced make the retry a
// no-op.
func (r *Remediator) reduceScopes(ctx context.Context, m manifest.Manifest) Result {
	if len(m.TargetRepos) == 0 {
		// Nothing external to touch; the ledger narrowing alone is the
		// remediation.
		return Result{OK: true, Detail: "scope_reduction: no target repos, ledger narrowed only"}
	}

	perResource := make(map[string]string, len(m.TargetRepos))
	var failures []string
	var firstErr error
	for _, repo := range m.TargetRepos {
		if err := r.authz.SetResourcePermission(ctx, repo, m.Owner, ReadOnlyPermission); err != nil {
			perResource[repo] = err.Error()
			failures = append(failures, fmt.Sprintf("%s: %v", repo, err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		perResource[repo] = ""
	}

	if len(failures) > 0 {
		return Result{
			Detail:      fmt.Sprintf("partial failure: %s", strings.Join(failures, "; ")),
			PerResource: perResource,
			Err:         firstErr,
		}
	}
	return Result{
		OK:          true,
		Detail:      fmt.Sprintf("reduced permissions on %d repo(s) to %s", len(m.TargetRepos), ReadOnlyPermission),
		PerResource: perResource,
	}
}
