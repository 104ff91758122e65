package remediation

import (
	"time"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/domain/errors"
	"github.com/secopshq/survivault/internal/domain/manifest"
)

// Reconcile folds one application outcome back into the ledger entity.
// Exactly one applied event is appended per attempt. The live fields are
// a mirror of external reality: they only move after the authorization
// system confirmed the change, never optimistically.
func Reconcile(e *entity.Entity, m manifest.Manifest, res Result, approver string, now time.Time) error {
	if e == nil {
		return errors.NewDataIntegrityError("reconcile called with missing entity")
	}

	before := e.Snapshot()
	if res.OK {
		if err := e.ApplyAction(m.ProposedAction); err != nil {
			return errors.NewDataIntegrityError(err.Error())
		}
	}
	after := e.Snapshot()

	e.AppendAudit(entity.NewAppliedEvent(before, after, m.ProposedAction, res.Outcome(), approver, now))
	return nil
}
