package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/infrastructure/github"
	"github.com/secopshq/survivault/internal/infrastructure/ledger"
	"github.com/secopshq/survivault/internal/metrics"
)

// Directory is the slice of the org client member sync reads from.
type Directory interface {
	ListMembers(ctx context.Context) ([]github.Member, error)
	GetMembership(ctx context.Context, principal string) (*github.Membership, error)
}

// adminScope and memberScope are the capability grants recorded for newly
// discovered members. Admins get the wide grant because that is what an
// org admin's credential can actually do.
var (
	adminScope  = []string{"admin:org", "repo", "workflow", "write:packages"}
	memberScope = []string{"read:org", "repo"}
)

// Summary reports one membership sync.
type Summary struct {
	Members  int      `json:"members"`
	Added    int      `json:"added"`
	Existing int      `json:"existing"`
	Failed   int      `json:"failed"`
	AddedIDs []string `json:"added_ids,omitempty"`
}

// Service seeds the credential ledger from the organization's member
// directory. Sync is additive only: records that already exist keep every
// field they have, since scores, histories and audit trails must survive
// re-syncs untouched.
type Service struct {
	org    string
	dir    Directory
	tokens *ledger.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(org string, dir Directory, tokens *ledger.Store, logger *slog.Logger) *Service {
	return &Service{
		org:    org,
		dir:    dir,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock pins the sync clock; tests use it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run fetches the member directory and adds one credential entity per
// member not already in the ledger. A member whose role lookup fails is
// skipped rather than recorded with guessed privileges.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	started := s.now()
	var summary Summary

	existing, err := s.tokens.LoadOrEmpty()
	if err != nil {
		return summary, err
	}

	members, err := s.dir.ListMembers(ctx)
	if err != nil {
		return summary, err
	}
	summary.Members = len(members)

	now := s.now()
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		id := fmt.Sprintf("%d", m.ID)
		if _, ok := existing[id]; ok {
			summary.Existing++
			continue
		}

		membership, err := s.dir.GetMembership(ctx, m.Login)
		if err != nil {
			summary.Failed++
			s.logger.WarnContext(ctx, "membership lookup failed, skipping member",
				"login", m.Login, "error", err)
			continue
		}

		existing[id] = s.newCredential(id, m.Login, membership, now)
		summary.Added++
		summary.AddedIDs = append(summary.AddedIDs, id)
		s.logger.InfoContext(ctx, "credential seeded from member directory",
			"entity_id", id, "owner", m.Login, "role", membership.Role)
	}

	if err := s.tokens.Save(existing); err != nil {
		return summary, err
	}

	metrics.PassDuration.WithLabelValues("sync").Observe(s.now().Sub(started).Seconds())
	s.logger.InfoContext(ctx, "member sync complete",
		"members", summary.Members, "added", summary.Added, "existing", summary.Existing)
	return summary, nil
}

func (s *Service) newCredential(id, login string, membership *github.Membership, now time.Time) *entity.Entity {
	role, err := entity.ParseRole(membership.Role)
	if err != nil {
		role = entity.RoleMember
	}

	scope := memberScope
	if role.Privileged() {
		scope = adminScope
	}
	granted := make([]string, len(scope))
	copy(granted, scope)

	issued := now
	lastUsed := now
	return &entity.Entity{
		ID:              id,
		Owner:           login,
		Kind:            entity.KindHumanCredential,
		Role:            role,
		State:           entity.StateActive,
		Scope:           granted,
		UsedPermissions: 0,
		Provenance: []string{
			fmt.Sprintf("org:%s", s.org),
			fmt.Sprintf("role:%s", membership.Role),
		},
		IssuedOn: &issued,
		LastUsed: &lastUsed,
	}
}
