package scoring

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/domain/policy"
	"github.com/secopshq/survivault/internal/domain/scoring"
	"github.com/secopshq/survivault/internal/infrastructure/ledger"
	"github.com/secopshq/survivault/internal/metrics"
)

// Result is one entity's outcome from a scoring pass. Reports and alerts
// are pure projections of these.
type Result struct {
	EntityID string              `json:"entity_id"`
	Owner    string              `json:"owner"`
	Kind     string              `json:"kind"`
	Score    float64             `json:"survivability_score"`
	Status   string              `json:"status"`
	History  entity.ScoreHistory `json:"score_history"`
}

// Service runs the scoring phase: every credential and agent in the
// ledgers is re-scored, its history window advanced, and the ledgers
// rewritten. Scoring is pure per entity, so the fan-out needs no
// coordination beyond collecting results.
type Service struct {
	tokens  *ledger.Store
	agents  *ledger.Store
	pol     policy.Policy
	logger  *slog.Logger
	workers int
	now     func() time.Time
}

func NewService(tokens, agents *ledger.Store, pol policy.Policy, logger *slog.Logger, workers int) *Service {
	if workers <= 0 {
		workers = 4
	}
	return &Service{
		tokens:  tokens,
		agents:  agents,
		pol:     pol,
		logger:  logger,
		workers: workers,
		now:     time.Now,
	}
}

// WithClock pins the pass clock; tests use it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run scores both ledgers and persists them. The credential ledger is
// required; a missing agent ledger just means no agents yet.
func (s *Service) Run(ctx context.Context) ([]Result, error) {
	started := s.now()

	tokens, err := s.tokens.Load()
	if err != nil {
		return nil, err
	}
	agents, err := s.agents.LoadOrEmpty()
	if err != nil {
		return nil, err
	}

	now := s.now()
	results := s.scoreAll(ctx, tokens, now)
	results = append(results, s.scoreAll(ctx, agents, now)...)

	if err := s.tokens.Save(tokens); err != nil {
		return nil, err
	}
	if len(agents) > 0 {
		if err := s.agents.Save(agents); err != nil {
			return nil, err
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].EntityID < results[j].EntityID })

	tiers := map[string]int{}
	for _, r := range results {
		tiers[r.Status]++
	}
	for _, tier := range []scoring.Tier{scoring.TierCritical, scoring.TierDegrading, scoring.TierHealthy} {
		metrics.EntitiesByTier.WithLabelValues(tier.String()).Set(float64(tiers[tier.String()]))
	}
	metrics.PassDuration.WithLabelValues("scoring").Observe(s.now().Sub(started).Seconds())

	s.logger.InfoContext(ctx, "scoring pass complete",
		"entities", len(results),
		"healthy", tiers[scoring.TierHealthy.String()],
		"degrading", tiers[scoring.TierDegrading.String()],
		"critical", tiers[scoring.TierCritical.String()])
	return results, nil
}

func (s *Service) scoreAll(ctx context.Context, entities map[string]*entity.Entity, now time.Time) []Result {
	ids := make([]string, 0, len(entities))
	for id := range entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	jobs := make(chan *entity.Entity)
	out := make(chan Result, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range jobs {
				out <- s.scoreOne(e, now)
			}
		}()
	}

	for _, id := range ids {
		select {
		case <-ctx.Done():
			// Stop feeding; entities already scored keep their new
			// score, the rest keep their old one.
			close(jobs)
			wg.Wait()
			close(out)
			return drain(out)
		case jobs <- entities[id]:
		}
	}
	close(jobs)
	wg.Wait()
	close(out)
	return drain(out)
}

func (s *Service) scoreOne(e *entity.Entity, now time.Time) Result {
	score := scoring.Score(scoring.BuildInput(e, now))
	e.RecordScore(score, now)

	tier := scoring.TierFor(score, s.pol.Risk.CriticalThreshold, s.pol.Risk.WarningThreshold)
	metrics.EntitiesScored.WithLabelValues(e.Kind.String()).Inc()

	return Result{
		EntityID: e.ID,
		Owner:    e.Owner,
		Kind:     e.Kind.String(),
		Score:    score,
		Status:   tier.String(),
		History:  e.ScoreHistory,
	}
}

func drain(out chan Result) []Result {
	results := make([]Result, 0, len(out))
	for r := range out {
		results = append(results, r)
	}
	return results
}
