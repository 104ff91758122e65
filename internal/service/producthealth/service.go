package producthealth

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/domain/product"
	"github.com/secopshq/survivault/internal/infrastructure/ledger"
	"github.com/secopshq/survivault/internal/metrics"
)

// Result is one product's aggregation outcome.
type Result struct {
	ProductID string   `json:"product_id"`
	Name      string   `json:"product_name"`
	Health    float64  `json:"survivability_health"`
	Status    string   `json:"health_status"`
	Missing   []string `json:"missing_links,omitempty"`
}

// Service recomputes product health from the current credential and agent
// scores. Products are read-only aggregates: this phase writes the
// product ledger and nothing else.
type Service struct {
	tokens   *ledger.Store
	agents   *ledger.Store
	products *ledger.ProductStore
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(tokens, agents *ledger.Store, products *ledger.ProductStore, logger *slog.Logger) *Service {
	return &Service{
		tokens:   tokens,
		agents:   agents,
		products: products,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock pins the pass clock; tests use it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run aggregates every product and persists the product ledger. Dangling
// links are reported, never repaired: the validation phase owns flagging
// them for a human.
func (s *Service) Run(ctx context.Context) ([]Result, error) {
	started := s.now()

	tokens, err := s.tokens.LoadOrEmpty()
	if err != nil {
		return nil, err
	}
	agents, err := s.agents.LoadOrEmpty()
	if err != nil {
		return nil, err
	}
	products, err := s.products.LoadOrEmpty()
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		s.logger.InfoContext(ctx, "no products in ledger, skipping health aggregation")
		return nil, nil
	}

	now := s.now()
	results := make([]Result, 0, len(products))
	for _, id := range sortedProductIDs(products) {
		p := products[id]
		h := s.aggregate(p, tokens, agents)
		p.SetHealth(h, now)
		results = append(results, Result{
			ProductID: p.ID,
			Name:      p.Name,
			Health:    h.Value,
			Status:    string(h.Status),
			Missing:   h.Missing,
		})
		if len(h.Missing) > 0 {
			s.logger.WarnContext(ctx, "product has dangling links",
				"product_id", p.ID, "missing", h.Missing)
		}
	}

	if err := s.products.Save(products); err != nil {
		return nil, err
	}

	metrics.PassDuration.WithLabelValues("product_health").Observe(s.now().Sub(started).Seconds())
	s.logger.InfoContext(ctx, "product health pass complete", "products", len(results))
	return results, nil
}

func (s *Service) aggregate(p *product.Product, tokens, agents map[string]*entity.Entity) product.Health {
	hasLinks := len(p.LinkedTokens)+len(p.LinkedAgents) > 0
	var resolved []float64
	var missing []string

	for _, id := range p.LinkedTokens {
		if e, ok := tokens[id]; ok {
			resolved = append(resolved, e.Score)
		} else {
			missing = append(missing, id)
		}
	}
	for _, id := range p.LinkedAgents {
		if e, ok := agents[id]; ok {
			resolved = append(resolved, e.Score)
		} else {
			missing = append(missing, id)
		}
	}

	return product.Aggregate(resolved, missing, hasLinks)
}

func sortedProductIDs(m map[string]*product.Product) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
