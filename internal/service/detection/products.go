package detection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/secopshq/survivault/internal/domain/product"
	"github.com/secopshq/survivault/internal/infrastructure/github"
	"github.com/secopshq/survivault/internal/infrastructure/ledger"
	"github.com/secopshq/survivault/internal/metrics"
)

// RepoLister is the slice of the org client product detection reads from.
type RepoLister interface {
	ListRepos(ctx context.Context) ([]github.Repo, error)
}

// ProductSummary reports one product detection run.
type ProductSummary struct {
	Repos      int      `json:"repos"`
	Detected   int      `json:"detected"`
	Existing   int      `json:"existing"`
	ProductIDs []string `json:"product_ids,omitempty"`
}

// ProductDetector seeds the product ledger from the organization's
// repositories: one repository, one product. Detected products carry no
// links; linking credentials and agents to a product is a deliberate
// human decision, not a guess.
type ProductDetector struct {
	org      string
	repos    RepoLister
	products *ledger.ProductStore
	logger   *slog.Logger
	now      func() time.Time
}

func NewProductDetector(org string, repos RepoLister, products *ledger.ProductStore, logger *slog.Logger) *ProductDetector {
	return &ProductDetector{
		org:      org,
		repos:    repos,
		products: products,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock pins the detection clock; tests use it.
func (d *ProductDetector) WithClock(now func() time.Time) *ProductDetector {
	d.now = now
	return d
}

// Run lists org repositories and adds one product per repository not
// already in the product ledger.
func (d *ProductDetector) Run(ctx context.Context) (ProductSummary, error) {
	started := d.now()
	var summary ProductSummary

	products, err := d.products.LoadOrEmpty()
	if err != nil {
		return summary, err
	}

	repos, err := d.repos.ListRepos(ctx)
	if err != nil {
		return summary, err
	}
	summary.Repos = len(repos)

	now := d.now()
	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		productID := "product-" + strings.ReplaceAll(strings.ToLower(repo.Name), " ", "-")
		if _, ok := products[productID]; ok {
			summary.Existing++
			continue
		}

		team := repo.Owner.Login
		if team == "" {
			team = d.org
		}
		products[productID] = &product.Product{
			ID:              productID,
			Name:            repo.Name,
			ResponsibleTeam: team,
			HealthStatus:    product.HealthUnknown,
			RepoURL:         repo.HTMLURL,
			RepoID:          fmt.Sprintf("%d", repo.ID),
			AutoDetected:    true,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		summary.Detected++
		summary.ProductIDs = append(summary.ProductIDs, productID)
		d.logger.InfoContext(ctx, "product detected",
			"product_id", productID, "repo", repo.FullName, "team", team)
	}

	if err := d.products.Save(products); err != nil {
		return summary, err
	}

	metrics.PassDuration.WithLabelValues("detect_products").Observe(d.now().Sub(started).Seconds())
	return summary, nil
}
