package validate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	validatorpkg "github.com/go-playground/validator/v10"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/domain/product"
	"github.com/secopshq/survivault/internal/infrastructure/ledger"
)

// Finding is one validation problem. Errors make the run fail; warnings
// are surfaced but do not.
type Finding struct {
	Subject   string `json:"subject"`
	SubjectID string `json:"subject_id"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
}

// Report is the outcome of one validation run across all three ledgers.
type Report struct {
	Agents   int       `json:"agents"`
	Products int       `json:"products"`
	Errors   []Finding `json:"errors,omitempty"`
	Warnings []Finding `json:"warnings,omitempty"`
}

// OK reports whether the run found no errors. Warnings alone still pass.
func (r Report) OK() bool { return len(r.Errors) == 0 }

// Service cross-checks referential integrity between the ledgers: every
// agent must point at a live credential, every product link must resolve.
// Validation never mutates a ledger; it only reports.
type Service struct {
	tokens   *ledger.Store
	agents   *ledger.Store
	products *ledger.ProductStore
	logger   *slog.Logger
	validate *validatorpkg.Validate
}

func NewService(tokens, agents *ledger.Store, products *ledger.ProductStore, logger *slog.Logger) *Service {
	return &Service{
		tokens:   tokens,
		agents:   agents,
		products: products,
		logger:   logger,
		validate: validatorpkg.New(),
	}
}

// Run validates agents then products and returns the combined report.
func (s *Service) Run(ctx context.Context) (Report, error) {
	var report Report

	tokens, err := s.tokens.LoadOrEmpty()
	if err != nil {
		return report, err
	}
	agents, err := s.agents.LoadOrEmpty()
	if err != nil {
		return report, err
	}
	products, err := s.products.LoadOrEmpty()
	if err != nil {
		return report, err
	}

	report.Agents = len(agents)
	report.Products = len(products)

	s.validateAgents(agents, tokens, &report)
	s.validateProducts(products, tokens, agents, &report)

	for _, f := range report.Errors {
		s.logger.ErrorContext(ctx, "validation error",
			"subject", f.Subject, "id", f.SubjectID, "message", f.Message)
	}
	for _, f := range report.Warnings {
		s.logger.WarnContext(ctx, "validation warning",
			"subject", f.Subject, "id", f.SubjectID, "message", f.Message)
	}
	s.logger.InfoContext(ctx, "validation complete",
		"agents", report.Agents,
		"products", report.Products,
		"errors", len(report.Errors),
		"warnings", len(report.Warnings))
	return report, nil
}

func (s *Service) validateAgents(agents, tokens map[string]*entity.Entity, report *Report) {
	for _, id := range sortedEntityIDs(agents) {
		a := agents[id]
		if err := s.validate.Struct(a); err != nil {
			report.Errors = append(report.Errors, Finding{
				Subject: "agent", SubjectID: id, Severity: "error",
				Message: fmt.Sprintf("invalid record: %v", err),
			})
			continue
		}
		if a.AssociatedTokenID == "" {
			report.Errors = append(report.Errors, Finding{
				Subject: "agent", SubjectID: id, Severity: "error",
				Message: "missing associated credential",
			})
			continue
		}
		if _, ok := tokens[a.AssociatedTokenID]; !ok {
			// The credential was removed out from under the agent.
			report.Errors = append(report.Errors, Finding{
				Subject: "agent", SubjectID: id, Severity: "error",
				Message: fmt.Sprintf("associated credential %s not found in ledger", a.AssociatedTokenID),
			})
		}
	}
}

func (s *Service) validateProducts(products map[string]*product.Product, tokens, agents map[string]*entity.Entity, report *Report) {
	for _, id := range sortedProductIDs(products) {
		p := products[id]
		if err := s.validate.Struct(p); err != nil {
			report.Errors = append(report.Errors, Finding{
				Subject: "product", SubjectID: id, Severity: "error",
				Message: fmt.Sprintf("invalid record: %v", err),
			})
			continue
		}
		if len(p.LinkedTokens) == 0 && len(p.LinkedAgents) == 0 {
			report.Warnings = append(report.Warnings, Finding{
				Subject: "product", SubjectID: id, Severity: "warning",
				Message: "no linked credentials or agents",
			})
			continue
		}

		var missing []string
		resolved := 0
		for _, tid := range p.LinkedTokens {
			if _, ok := tokens[tid]; ok {
				resolved++
			} else {
				missing = append(missing, "credential "+tid)
			}
		}
		for _, aid := range p.LinkedAgents {
			if _, ok := agents[aid]; ok {
				resolved++
			} else {
				missing = append(missing, "agent "+aid)
			}
		}

		if len(missing) > 0 {
			msg := fmt.Sprintf("dangling links: %v", missing)
			if resolved == 0 {
				msg = fmt.Sprintf("all links dangling, product is orphaned: %v", missing)
			}
			report.Errors = append(report.Errors, Finding{
				Subject: "product", SubjectID: id, Severity: "error", Message: msg,
			})
		}
	}
}

func sortedEntityIDs(m map[string]*entity.Entity) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedProductIDs(m map[string]*product.Product) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
