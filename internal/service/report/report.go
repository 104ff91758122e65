package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/secopshq/survivault/internal/service/producthealth"
	"github.com/secopshq/survivault/internal/service/scoring"
)

// Output file names under the reports directory. Downstream tooling
// consumes the JSON files; the Markdown files are for humans.
const (
	healthJSONFile  = "token_health.json"
	historyJSONFile = "score_history.json"
	healthMarkdown  = "token_health_report.md"
	productJSONFile = "product_health.json"
	productMarkdown = "product_health_report.md"
	timestampLayout = "2006-01-02 15:04:05 UTC"
)

// Writer renders pass results into the reports directory. Reports are
// projections: they are regenerated whole every pass and never read back
// by the engine.
type Writer struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger, now: time.Now}
}

// WithClock pins the report clock; tests use it.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// WriteEntityReports writes the entity health JSON, the score history
// JSON and the Markdown trend table.
func (w *Writer) WriteEntityReports(ctx context.Context, results []scoring.Result) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating reports dir: %w", err)
	}

	raw, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding entity report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, healthJSONFile), raw, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", healthJSONFile, err)
	}
	// The history report carries the same records; graphing tools read it
	// under a stable name of its own.
	if err := os.WriteFile(filepath.Join(w.dir, historyJSONFile), raw, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", historyJSONFile, err)
	}

	if err := os.WriteFile(filepath.Join(w.dir, healthMarkdown), w.entityMarkdown(results), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", healthMarkdown, err)
	}

	w.logger.InfoContext(ctx, "entity reports written", "dir", w.dir, "entities", len(results))
	return nil
}

func (w *Writer) entityMarkdown(results []scoring.Result) []byte {
	var b strings.Builder
	b.WriteString("# Token Health Report\n\n")
	fmt.Fprintf(&b, "**Generated:** %s\n\n", w.now().UTC().Format(timestampLayout))
	b.WriteString("| Entity ID | Owner | Current Score | Status | Trend (Last 7) |\n")
	b.WriteString("|-----------|-------|---------------|--------|----------------|\n")
	for _, r := range results {
		trend := make([]string, 0, len(r.History))
		for _, h := range r.History {
			trend = append(trend, formatScore(h.Score))
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			r.EntityID, r.Owner, formatScore(r.Score), r.Status, strings.Join(trend, " → "))
	}
	return []byte(b.String())
}

// WriteProductReports writes the product health JSON and Markdown table.
func (w *Writer) WriteProductReports(ctx context.Context, results []producthealth.Result) error {
	if len(results) == 0 {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating reports dir: %w", err)
	}

	raw, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding product report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, productJSONFile), raw, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", productJSONFile, err)
	}

	var b strings.Builder
	b.WriteString("# Product Health Report\n\n")
	fmt.Fprintf(&b, "**Generated:** %s\n\n", w.now().UTC().Format(timestampLayout))
	b.WriteString("| Product ID | Product Name | Health | Status | Missing Links |\n")
	b.WriteString("|------------|--------------|--------|--------|---------------|\n")
	for _, r := range results {
		missing := "-"
		if len(r.Missing) > 0 {
			missing = strings.Join(r.Missing, ", ")
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			r.ProductID, r.Name, formatScore(r.Health), r.Status, missing)
	}
	if err := os.WriteFile(filepath.Join(w.dir, productMarkdown), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", productMarkdown, err)
	}

	w.logger.InfoContext(ctx, "product reports written", "dir", w.dir, "products", len(results))
	return nil
}

// formatScore trims trailing zeros so 1.000 renders as 1 and 0.850 as
// 0.85, matching how the history trend reads best.
func formatScore(s float64) string {
	out := fmt.Sprintf("%.3f", s)
	out = strings.TrimRight(out, "0")
	out = strings.TrimRight(out, ".")
	if out == "" || out == "-" {
		return "0"
	}
	return out
}
