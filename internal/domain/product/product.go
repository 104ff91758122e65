package product

import (
	"math"
	"time"
)

// Product is a pure aggregate over credential and agent scores. Its links
// are weak references: they must be validated against the ledgers every
// pass, and a product never emits remediation manifests of its own.
type Product struct {
	ID              string   `yaml:"product_id" validate:"required"`
	Name            string   `yaml:"product_name"`
	ResponsibleTeam string   `yaml:"responsible_team,omitempty"`
	LinkedAgents    []string `yaml:"linked_agents,flow"`
	LinkedTokens    []string `yaml:"linked_tokens,flow"`

	SurvivabilityHealth float64      `yaml:"survivability_health"`
	HealthStatus        HealthStatus `yaml:"health_status"`
	LastCalculated      *time.Time   `yaml:"last_calculated,omitempty"`

	RepoURL      string    `yaml:"repo_url,omitempty"`
	RepoID       string    `yaml:"repo_id,omitempty"`
	AutoDetected bool      `yaml:"auto_detected,omitempty"`
	CreatedAt    time.Time `yaml:"created_at"`
	UpdatedAt    time.Time `yaml:"updated_at"`
}

type HealthStatus string

const (
	HealthGreen   HealthStatus = "Green"
	HealthYellow  HealthStatus = "Yellow"
	HealthRed     HealthStatus = "Red"
	HealthUnknown HealthStatus = "Unknown"
)

// StatusFor buckets an aggregate health value.
func StatusFor(health float64) HealthStatus {
	switch {
	case health >= 0.8:
		return HealthGreen
	case health >= 0.2:
		return HealthYellow
	default:
		return HealthRed
	}
}

// Health is the result of one aggregation.
type Health struct {
	Value   float64
	Status  HealthStatus
	Missing []string
}

// Aggregate computes mean survivability across resolved link scores.
// A product with no links at all is Unknown; one whose links all dangle is
// Red, because something it depended on disappeared.
func Aggregate(resolved []float64, missing []string, hasLinks bool) Health {
	if len(resolved) == 0 {
		if !hasLinks {
			return Health{Status: HealthUnknown}
		}
		return Health{Status: HealthRed, Missing: missing}
	}
	sum := 0.0
	for _, s := range resolved {
		sum += s
	}
	mean := sum / float64(len(resolved))
	mean = math.Round(mean*1000) / 1000
	return Health{Value: mean, Status: StatusFor(mean), Missing: missing}
}

// SetHealth folds an aggregation result into the product record.
func (p *Product) SetHealth(h Health, now time.Time) {
	p.SurvivabilityHealth = h.Value
	p.HealthStatus = h.Status
	ts := now
	p.LastCalculated = &ts
	p.UpdatedAt = now
}
