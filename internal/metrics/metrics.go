package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric definitions for the survivability engine

var (
	EntitiesScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "survivault",
			Subsystem: "scoring",
			Name:      "entities_scored_total",
			Help:      "Total number of entities scored",
		},
		[]string{"kind"},
	)

	EntitiesByTier = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "survivault",
			Subsystem: "scoring",
			Name:      "entities_by_tier",
			Help:      "Entities per status tier as of the last pass",
		},
		[]string{"tier"},
	)

	ManifestsStaged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "survivault",
			Subsystem: "remediation",
			Name:      "manifests_staged_total",
			Help:      "Total number of remediation manifests staged",
		},
		[]string{"action"},
	)

	ManifestsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "survivault",
			Subsystem: "remediation",
			Name:      "manifests_applied_total",
			Help:      "Total number of manifest applications by outcome",
		},
		[]string{"action", "result"},
	)

	ManifestsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "survivault",
			Subsystem: "remediation",
			Name:      "manifests_pending",
			Help:      "Unresolved manifests awaiting application or retry",
		},
	)

	PassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "survivault",
			Subsystem: "pass",
			Name:      "duration_seconds",
			Help:      "Duration of pass phases",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"phase"},
	)

	PassFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "survivault",
			Subsystem: "pass",
			Name:      "failures_total",
			Help:      "Per-entity failures that did not abort the pass",
		},
		[]string{"phase"},
	)

	AuthorizationCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "survivault",
			Subsystem: "github",
			Name:      "authorization_calls_total",
			Help:      "Calls against the authorization system",
		},
		[]string{"op", "status"},
	)
)

// Handler exposes the default registry for the scheduled-run mode.
func Handler() http.Handler {
	return promhttp.Handler()
}
