// Package metrics holds the Prometheus collectors of the resolver and its
// collaborators. Collectors register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GroupsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bestshot_groups_resolved_total",
			Help: "Total number of duplicate groups resolved",
		},
		[]string{"outcome"}, // "ok", "degraded"
	)

	AssetsScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bestshot_assets_scored_total",
			Help: "Total number of assets scored, by failure reason",
		},
		[]string{"reason"}, // "ok", "no_preview", "decode_failed", "invalid_buffer"
	)

	GroupResolutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bestshot_group_resolution_duration_seconds",
			Help:    "Time to score and rank one duplicate group",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	WinnerScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bestshot_winner_score",
			Help:    "Composite total of the winning asset per group",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	EffectsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bestshot_effects_applied_total",
			Help: "Total number of side-effect actions, by action and result",
		},
		[]string{"action", "result"}, // result: "applied", "dry_run", "failed"
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bestshot_runs_total",
			Help: "Total number of resolution runs",
		},
		[]string{"status"},
	)

	PhotoAPIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bestshot_photo_api_requests_total",
			Help: "Total number of photo service requests",
		},
		[]string{"operation", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bestshot_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
