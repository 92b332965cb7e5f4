// Package metrics exposes Prometheus counters for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Submissions counts plaque submissions received.
	Submissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plaqued_submissions_total",
		Help: "Plaque submissions received.",
	})

	// Approvals counts plaques published by moderators.
	Approvals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plaqued_approvals_total",
		Help: "Plaques approved for publication.",
	})

	// RandomPicks counts random plaque draws by strategy and outcome.
	// Outcome is one of hit, miss, empty, error.
	RandomPicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plaqued_random_picks_total",
		Help: "Random plaque draws by strategy and outcome.",
	}, []string{"strategy", "outcome"})

	// CacheOps counts bounds cache lookups by result.
	CacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plaqued_cache_ops_total",
		Help: "Cache lookups by result (hit or miss).",
	}, []string{"result"})
)
