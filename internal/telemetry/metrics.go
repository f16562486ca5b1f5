// Package telemetry holds the Prometheus metrics exported by the
// discovery engine and resolver, grounded on the teacher's
// destination/endpoint_metrics.go use of promauto.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProbesTotal counts probes issued by the discovery engine, labeled
	// by outcome.
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ejb_locate_discovery_probes_total",
			Help: "Number of discovery probes issued, by outcome.",
		},
		[]string{"outcome"},
	)

	// OutstandingProbes tracks the number of in-flight probes across all
	// active discovery attempts.
	OutstandingProbes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ejb_locate_discovery_outstanding_probes",
			Help: "Number of discovery probes currently in flight.",
		},
	)

	// ResolutionsTotal counts Resolver.Resolve invocations.
	ResolutionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ejb_locate_resolver_resolutions_total",
			Help: "Number of resolution attempts handled by the resolver.",
		},
	)

	// BlacklistSize is a best-effort gauge of the most recently observed
	// per-invocation blacklist size, set by callers that want visibility
	// into retry churn.
	BlacklistSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ejb_locate_resolver_blacklist_size",
			Help: "Size of the most recently observed per-invocation blacklist.",
		},
	)
)

// ProbeOutcome labels for ProbesTotal.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)
