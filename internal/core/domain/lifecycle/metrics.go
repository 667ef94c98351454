// internal/core/domain/lifecycle/metrics.go
package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_lifecycle_transitions_total",
		Help: "Accepted bot lifecycle transitions by source and target status",
	}, []string{"from", "to"})

	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_lifecycle_rejected_total",
		Help: "Rejected lifecycle requests by operation",
	}, []string{"operation"})

	quarantinesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_quarantines_total",
		Help: "Bots placed into quarantine",
	})

	regenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_regenerations_total",
		Help: "Regeneration workflow invocations by result",
	}, []string{"result"})

	versionRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_lifecycle_version_retries_total",
		Help: "Transitions retried after a store version conflict",
	})

	tickSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_tick_skipped_total",
		Help: "Quarantine sweeps skipped because another sweep was running",
	})

	expiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_quarantine_expired_total",
		Help: "Quarantines expired and redeployed",
	})
)
