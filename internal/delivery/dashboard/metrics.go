// internal/delivery/dashboard/metrics.go
package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_dashboard_sessions",
		Help: "Distribution sessions by transport mode",
	}, []string{"mode"})

	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_dashboard_reconnects_total",
		Help: "Push connections lost and scheduled for reconnect",
	})

	pushExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_dashboard_push_exhausted_total",
		Help: "Sessions degraded permanently to polling",
	})

	overflowMarkersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_dashboard_backlog_overflow_markers_total",
		Help: "Backlog overflow markers delivered to sessions",
	})
)
