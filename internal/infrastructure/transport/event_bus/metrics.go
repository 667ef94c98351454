// internal/infrastructure/transport/event_bus/metrics.go
package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_event_bus_published_total",
		Help: "Events published to the in-process bus by type",
	}, []string{"type"})

	backlogOverflowTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_event_bus_backlog_overflow_total",
		Help: "Events evicted before a lagging subscriber or session read them",
	})

	evictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_event_bus_evicted_total",
		Help: "Events evicted from the retention buffer, read or not",
	})

	bufferedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_event_bus_buffered",
		Help: "Events currently retained in the bus buffer",
	})

	processedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_event_bus_processed_total",
		Help: "Events handled by bus subscribers",
	}, []string{"subscriber"})

	failedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_event_bus_failed_total",
		Help: "Events a subscriber failed to handle after retries",
	}, []string{"subscriber"})

	handlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_event_bus_handler_seconds",
		Help:    "Subscriber handling latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
)
