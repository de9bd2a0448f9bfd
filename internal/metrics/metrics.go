// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reeldrop"

var (
	// DeliveryOutcomes counts finished delivery requests by status and failure kind.
	DeliveryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_outcomes_total",
		Help:      "Media delivery requests by final status and failure kind.",
	}, []string{"status", "kind"})

	// CacheLookups counts artifact cache lookups: hit, stale, miss or error.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Artifact cache lookups by result.",
	}, []string{"result"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Latency of pipeline stages.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"stage", "result"})

	RetrievedBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieved_bytes",
		Help:      "Size of materialized artifacts.",
		Buckets:   prometheus.ExponentialBuckets(64<<10, 2, 8),
	})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Inbound messaging events by type.",
	}, []string{"type"})

	// DroppedEvents counts events refused because the worker queue was full.
	DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_dropped_total",
		Help:      "Inbound events answered with a busy reply instead of being processed.",
	})
)

// Result is "ok" for a nil error and "error" otherwise.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
