// Package-level Prometheus metrics for the event store.
package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AppendsTotal counts append outcomes.
	// Labels: result (stored, duplicate, error)
	AppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigild",
			Subsystem: "store",
			Name:      "appends_total",
			Help:      "Total number of event append operations by result",
		},
		[]string{"result"},
	)

	// RetriesTotal counts append retries after transient failures.
	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigild",
			Subsystem: "store",
			Name:      "append_retries_total",
			Help:      "Total number of append retries",
		},
	)

	// DegradedGauge indicates degraded mode (1=degraded, 0=healthy).
	DegradedGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vigild",
			Subsystem: "store",
			Name:      "degraded",
			Help:      "Whether the store is in degraded gap-marked mode (1=degraded)",
		},
	)
)
