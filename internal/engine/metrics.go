// Package-level Prometheus metrics for the event engine.
package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsClassified counts atomic events by type.
	EventsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigild",
			Subsystem: "engine",
			Name:      "events_classified_total",
			Help:      "Total number of atomic events classified by type",
		},
		[]string{"type"},
	)

	// EventsComposed counts composite events by pattern.
	EventsComposed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigild",
			Subsystem: "engine",
			Name:      "events_composed_total",
			Help:      "Total number of composite events emitted by pattern",
		},
		[]string{"pattern"},
	)

	// SignalsRejected counts malformed signals dropped with a diagnostic.
	SignalsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigild",
			Subsystem: "engine",
			Name:      "signals_rejected_total",
			Help:      "Total number of malformed signals rejected",
		},
	)

	// SignalsLate counts signals dropped for arriving behind the reorder
	// watermark.
	SignalsLate = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vigild",
			Subsystem: "engine",
			Name:      "signals_late_total",
			Help:      "Total number of signals dropped for arriving too late to reorder",
		},
	)
)
