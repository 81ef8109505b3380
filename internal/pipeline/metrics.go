package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	signalsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vigild",
		Subsystem: "pipeline",
		Name:      "signals_dropped_total",
		Help:      "Signals dropped because the intake queue was full.",
	})

	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vigild",
		Subsystem: "pipeline",
		Name:      "decisions_total",
		Help:      "Decisions emitted, labeled by action.",
	}, []string{"action"})

	stateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vigild",
		Subsystem: "pipeline",
		Name:      "state",
		Help:      "Current decision state (1 for the active state, 0 otherwise).",
	}, []string{"state"})

	advisoryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vigild",
		Subsystem: "pipeline",
		Name:      "advisory_outcomes_total",
		Help:      "Advisory observer outcomes, labeled ok or unavailable.",
	}, []string{"outcome"})

	snapshotBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vigild",
		Subsystem: "pipeline",
		Name:      "snapshot_builds_total",
		Help:      "Analysis snapshots built.",
	})
)

func observeState(s string) {
	for _, known := range []string{"IDLE", "MONITORING", "AWAITING_CONFIRMATION", "ESCALATED"} {
		v := 0.0
		if known == s {
			v = 1.0
		}
		stateGauge.WithLabelValues(known).Set(v)
	}
}
