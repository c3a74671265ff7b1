// Package metrics exposes Prometheus collectors for the kiosk workflow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Transitions         *prometheus.CounterVec
	RejectedTransitions *prometheus.CounterVec
	CommitFailures      prometheus.Counter
	Unlocks             prometheus.Counter
	GeoResolveFailures  *prometheus.CounterVec
}

// New registers all kiosk collectors against the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_mode_transitions_total",
			Help: "Session mode transitions, labeled by source mode, action and target mode.",
		}, []string{"from", "action", "to"}),
		RejectedTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_mode_transitions_rejected_total",
			Help: "Transition attempts rejected by the state machine guard table.",
		}, []string{"from", "action"}),
		CommitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_commit_failures_total",
			Help: "Sign-in commit sequences aborted by an upstream failure.",
		}),
		Unlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_unlocks_total",
			Help: "Successful receptionist unlocks moving a terminal onto the home screen.",
		}),
		GeoResolveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_geo_resolve_failures_total",
			Help: "Nearest-site resolutions that fell back to manual selection.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		m.Transitions,
		m.RejectedTransitions,
		m.CommitFailures,
		m.Unlocks,
		m.GeoResolveFailures,
	)
	return m
}
