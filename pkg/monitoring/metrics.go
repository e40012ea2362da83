package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screenport",
		Name:      "frames_routed_total",
		Help:      "Inbound frames dispatched to a coordinator, by type.",
	}, []string{"type"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screenport",
		Name:      "frames_dropped_total",
		Help:      "Inbound frames dropped by the router or transport.",
	}, []string{"reason"})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "screenport",
		Name:      "reconnects_total",
		Help:      "Scheduled reconnect attempts.",
	})

	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screenport",
		Name:      "session_transitions_total",
		Help:      "Session state machine transitions, by target state.",
	}, []string{"state"})

	TransferBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screenport",
		Name:      "fileshare_transfer_bytes_total",
		Help:      "File-share payload bytes moved, by direction.",
	}, []string{"direction"})
)
