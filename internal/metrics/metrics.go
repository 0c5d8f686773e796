// Package metrics exposes the relay's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peerline_active_connections",
		Help: "Currently registered realtime connections.",
	})

	CallsInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerline_calls_initiated_total",
		Help: "Call sessions created.",
	})

	CallsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerline_calls_failed_total",
		Help: "Call initiations refused because the callee was unreachable.",
	})

	CallsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerline_calls_ended_total",
		Help: "Call sessions that reached ENDED.",
	})

	MessagesBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerline_messages_broadcast_total",
		Help: "Chat messages fanned out after persistence.",
	})

	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerline_frames_dropped_total",
		Help: "Outbound frames dropped to backpressure.",
	})

	SignalsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerline_signals_dropped_total",
		Help: "Targeted signaling events dropped because the recipient was offline.",
	})
)
