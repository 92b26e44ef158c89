package realtime

import (
	"github.com/bissquit/notify-agent/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	channelState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "state",
			Help:      "Realtime channel state (0 disconnected, 1 connecting, 2 connected, 3 inert)",
		},
	)

	reconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "reconnects_total",
			Help:      "Reconnect timers armed",
		},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Messages received by event type",
		},
		[]string{"type"},
	)
)
