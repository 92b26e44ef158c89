package notifications

import (
	"github.com/bissquit/notify-agent/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	unreadNotifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "unread",
			Help:      "Unread notifications at the last count fetch",
		},
	)

	feedMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "mutations_total",
			Help:      "Feed mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
)

func recordMutation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	feedMutations.WithLabelValues(operation, outcome).Inc()
}
