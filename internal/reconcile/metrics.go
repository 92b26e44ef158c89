package reconcile

import (
	"time"

	"github.com/bissquit/notify-agent/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels.
const (
	opToggle      = "toggle"
	opBrowserPush = "browser_push"
	opRemove      = "remove"
	opRefresh     = "refresh_if_stale"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "reconcile",
			Name:      "operations_total",
			Help:      "Engine operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	mutationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "reconcile",
			Name:      "mutation_duration_seconds",
			Help:      "Time from toggle to cleared overlay",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	staleRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "reconcile",
			Name:      "stale_refresh_total",
			Help:      "Browser push endpoint checks by outcome",
		},
		[]string{"outcome"},
	)

	lockedRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "reconcile",
			Name:      "locked_rows",
			Help:      "Subscriptions with a save in progress",
		},
	)
)

func recordOutcome(op string, err error) {
	operationsTotal.WithLabelValues(op, outcomeLabel(err)).Inc()
}

func recordDuration(op string, start time.Time) {
	mutationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
