package push

import (
	"time"

	"github.com/bissquit/notify-agent/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "push",
			Name:      "operations_total",
			Help:      "Push subscription operations by result",
		},
		[]string{"operation", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "push",
			Name:      "operation_duration_seconds",
			Help:      "Duration of push subscription operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	permissionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "push",
			Name:      "permission_requests_total",
			Help:      "Permission requests by resulting state",
		},
		[]string{"permission"},
	)
)

func recordOperation(op string, err error, start time.Time) {
	result := "success"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(op, result).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func recordPermission(p Permission) {
	if p == "" {
		p = PermissionDefault
	}
	permissionRequests.WithLabelValues(string(p)).Inc()
}
