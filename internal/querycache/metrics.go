package querycache

import (
	"github.com/bissquit/notify-agent/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = metrics.Namespace

var (
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "querycache",
			Name:      "lookups_total",
			Help:      "Query cache lookups by query root and result",
		},
		[]string{"query", "result"},
	)

	cacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "querycache",
			Name:      "invalidations_total",
			Help:      "Invalidation signals by key prefix",
		},
		[]string{"prefix"},
	)
)

// queryLabel keeps label cardinality bounded to the first two key parts.
func queryLabel(k Key) string {
	if len(k) > 2 {
		k = k[:2]
	}
	return k.String()
}

func recordHit(k Key) {
	cacheLookups.WithLabelValues(queryLabel(k), "hit").Inc()
}

func recordMiss(k Key) {
	cacheLookups.WithLabelValues(queryLabel(k), "miss").Inc()
}

func recordInvalidation(prefix Key) {
	cacheInvalidations.WithLabelValues(queryLabel(prefix)).Inc()
}
