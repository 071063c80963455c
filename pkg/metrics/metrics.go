// Package metrics exposes Prometheus collectors for conversion throughput
// and storage pool utilization.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConversionsTotal counts finished conversions by outcome
	ConversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickstore",
		Name:      "conversions_total",
		Help:      "Total number of conversions by status",
	}, []string{"status"})

	// RowsProcessed counts rows that passed through the conversion pipeline
	RowsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tickstore",
		Name:      "rows_processed_total",
		Help:      "Total number of rows processed",
	})

	// RowsRemoved counts rows dropped by cleaning (duplicates and incomplete rows)
	RowsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tickstore",
		Name:      "rows_removed_total",
		Help:      "Total number of rows removed during cleaning",
	})

	// PoolActiveConnections tracks connections currently held by callers
	PoolActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tickstore",
		Subsystem: "pool",
		Name:      "active_connections",
		Help:      "Database connections currently acquired",
	})

	// PoolIdleConnections tracks connections parked in the pool
	PoolIdleConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tickstore",
		Subsystem: "pool",
		Name:      "idle_connections",
		Help:      "Database connections currently idle",
	})

	// PoolExhaustedTotal counts acquisitions that timed out
	PoolExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tickstore",
		Subsystem: "pool",
		Name:      "exhausted_total",
		Help:      "Connection acquisitions that failed because the pool was exhausted",
	})
)

// Handler returns the HTTP handler serving the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
