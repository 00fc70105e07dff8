// Package instrumented records Prometheus metrics around a rule repository.
package instrumented

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the storage metrics.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		OperationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "policystore",
				Subsystem: "storage",
				Name:      "operations_total",
				Help:      "Total number of rule storage operations",
			},
			[]string{"operation", "result"}, // result=ok/error
		),
		OperationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "policystore",
				Subsystem: "storage",
				Name:      "operation_duration_seconds",
				Help:      "Rule storage operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}
