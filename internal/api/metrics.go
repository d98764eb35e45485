package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Record operations served by the BFF
	recordOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pinch_record_operations_total",
		Help: "Total number of record operations by result",
	}, []string{"operation", "result"})

	// Requests rejected by the per-IP limiter
	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pinch_rate_limited_requests_total",
		Help: "Total number of requests rejected by the rate limiter",
	})

	// System health
	healthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pinch_health_status",
		Help: "Health status per dependency (1=healthy, 0=unhealthy)",
	}, []string{"dependency"})
)

// RecordOperation records one record operation outcome
func RecordOperation(operation, result string) {
	recordOperations.WithLabelValues(operation, result).Inc()
}

// UpdateHealthMetric updates the health status metric
func UpdateHealthMetric(dependency string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	healthStatus.WithLabelValues(dependency).Set(v)
}
