// Package metrics exposes queue gauges and counters in Prometheus format.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// QueueMetrics records queue activity.
type QueueMetrics struct {
	length       *prometheus.GaugeVec
	operations   *prometheus.CounterVec
	consultation prometheus.Histogram
}

// NewQueueMetrics registers the queue collectors on reg.
func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	f := promauto.With(reg)
	return &QueueMetrics{
		length: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "medq_queue_length",
				Help: "Current number of queue entries by status",
			},
			[]string{"status"},
		),
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medq_queue_operations_total",
				Help: "Total queue operations",
			},
			[]string{"operation", "result"},
		),
		consultation: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "medq_consultation_minutes",
				Help:    "Realised consultation length in whole minutes",
				Buckets: prometheus.LinearBuckets(5, 5, 12),
			},
		),
	}
}

// RecordOperation counts one operation; result is "ok" or "not_found".
func (m *QueueMetrics) RecordOperation(operation, result string) {
	m.operations.WithLabelValues(operation, result).Inc()
}

// SetQueueLength publishes the per-status entry counts.
func (m *QueueMetrics) SetQueueLength(total, waiting, inConsultation int) {
	m.length.WithLabelValues("total").Set(float64(total))
	m.length.WithLabelValues("waiting").Set(float64(waiting))
	m.length.WithLabelValues("in-consultation").Set(float64(inConsultation))
}

// ObserveConsultation records a completed consultation length.
func (m *QueueMetrics) ObserveConsultation(minutes int) {
	m.consultation.Observe(float64(minutes))
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
