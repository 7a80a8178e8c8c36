package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmacedo/fiscal-audit-service/internal/core/domain"
)

// PipelineMetrics observes the worker's document pipeline. Satisfies the
// coordinator's StageMetrics contract.
type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	documentsTotal *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	inFlight       prometheus.Gauge
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fas",
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Documents finished by terminal status.",
		},
		[]string{"service", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fas",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fas",
			Subsystem: "pipeline",
			Name:      "documents_in_flight",
			Help:      "Documents currently inside the worker pool.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(documentsTotal, stageDuration, inFlight)

	return &PipelineMetrics{
		registry:       registry,
		documentsTotal: documentsTotal,
		stageDuration:  stageDuration,
		inFlight:       inFlight,
		service:        service,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) ObserveStage(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(duration.Seconds())
}

func (m *PipelineMetrics) DocumentDone(status domain.DocumentStatus) {
	m.documentsTotal.WithLabelValues(m.service, string(status)).Inc()
}

func (m *PipelineMetrics) InFlight(delta int) {
	m.inFlight.Add(float64(delta))
}
