package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	resolveTotal    *prometheus.CounterVec
	resolveDuration *prometheus.HistogramVec
	resolveInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	candidatesOpen  *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	resolveTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "freightlinker",
			Subsystem: "worker",
			Name:      "document_resolve_total",
			Help:      "Total resolved documents by outcome.",
		},
		[]string{"service", "outcome"},
	)
	resolveDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "freightlinker",
			Subsystem: "worker",
			Name:      "document_resolve_duration_seconds",
			Help:      "Document resolution duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)
	resolveInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "freightlinker",
			Subsystem: "worker",
			Name:      "document_resolve_in_flight",
			Help:      "Number of in-flight document resolutions.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "freightlinker",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between event publication and resolution start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	candidatesOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "freightlinker",
			Subsystem: "worker",
			Name:      "link_candidates_open",
			Help:      "Open link candidates by status at last observation.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(resolveTotal, resolveDuration, resolveInFlight, queueLag, candidatesOpen)

	return &WorkerMetrics{
		registry:        registry,
		resolveTotal:    resolveTotal,
		resolveDuration: resolveDuration,
		resolveInFlight: resolveInFlight,
		queueLag:        queueLag,
		candidatesOpen:  candidatesOpen,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartResolve() {
	m.resolveInFlight.Inc()
}

func (m *WorkerMetrics) FinishResolve(service, outcome string, duration time.Duration, err error) {
	m.resolveInFlight.Dec()

	if err != nil {
		outcome = "error"
	}
	if outcome == "" {
		outcome = "unknown"
	}

	m.resolveTotal.WithLabelValues(service, outcome).Inc()
	m.resolveDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) SetOpenCandidates(service, status string, count int) {
	m.candidatesOpen.WithLabelValues(service, status).Set(float64(count))
}
