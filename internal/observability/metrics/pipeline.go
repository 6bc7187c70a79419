package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

// PipelineMetrics covers the recommendation workflow and its supporting
// infrastructure. It implements ports.WorkflowObserver.
type PipelineMetrics struct {
	service string

	runsTotal       *prometheus.CounterVec
	fallbackTotal   *prometheus.CounterVec
	degradedTotal   *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	indexSwapsTotal *prometheus.CounterVec
	indexDocuments  prometheus.Gauge
	embedCacheTotal *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
}

func newPipelineMetrics(registry prometheus.Registerer, service string) *PipelineMetrics {
	m := &PipelineMetrics{
		service: service,
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "runs_total",
				Help:      "Finished workflow runs by terminal state.",
			},
			[]string{"service", "final"},
		),
		fallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "fallback_total",
				Help:      "Runs that repeated retrieval without filters.",
			},
			[]string{"service"},
		),
		degradedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "degraded_total",
				Help:      "Runs that continued after a soft failure, by component.",
			},
			[]string{"service", "component"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "stage_duration_seconds",
				Help:      "Workflow stage latency in seconds.",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"service", "stage"},
		),
		indexSwapsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "index",
				Name:      "swaps_total",
				Help:      "Installed index bundles.",
			},
			[]string{"service"},
		),
		indexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "index",
				Name:        "documents",
				Help:        "Documents in the installed index bundle.",
				ConstLabels: prometheus.Labels{"service": service},
			},
		),
		embedCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "embedding_cache",
				Name:      "requests_total",
				Help:      "Query embedding cache lookups by result.",
			},
			[]string{"result"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_open",
				Help:      "1 while the circuit breaker of an operation is open.",
			},
			[]string{"operation"},
		),
	}
	registry.MustRegister(
		m.runsTotal,
		m.fallbackTotal,
		m.degradedTotal,
		m.stageDuration,
		m.indexSwapsTotal,
		m.indexDocuments,
		m.embedCacheTotal,
		m.breakerState,
	)
	return m
}

func (m *PipelineMetrics) ObserveRun(trace domain.RunTrace) {
	final := string(trace.Final)
	if final == "" {
		final = "unknown"
	}
	m.runsTotal.WithLabelValues(m.service, strings.ToLower(final)).Inc()
	if trace.FallbackUsed {
		m.fallbackTotal.WithLabelValues(m.service).Inc()
	}
	if trace.FilterDegraded {
		m.degradedTotal.WithLabelValues(m.service, "self_query").Inc()
	}
	if trace.RerankDegraded {
		m.degradedTotal.WithLabelValues(m.service, "reranker").Inc()
	}
	for stage, d := range trace.StageDurations {
		m.stageDuration.WithLabelValues(m.service, stage).Observe(d.Seconds())
	}
}

func (m *PipelineMetrics) RecordIndexSwap(documents int) {
	m.indexSwapsTotal.WithLabelValues(m.service).Inc()
	m.indexDocuments.Set(float64(documents))
}

// EmbeddingCacheCounter is handed to the embedding cache decorator.
func (m *PipelineMetrics) EmbeddingCacheCounter() *prometheus.CounterVec {
	return m.embedCacheTotal
}

// ObserveBreakerState matches resilience.Config.OnStateChange.
func (m *PipelineMetrics) ObserveBreakerState(operation, state string) {
	open := 0.0
	if state == "open" {
		open = 1
	}
	m.breakerState.WithLabelValues(operation).Set(open)
}
