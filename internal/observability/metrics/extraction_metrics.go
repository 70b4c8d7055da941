package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ExtractionOutcomeSuccess    = "success"
	ExtractionOutcomeUnreadable = "unreadable"
	ExtractionOutcomeError      = "error"
	ExtractionOutcomeTimeout    = "timeout"
	ExtractionOutcomeCanceled   = "canceled"
)

// ExtractionMetrics tracks vision extractor latency on the Prometheus
// registry served at /metrics.
type ExtractionMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

var (
	extractionMetricsOnce sync.Once
	extractionMetrics     *ExtractionMetrics
)

// Extraction returns the process-wide extraction metrics registered with
// the default Prometheus registerer.
func Extraction(cfg Config) *ExtractionMetrics {
	extractionMetricsOnce.Do(func() {
		extractionMetrics = newExtractionMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return extractionMetrics
}

func newExtractionMetrics(registerer prometheus.Registerer, cfg Config) *ExtractionMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName(cfg),
		"env":     environment,
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "meterscan_extraction_duration_seconds",
		Help:        "Vision extractor latency per meter kind.",
		Buckets:     []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		ConstLabels: constLabels,
	}, []string{"provider", "meter_kind"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "meterscan_extractions_total",
		Help:        "Vision extractor calls by outcome.",
		ConstLabels: constLabels,
	}, []string{"provider", "meter_kind", "outcome"})

	registerer.MustRegister(duration, outcomes)

	return &ExtractionMetrics{duration: duration, outcomes: outcomes}
}

// Observe records one extractor call.
func (m *ExtractionMetrics) Observe(provider, meterKind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		provider = "unknown"
	}
	m.duration.WithLabelValues(provider, meterKind).Observe(elapsed.Seconds())
	m.outcomes.WithLabelValues(provider, meterKind, outcome).Inc()
}
