package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rx"

// Pipeline run outcomes.
const (
	RunCompleted         = "completed"
	RunRecognitionFailed = "recognition_failed"
	RunTransportError    = "transport_error"
	RunPersistenceFailed = "persistence_failed"
	RunCancelled         = "cancelled"
)

var (
	registry = prometheus.NewRegistry()

	pipelineRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Prescription pipeline invocations by final outcome.",
	}, []string{"outcome"})

	transforms = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "transform_total",
		Help:      "Fail-open transform results by component and outcome.",
	}, []string{"component", "outcome"})

	medicinesExtracted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "medicines_extracted_total",
		Help:      "Medicine entries committed across all prescriptions.",
	})

	residualIdentifiers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "privacy",
		Name:      "residual_identifiers_total",
		Help:      "Identifier-like patterns still present after redaction, by type.",
	}, []string{"type"})

	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock duration of each pipeline stage.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"stage"})
)

func init() {
	registry.MustRegister(
		pipelineRuns,
		transforms,
		medicinesExtracted,
		residualIdentifiers,
		stageDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func ObserveRun(outcome string) {
	pipelineRuns.WithLabelValues(outcome).Inc()
}

func ObserveTransform(component, outcome string) {
	transforms.WithLabelValues(component, outcome).Inc()
}

func ObserveMedicines(n int) {
	if n > 0 {
		medicinesExtracted.Add(float64(n))
	}
}

func ObserveResidualIdentifier(kind string) {
	residualIdentifiers.WithLabelValues(kind).Inc()
}

func ObserveStage(stage string, seconds float64) {
	stageDuration.WithLabelValues(stage).Observe(seconds)
}

// Handler serves the private registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Registry is exposed for tests that read counter values.
func Registry() *prometheus.Registry {
	return registry
}
