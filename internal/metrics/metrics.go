// Package metrics exposes Prometheus instrumentation for pipeline runs.
//
// A nil *Recorder is valid and records nothing, so services can take one
// unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
)

// Ensure Recorder implements the interface.
var _ driven.Observer = (*Recorder)(nil)

// Namespace prefixes every metric name.
const Namespace = "umlgen"

// Recorder holds the application metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	runs           *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	diagrams       *prometheus.CounterVec
	renderAttempts *prometheus.CounterVec
	llmRequests    *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
	indexBuilds    *prometheus.CounterVec
	indexPassages  prometheus.Gauge
	activeJobs     prometheus.Gauge
}

// New creates a recorder with its own registry, including Go and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by mode and final status.",
		}, []string{"mode", "status"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		diagrams: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "diagrams_total",
			Help:      "Extracted diagrams by outcome.",
		}, []string{"status"}),
		renderAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "render_attempts_total",
			Help:      "Renderer calls by result.",
		}, []string{"result"}),
		llmRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "llm_requests_total",
			Help:      "LLM completions by pipeline stage and result.",
		}, []string{"stage", "result"}),
		llmLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM completion latency by pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"stage"}),
		indexBuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "index_builds_total",
			Help:      "Index load or build actions taken at startup or on request.",
		}, []string{"action"}),
		indexPassages: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "index_passages",
			Help:      "Passages in the current index.",
		}),
		activeJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_jobs",
			Help:      "Jobs currently running.",
		}),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveRun records a finished run.
func (r *Recorder) ObserveRun(result *domain.RunResult, elapsed time.Duration) {
	if r == nil || result == nil {
		return
	}
	mode := string(result.Mode)
	r.runs.WithLabelValues(mode, string(result.Status)).Inc()
	r.runDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	for i := range result.Diagrams {
		r.diagrams.WithLabelValues(string(result.Diagrams[i].Status)).Inc()
	}
}

// ObserveRender records one renderer call.
func (r *Recorder) ObserveRender(err error) {
	if r == nil {
		return
	}
	r.renderAttempts.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveLLM records one completion for a pipeline stage.
func (r *Recorder) ObserveLLM(stage string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.llmRequests.WithLabelValues(stage, resultLabel(err)).Inc()
	r.llmLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveIndex records an index action and the resulting passage count.
func (r *Recorder) ObserveIndex(action domain.IndexAction, passages int) {
	if r == nil {
		return
	}
	r.indexBuilds.WithLabelValues(string(action)).Inc()
	r.indexPassages.Set(float64(passages))
}

// JobStarted increments the active job gauge.
func (r *Recorder) JobStarted() {
	if r == nil {
		return
	}
	r.activeJobs.Inc()
}

// JobFinished decrements the active job gauge.
func (r *Recorder) JobFinished() {
	if r == nil {
		return
	}
	r.activeJobs.Dec()
}

// resultLabel maps an error to a low-cardinality label.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return domain.ErrorKind(err)
}
