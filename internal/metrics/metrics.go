// Package metrics defines the Prometheus collectors for the service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "billnote"

// Metrics holds every collector
type Metrics struct {
	registry *prometheus.Registry

	extractions        *prometheus.CounterVec
	extractionDuration prometheus.Histogram
	artifactUploads    *prometheus.CounterVec
	commits            *prometheus.CounterVec
	recomputes         prometheus.Counter
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Receipt extractions by outcome code.",
		}, []string{"code"}),
		extractionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Time spent in the vision provider.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		artifactUploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_uploads_total",
			Help:      "Best-effort original image uploads by result.",
		}, []string{"result"}),
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Receipt commits by result.",
		}, []string{"result"}),
		recomputes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "note_total_recomputes_total",
			Help:      "Note total recomputations after item mutations.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Extraction records one extraction attempt. code is "OK" on success.
func (m *Metrics) Extraction(code string, d time.Duration) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(code).Inc()
	if d > 0 {
		m.extractionDuration.Observe(d.Seconds())
	}
}

// ArtifactUpload records the outcome of a background upload
func (m *Metrics) ArtifactUpload(err error) {
	if m == nil {
		return
	}
	m.artifactUploads.WithLabelValues(result(err)).Inc()
}

// Commit records the outcome of a commit
func (m *Metrics) Commit(err error) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(result(err)).Inc()
}

// Recompute records one note total recomputation
func (m *Metrics) Recompute() {
	if m == nil {
		return
	}
	m.recomputes.Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
