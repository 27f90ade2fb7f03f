// Package metrics provides Prometheus metrics for the render pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shortform"

// Metrics holds all Prometheus metrics for the render pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Request outcomes
	RendersTotal *prometheus.CounterVec

	// Asset resolution
	AssetResolutions *prometheus.CounterVec
	DownloadFailures *prometheus.CounterVec

	// Timing
	RenderDuration *prometheus.HistogramVec
	RenderJobPolls prometheus.Histogram
}

// New creates metrics registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RendersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "renders_total",
				Help:      "Total number of render requests by outcome",
			},
			[]string{"outcome"},
		),
		AssetResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "asset_resolutions_total",
				Help:      "Total number of asset positions resolved, by result (downloaded or fallback)",
			},
			[]string{"result"},
		),
		DownloadFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_failed_total",
				Help:      "Total number of failed downloads by resource and cause",
			},
			[]string{"resource", "cause"},
		),
		RenderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "render_duration_seconds",
				Help:      "End-to-end duration of render requests",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 180, 300},
			},
			[]string{"outcome"},
		),
		RenderJobPolls: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "render_job_polls",
				Help:      "Number of status polls per render job",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 9),
			},
		),
	}
}

// Handler returns the HTTP handler exposing this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRender records the outcome and duration of one render request.
func (m *Metrics) ObserveRender(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RendersTotal.WithLabelValues(outcome).Inc()
	m.RenderDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveAssets records how many asset positions were downloaded vs. fell back.
func (m *Metrics) ObserveAssets(downloaded, fallback int) {
	if m == nil {
		return
	}
	m.AssetResolutions.WithLabelValues("downloaded").Add(float64(downloaded))
	m.AssetResolutions.WithLabelValues("fallback").Add(float64(fallback))
}

// ObserveDownloadFailure records one failed download.
func (m *Metrics) ObserveDownloadFailure(resource, cause string) {
	if m == nil {
		return
	}
	m.DownloadFailures.WithLabelValues(resource, cause).Inc()
}

// ObservePolls records the number of status polls a render job took.
func (m *Metrics) ObservePolls(polls int) {
	if m == nil {
		return
	}
	m.RenderJobPolls.Observe(float64(polls))
}
