// Package metrics exposes the normalizer's operational counters over the
// Prometheus OpenMetrics encoder.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devinsights/scm-normalizer/internal/providers"
)

// Metrics holds the registry and the instrument set.
type Metrics struct {
	registry *prometheus.Registry

	RecordsNormalized *prometheus.CounterVec
	Diagnostics       *prometheus.CounterVec
	IngestFailures    *prometheus.CounterVec
	IngestDuration    *prometheus.HistogramVec
}

// New builds a registry with the normalizer instruments plus the standard
// process and Go runtime collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		RecordsNormalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scm_records_normalized_total",
			Help: "Canonical records produced, by integration, provider and record type.",
		}, []string{"integration", "provider", "record_type"}),
		Diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scm_normalize_diagnostics_total",
			Help: "Recoverable data problems observed while normalizing, by provider and reason.",
		}, []string{"provider", "reason"}),
		IngestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scm_ingest_failures_total",
			Help: "Ingest requests that failed, by integration and reason.",
		}, []string{"integration", "reason"}),
		IngestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scm_ingest_duration_seconds",
			Help:    "End-to-end ingest handling time including persistence.",
			Buckets: prometheus.DefBuckets,
		}, []string{"integration"}),
	}

	registry.MustRegister(m.RecordsNormalized, m.Diagnostics, m.IngestFailures, m.IngestDuration)
	return m
}

// Handler renders the registry through the OpenMetrics encoder.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveResult counts one normalization outcome.
func (m *Metrics) ObserveResult(integrationID string, kind providers.Kind, result providers.Result) {
	for recordType, count := range result.Counts() {
		if count == 0 {
			continue
		}
		m.RecordsNormalized.WithLabelValues(integrationID, string(kind), recordType).Add(float64(count))
	}
	for _, diagnostic := range result.Diagnostics {
		m.Diagnostics.WithLabelValues(string(diagnostic.Provider), diagnostic.Reason).Inc()
	}
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
