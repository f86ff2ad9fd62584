// File: internal/observability/metrics.go
package observability

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Metrics holds the collectors for one run. Every collector is registered on
// a private registry so tests and concurrent runs never collide. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	FetchLatency  *prometheus.HistogramVec
	FetchAttempts *prometheus.CounterVec
	FetchResults  *prometheus.CounterVec
	CacheLookups  *prometheus.CounterVec
	InFlight      prometheus.Gauge
	ScanDuration  *prometheus.HistogramVec
	RiskLevels    *prometheus.CounterVec
	Narratives    *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all collectors registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dialtone"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		FetchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Latency of source fetches including retries",
			Buckets:   latencyBuckets,
		}, []string{"source", "status"}),
		FetchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_attempts_total",
			Help:      "Network attempts made per source",
		}, []string{"source"}),
		FetchResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_results_total",
			Help:      "Terminal source results by status",
		}, []string{"source", "status"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_cache_lookups_total",
			Help:      "Fetch cache lookups by outcome",
		}, []string{"outcome"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_fetches_in_flight",
			Help:      "Source fetches currently executing",
		}),
		ScanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "End to end scan duration",
			Buckets:   latencyBuckets,
		}, []string{"tier", "state"}),
		RiskLevels: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_level_total",
			Help:      "Completed scans by risk level",
		}, []string{"level"}),
		Narratives: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narratives_total",
			Help:      "Narrative generation attempts by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveFetch records one terminal source result.
func (m *Metrics) ObserveFetch(source, status string, latency time.Duration, attempts int) {
	if m == nil {
		return
	}
	m.FetchLatency.WithLabelValues(source, status).Observe(latency.Seconds())
	m.FetchResults.WithLabelValues(source, status).Inc()
	if attempts > 0 {
		m.FetchAttempts.WithLabelValues(source).Add(float64(attempts))
	}
}

// ObserveCache records a cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheLookups.WithLabelValues(outcome).Inc()
}

// TrackInFlight increments the in-flight gauge and returns its decrement.
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}

// ObserveScan records the outcome of one scan. level is empty for failed scans.
func (m *Metrics) ObserveScan(tier, state, level string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScanDuration.WithLabelValues(tier, state).Observe(d.Seconds())
	if level != "" {
		m.RiskLevels.WithLabelValues(level).Inc()
	}
}

// ObserveNarrative records whether narrative generation succeeded.
func (m *Metrics) ObserveNarrative(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.Narratives.WithLabelValues(outcome).Inc()
}

// WriteTextfile dumps the registry in text exposition format, e.g. for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("metrics textfile path is empty")
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
