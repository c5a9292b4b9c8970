package http

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// MetricsRegistry holds the gateway's Prometheus metrics.
type MetricsRegistry struct {
	registry *prometheus.Registry

	// Request metrics
	RequestDuration *prometheus.HistogramVec

	// Verification pipeline metrics
	Verifications *prometheus.CounterVec
	TrustScores   prometheus.Histogram
	CheckDuration *prometheus.HistogramVec
	Fallbacks     *prometheus.CounterVec

	// Shield metrics
	ShieldScans *prometheus.CounterVec

	// Live stream metrics
	StreamClients prometheus.Gauge
}

// NewMetricsRegistry creates and registers all gateway metrics.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meerkat_request_duration_seconds",
				Help:    "Duration of each HTTP request in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0},
			},
			[]string{"route", "status"},
		),

		Verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meerkat_verifications_total",
				Help: "Total number of verifications by decision status",
			},
			[]string{"status"},
		),

		TrustScores: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meerkat_trust_score",
				Help:    "Distribution of fused trust scores",
				Buckets: []float64{0, 10, 20, 30, 40, 45, 50, 60, 70, 75, 80, 90, 100},
			},
		),

		CheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meerkat_check_duration_seconds",
				Help:    "Duration of each governance check",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 30.0, 60.0, 120.0, 180.0},
			},
			[]string{"check", "result"},
		),

		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meerkat_check_fallbacks_total",
				Help: "Checks that degraded to the text heuristic",
			},
			[]string{"check"},
		),

		ShieldScans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meerkat_shield_scans_total",
				Help: "Total number of shield scans by resulting action",
			},
			[]string{"action"},
		),

		StreamClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "meerkat_stream_clients",
				Help: "Number of connected live-stream clients",
			},
		),
	}

	m.registry.MustRegister(
		m.RequestDuration,
		m.Verifications,
		m.TrustScores,
		m.CheckDuration,
		m.Fallbacks,
		m.ShieldScans,
		m.StreamClients,
	)
	return m
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// VerificationCount reads back the counter for one decision status.
// Used by tests and the health report.
func (m *MetricsRegistry) VerificationCount(status string) float64 {
	var out dto.Metric
	if err := m.Verifications.WithLabelValues(status).Write(&out); err != nil {
		return 0
	}
	return out.GetCounter().GetValue()
}

// Snapshot gathers all counter values keyed by name and label set, e.g.
// "meerkat_verifications_total{status=PASS}". Histograms and gauges
// report their sample count and value respectively.
func (m *MetricsRegistry) Snapshot() map[string]float64 {
	out := make(map[string]float64)
	families, err := m.registry.Gather()
	if err != nil {
		return out
	}
	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			key := fam.GetName()
			for _, lp := range metric.GetLabel() {
				key += fmt.Sprintf("{%s=%s}", lp.GetName(), lp.GetValue())
			}
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				out[key] = metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[key] = metric.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[key] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}
