package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for capture,
// transfer and query.
type Metrics struct {
	RawEventsCaptured   *prometheus.CounterVec
	StreamErrors        *prometheus.CounterVec
	MessagesTransferred *prometheus.CounterVec
	BatchesCommitted    *prometheus.CounterVec
	BatchFailures       *prometheus.CounterVec
	RecordsQuarantined  *prometheus.CounterVec
	BatchDuration       prometheus.Histogram
	SamplesServed       prometheus.Counter
	CaptureRunning      prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		RawEventsCaptured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "microblog",
			Name:      "raw_events_captured_total",
			Help:      "Total raw events persisted by capture.",
		}, []string{"source"}),
		StreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "microblog",
			Name:      "stream_errors_total",
			Help:      "Total transport error notifications received from streams.",
		}, []string{"source"}),
		MessagesTransferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "microblog",
			Name:      "messages_transferred_total",
			Help:      "Total message entities created by transfer.",
		}, []string{"source"}),
		BatchesCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "microblog",
			Name:      "transfer_batches_total",
			Help:      "Total transfer batches committed.",
		}, []string{"source"}),
		BatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "microblog",
			Name:      "transfer_batch_failures_total",
			Help:      "Total transfer batches rolled back.",
		}, []string{"source"}),
		RecordsQuarantined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "microblog",
			Name:      "raw_events_quarantined_total",
			Help:      "Total raw events quarantined after failing extraction.",
		}, []string{"source"}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "microblog",
			Name:      "transfer_batch_duration_seconds",
			Help:      "Duration of a single transfer batch, fetch to commit.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		SamplesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "microblog",
			Name:      "samples_served_total",
			Help:      "Total message samples served by the query API.",
		}),
		CaptureRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "microblog",
			Name:      "capture_running",
			Help:      "1 while a capture stream is attached, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RawEventsCaptured,
		m.StreamErrors,
		m.MessagesTransferred,
		m.BatchesCommitted,
		m.BatchFailures,
		m.RecordsQuarantined,
		m.BatchDuration,
		m.SamplesServed,
		m.CaptureRunning,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}

// Sum gathers c on a private registry and returns the total of its counter
// and gauge samples across all label values.
func Sum(c prometheus.Collector) float64 {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return 0
	}
	families, err := reg.Gather()
	if err != nil {
		return 0
	}
	var total float64
	for _, family := range families {
		for _, m := range family.GetMetric() {
			total += m.GetCounter().GetValue() + m.GetGauge().GetValue()
		}
	}
	return total
}
