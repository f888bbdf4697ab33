package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the ingest and query paths.
type Metrics struct {
	ReadingsIngested prometheus.Counter
	IngestErrors     *prometheus.CounterVec // labels: kind={validation,internal}
	Probability      prometheus.Histogram
	Queries          *prometheus.CounterVec // labels: endpoint={latest,history}, outcome={ok,invalid,not_found,error}
	EventsDeleted    prometheus.Counter
	PublishErrors    prometheus.Counter

	// Synthetic traffic.
	TrafficAttempts *prometheus.CounterVec // labels: outcome={success,failed,exception}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ReadingsIngested,
		m.IngestErrors,
		m.Probability,
		m.Queries,
		m.EventsDeleted,
		m.PublishErrors,
		m.TrafficAttempts,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build
// as many services as they need without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "umbrella",
			Name:      "readings_ingested_total",
			Help:      "Total readings scored and stored.",
		}),
		IngestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "umbrella",
			Name:      "ingest_errors_total",
			Help:      "Ingest failures by kind.",
		}, []string{"kind"}),
		Probability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "umbrella",
			Name:      "rain_probability",
			Help:      "Distribution of predicted rain probabilities.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "umbrella",
			Name:      "queries_total",
			Help:      "Query requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		EventsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "umbrella",
			Name:      "events_deleted_total",
			Help:      "Total events removed by delete-all.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "umbrella",
			Name:      "publish_errors_total",
			Help:      "Scored events that could not be published.",
		}),
		TrafficAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "umbrella",
			Name:      "synthetic_attempts_total",
			Help:      "Synthetic ingest attempts by outcome.",
		}, []string{"outcome"}),
	}
}
