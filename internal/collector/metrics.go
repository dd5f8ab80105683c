package collector

import "github.com/prometheus/client_golang/prometheus"

var (
	// Fetches counts resource collections by outcome.
	Fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_fetches_total",
			Help: "Resource collections by outcome.",
		},
		[]string{"outcome"},
	)

	// Readings counts normalized interval readings handed to the sink.
	Readings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_readings_total",
			Help: "Normalized interval readings stored.",
		},
	)

	// FetchDuration observes the wall time of one collection, fetch
	// through store.
	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collector_fetch_duration_seconds",
			Help:    "Duration of one collection in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RegisterMetrics registers the collector metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Fetches, Readings, FetchDuration)
}
