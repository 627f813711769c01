package resolver

import "github.com/prometheus/client_golang/prometheus"

var (
	queryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dnshelper_doh_queries_total",
			Help: "DoH lookups by provider and outcome (answer, empty, error)",
		},
		[]string{"provider", "outcome"},
	)
	queryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dnshelper_doh_request_duration_seconds",
			Help:    "DoH request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(queryCounter, queryLatency)
}
