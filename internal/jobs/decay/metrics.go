package decay

import "github.com/prometheus/client_golang/prometheus"

var (
	cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dnshelper_decay_cycles_total",
			Help: "Decay cycles run, by outcome.",
		},
		[]string{"outcome"},
	)

	entryResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dnshelper_decay_entries_total",
			Help: "Entries visited by the decay scheduler, by result.",
		},
		[]string{"result"},
	)

	cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dnshelper_decay_cycle_duration_seconds",
		Help:    "Wall time of one decay cycle.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(cycles, entryResults, cycleDuration)
}
