package hosts

import "github.com/prometheus/client_golang/prometheus"

var (
	importedLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dnshelper_hosts_import_lines_total",
			Help: "Hosts-file lines processed by the importer, by result.",
		},
		[]string{"result"},
	)

	importRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dnshelper_hosts_import_runs_total",
			Help: "Import transactions, by outcome.",
		},
		[]string{"outcome"},
	)

	sourceDownloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dnshelper_hosts_source_downloads_total",
			Help: "Remote hosts source downloads, by outcome.",
		},
		[]string{"outcome"},
	)

	exportedEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dnshelper_hosts_exported_entries",
		Help: "Number of entries written by the last export.",
	})
)

func init() {
	prometheus.MustRegister(importedLines, importRuns, sourceDownloads, exportedEntries)
}
