package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/veranemoloko/index-mirror/internal/domain"
)

var (
	RecordsDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_mirror_records_discovered_total",
		Help: "Total number of new records added to the ledger",
	})

	DownloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_mirror_downloads_total",
		Help: "Total number of download attempts",
	})

	DownloadsSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_mirror_downloads_success_total",
		Help: "Total number of successful downloads",
	})

	DownloadsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_mirror_downloads_failed_total",
		Help: "Total number of failed downloads",
	})

	FinalizeFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_mirror_finalize_failed_total",
		Help: "Total number of downloads that could not be finalized in the ledger",
	})

	DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "index_mirror_download_duration_seconds",
		Help:    "Download duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	DownloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_mirror_download_bytes_total",
		Help: "Total bytes downloaded",
	})

	LedgerRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "index_mirror_ledger_records",
		Help: "Number of ledger records by status",
	}, []string{"status"})
)

// ObserveCounts publishes a ledger tally to the LedgerRecords gauge.
func ObserveCounts(c domain.Counts) {
	LedgerRecords.WithLabelValues(domain.StatusMissing.String()).Set(float64(c.Missing))
	LedgerRecords.WithLabelValues(domain.StatusInProgress.String()).Set(float64(c.InProgress))
	LedgerRecords.WithLabelValues(domain.StatusDone.String()).Set(float64(c.Done))
}
