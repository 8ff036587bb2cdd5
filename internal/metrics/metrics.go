package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveDownloads = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "savehere",
		Name:      "active_downloads",
		Help:      "Number of transfers currently running.",
	})

	DownloadedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "savehere",
		Name:      "downloaded_bytes_total",
		Help:      "Total bytes written by the download engine.",
	})

	ServedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "savehere",
		Name:      "served_bytes_total",
		Help:      "Total bytes served by the file endpoint.",
	})

	FileRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "savehere",
		Name:      "file_requests_total",
		Help:      "Total file endpoint requests by status code.",
	}, []string{"status"})

	TransferFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "savehere",
		Name:      "transfer_failures_total",
		Help:      "Total transfers that ended in an error.",
	})

	TransfersStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "savehere",
		Name:      "transfers_started_total",
		Help:      "Total transfer attempts started.",
	})

	DownloadDirFreeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "savehere",
		Name:      "download_dir_free_bytes",
		Help:      "Free space on the filesystem holding the download directory.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		ActiveDownloads,
		DownloadedBytesTotal,
		ServedBytesTotal,
		FileRequestsTotal,
		TransferFailuresTotal,
		TransfersStartedTotal,
		DownloadDirFreeBytes,
	)
}
