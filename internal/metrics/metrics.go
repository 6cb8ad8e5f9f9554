package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Checks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ota_checks_total",
		Help: "Version checks by result.",
	}, []string{"result"})

	Downloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ota_downloads_total",
		Help: "Download attempts by terminal state.",
	}, []string{"result"})

	FilesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ota_files_downloaded_total",
		Help: "Changed files transferred.",
	})

	FilesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ota_files_skipped_total",
		Help: "Manifest files skipped as unchanged.",
	})

	Rollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ota_rollbacks_total",
		Help: "Rollbacks by trigger.",
	}, []string{"trigger"})

	SwapsDeferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ota_swaps_deferred_total",
		Help: "Downloads that completed in a context unsafe to swap.",
	})

	DownloadInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ota_download_in_flight",
		Help: "Whether a download is currently running.",
	})
)
