package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torrentcache",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "torrentcache",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"method", "path"})

	ActiveTorrents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "torrentcache",
		Name:      "active_torrents",
		Help:      "Number of torrents currently held by the engine.",
	})

	StorageUsedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "torrentcache",
		Name:      "storage_used_bytes",
		Help:      "Sum of torrent lengths across the active set.",
	})

	StorageBudgetBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "torrentcache",
		Name:      "storage_budget_bytes",
		Help:      "Configured ceiling on the sum of torrent lengths.",
	})

	DiskFreeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "torrentcache",
		Name:      "disk_free_bytes",
		Help:      "Free bytes on the filesystem holding the download directory.",
	})

	AdmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torrentcache",
		Name:      "admissions_total",
		Help:      "Torrent admissions by result (hit, admitted, timeout, error).",
	}, []string{"result"})

	AdmissionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "torrentcache",
		Name:      "admission_duration_seconds",
		Help:      "Time from admission to metadata ready.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	EvictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torrentcache",
		Name:      "evictions_total",
		Help:      "Destroyed torrents by reason.",
	}, []string{"reason"})

	EvictionErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "torrentcache",
		Name:      "eviction_errors_total",
		Help:      "Torrents that failed to destroy cleanly.",
	})

	ProxyRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "torrentcache",
		Name:      "proxy_retries_total",
		Help:      "Initial probe retries issued by the file proxy.",
	})

	ProxyUpstreamFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "torrentcache",
		Name:      "proxy_upstream_failures_total",
		Help:      "File proxy requests that ended as 502.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveTorrents,
		StorageUsedBytes,
		StorageBudgetBytes,
		DiskFreeBytes,
		AdmissionsTotal,
		AdmissionDuration,
		EvictionsTotal,
		EvictionErrorsTotal,
		ProxyRetriesTotal,
		ProxyUpstreamFailuresTotal,
	)
}
