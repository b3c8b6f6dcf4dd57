package domain

import "time"

// CachedTorrent is a point-in-time view of one active torrent in the cache.
type CachedTorrent struct {
	Fingerprint     Fingerprint `json:"fingerprint"`
	Name            string      `json:"name"`
	Length          int64       `json:"length"`
	DownloadedBytes int64       `json:"downloadedBytes"`
	Ratio           float64     `json:"ratio"`
	Ready           bool        `json:"ready"`
	LastAccess      *time.Time  `json:"lastAccess,omitempty"`
}

// CacheUsage summarises the cache against its configured budget.
type CacheUsage struct {
	UsedBytes   int64 `json:"usedBytes"`
	BudgetBytes int64 `json:"budgetBytes"`
	Torrents    int   `json:"torrents"`
}
