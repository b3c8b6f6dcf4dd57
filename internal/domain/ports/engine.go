package ports

import (
	"context"

	"torrentcache/internal/domain"
)

// AddOptions configures a single admission.
type AddOptions struct {
	// StoragePath is the root under which the torrent's data directory is created.
	StoragePath string
	// Trackers are announce URLs added as an extra tier.
	Trackers []string
}

// Engine is the slice of the peer-to-peer client the cache depends on.
type Engine interface {
	Get(fp domain.Fingerprint) (Torrent, bool)
	// Add registers the source and returns immediately; readiness is
	// signalled on Torrent.Ready or Torrent.Failed.
	Add(ctx context.Context, src domain.Source, opts AddOptions) (Torrent, error)
	ListActive() []Torrent
	// BaseURL is the loopback origin of the engine's file server.
	BaseURL() string
	Close() error
}

type Torrent interface {
	Fingerprint() domain.Fingerprint
	Name() string
	// Length is zero until metadata is known.
	Length() int64
	DownloadedBytes() int64
	Ratio() float64
	Files() []TorrentFile
	Ready() <-chan struct{}
	Failed() <-chan error
	Destroy(removeStorage bool) error
}

type TorrentFile interface {
	Index() int
	Name() string
	Length() int64
	// StreamPath is routable on the engine's file server, e.g. "/<fp>/0/movie.mkv".
	StreamPath() string
	Select()
	Deselect()
}
