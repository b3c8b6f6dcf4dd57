package anacrolix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"

	"torrentcache/internal/domain"
	"torrentcache/internal/domain/ports"
)

var errClosedBeforeInfo = errors.New("torrent closed before metadata arrived")

type managedTorrent struct {
	engine *Engine
	t      *torrent.Torrent
	fp     domain.Fingerprint
	dir    string
	store  storage.ClientImplCloser
	failed chan error

	destroyOnce sync.Once
	destroyErr  error
}

func (m *managedTorrent) Fingerprint() domain.Fingerprint { return m.fp }

func (m *managedTorrent) Name() string {
	if name := m.t.Name(); name != "" {
		return name
	}
	return m.fp.String()
}

// Length is zero until metadata arrives.
func (m *managedTorrent) Length() int64 {
	if !infoReady(m.t) {
		return 0
	}
	return m.t.Length()
}

func (m *managedTorrent) DownloadedBytes() int64 {
	return downloadedBytes(m.t.Stats())
}

func (m *managedTorrent) Ratio() float64 {
	return shareRatio(m.t.Stats())
}

func (m *managedTorrent) Ready() <-chan struct{} {
	return m.t.GotInfo()
}

func (m *managedTorrent) Failed() <-chan error {
	return m.failed
}

func (m *managedTorrent) Files() []ports.TorrentFile {
	if !infoReady(m.t) {
		return nil
	}
	files := m.t.Files()
	out := make([]ports.TorrentFile, 0, len(files))
	for i, f := range files {
		out = append(out, &managedFile{fp: m.fp, index: i, f: f})
	}
	return out
}

func (m *managedTorrent) file(index int) (*torrent.File, bool) {
	if !infoReady(m.t) {
		return nil, false
	}
	files := m.t.Files()
	if index < 0 || index >= len(files) {
		return nil, false
	}
	return files[index], true
}

// watch reports a torrent that closes before its metadata arrives.
func (m *managedTorrent) watch() {
	select {
	case <-m.t.GotInfo():
	case <-m.t.Closed():
		select {
		case m.failed <- errClosedBeforeInfo:
		default:
		}
	}
}

func (m *managedTorrent) closed() bool {
	return torrentClosed(m.t)
}

func torrentClosed(t *torrent.Torrent) bool {
	select {
	case <-t.Closed():
		return true
	default:
		return false
	}
}

// Destroy drops the torrent from the client and optionally deletes its data
// directory. Repeated calls return the first result. A handle that has been
// superseded by a newer admission of the same torrent leaves the directory
// alone, since it now belongs to the newer handle.
func (m *managedTorrent) Destroy(removeStorage bool) error {
	m.destroyOnce.Do(func() {
		release, _ := m.engine.acquire(context.Background(), m.fp)
		defer release()

		superseded := false
		if cur := m.engine.current(m.fp); cur != nil && cur != m {
			superseded = true
		}
		m.engine.forget(m.fp, m)
		if !superseded {
			m.t.Drop()
		}

		var errs []error
		if m.store != nil {
			if err := m.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close storage: %w", err))
			}
		}
		if removeStorage && !superseded && m.dir != "" {
			if err := os.RemoveAll(m.dir); err != nil {
				errs = append(errs, fmt.Errorf("remove data: %w", err))
			}
		}
		m.destroyErr = errors.Join(errs...)
		freeOSMemory()

		m.engine.logger.Info("torrent destroyed",
			slog.String("fingerprint", m.fp.String()),
			slog.Bool("removeStorage", removeStorage && !superseded),
			slog.Bool("superseded", superseded),
		)
	})
	return m.destroyErr
}

type managedFile struct {
	fp    domain.Fingerprint
	index int
	f     *torrent.File
}

func (f *managedFile) Index() int    { return f.index }
func (f *managedFile) Name() string  { return f.f.DisplayPath() }
func (f *managedFile) Length() int64 { return f.f.Length() }

// StreamPath is the file server route for this file. The trailing name only
// gives players a recognisable extension; lookup is by index.
func (f *managedFile) StreamPath() string {
	return streamPath(f.fp, f.index, f.f.DisplayPath())
}

func (f *managedFile) Select()   { f.f.Download() }
func (f *managedFile) Deselect() { f.f.SetPriority(torrent.PiecePriorityNone) }

func streamPath(fp domain.Fingerprint, index int, name string) string {
	return "/" + fp.String() + "/" + strconv.Itoa(index) + "/" + url.PathEscape(path.Base(name))
}

func downloadedBytes(stats torrent.TorrentStats) int64 {
	return stats.BytesReadUsefulData.Int64()
}

// shareRatio is uploaded over downloaded bytes; zero before any download.
func shareRatio(stats torrent.TorrentStats) float64 {
	down := stats.BytesReadUsefulData.Int64()
	if down <= 0 {
		return 0
	}
	return float64(stats.BytesWrittenData.Int64()) / float64(down)
}

func infoReady(t *torrent.Torrent) bool {
	if t == nil {
		return false
	}
	select {
	case <-t.GotInfo():
		return true
	default:
		return false
	}
}
