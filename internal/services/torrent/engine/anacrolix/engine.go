package anacrolix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"

	"torrentcache/internal/domain"
	"torrentcache/internal/domain/ports"
)

// addTimeout caps the time we wait for the anacrolix client to accept a
// torrent. AddTorrentSpec can block on the client mutex while the client is
// busy with another torrent's metadata.
const addTimeout = 10 * time.Second

const DefaultFileServerAddr = "127.0.0.1:0"

var (
	ErrClientClosed = errors.New("torrent client closed")
	// ErrTorrentClosing is returned when the client hands back a torrent that
	// is already being dropped.
	ErrTorrentClosing = errors.New("torrent is closing")
)

type Config struct {
	DataDir    string
	ListenPort int
	// FileServerAddr is the loopback address the file server binds to.
	FileServerAddr string
	Logger         *slog.Logger
}

// Engine adapts an anacrolix client to ports.Engine and serves torrent
// files over a loopback HTTP server.
type Engine struct {
	client *torrent.Client
	logger *slog.Logger

	mu       sync.RWMutex
	torrents map[domain.Fingerprint]*managedTorrent

	// gates serialises Add and Destroy per fingerprint, so an admission never
	// sees a torrent that is half way through being dropped.
	gateMu sync.Mutex
	gates  map[domain.Fingerprint]chan struct{}

	server  *http.Server
	baseURL string
}

func New(cfg Config) (*Engine, error) {
	clientConfig := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientConfig.DataDir = cfg.DataDir
	}
	if cfg.ListenPort > 0 {
		clientConfig.ListenPort = cfg.ListenPort
	}
	clientConfig.Seed = true
	return newEngine(cfg, clientConfig)
}

func newEngine(cfg Config, clientConfig *torrent.ClientConfig) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		client:   client,
		logger:   logger,
		torrents: make(map[domain.Fingerprint]*managedTorrent),
		gates:    make(map[domain.Fingerprint]chan struct{}),
	}

	addr := cfg.FileServerAddr
	if addr == "" {
		addr = DefaultFileServerAddr
	}
	if err := e.listen(addr); err != nil {
		client.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("file server listen: %w", err)
	}
	e.server = &http.Server{
		Handler:           e.fileHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	e.baseURL = "http://" + ln.Addr().String()
	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("file server stopped", slog.String("error", err.Error()))
		}
	}()
	e.logger.Info("file server listening", slog.String("baseUrl", e.baseURL))
	return nil
}

// BaseURL is the scheme and authority of the loopback file server.
func (e *Engine) BaseURL() string {
	return e.baseURL
}

func (e *Engine) Get(fp domain.Fingerprint) (ports.Torrent, bool) {
	mt := e.lookup(fp)
	if mt == nil {
		return nil, false
	}
	return mt, true
}

func (e *Engine) lookup(fp domain.Fingerprint) *managedTorrent {
	e.mu.RLock()
	mt := e.torrents[fp]
	e.mu.RUnlock()
	if mt == nil || mt.closed() {
		return nil
	}
	return mt
}

func (e *Engine) ListActive() []ports.Torrent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ports.Torrent, 0, len(e.torrents))
	for _, mt := range e.torrents {
		if mt.closed() {
			continue
		}
		out = append(out, mt)
	}
	return out
}

// Add starts downloading src into its own directory under opts.StoragePath.
// If the torrent is already active the existing handle is returned.
func (e *Engine) Add(ctx context.Context, src domain.Source, opts ports.AddOptions) (ports.Torrent, error) {
	if e.client == nil {
		return nil, ErrClientClosed
	}
	spec, err := specFromSource(src)
	if err != nil {
		return nil, err
	}
	fp, err := domain.ParseFingerprint(spec.InfoHash.HexString())
	if err != nil {
		return nil, err
	}

	release, err := e.acquire(ctx, fp)
	if err != nil {
		return nil, err
	}
	handedOff := false
	defer func() {
		if !handedOff {
			release()
		}
	}()

	if mt := e.lookup(fp); mt != nil {
		return mt, nil
	}

	if len(opts.Trackers) > 0 {
		spec.Trackers = append(spec.Trackers, append([]string(nil), opts.Trackers...))
	}
	dir := filepath.Join(opts.StoragePath, fp.String())
	store := storage.NewFileWithCompletion(dir, storage.NewMapPieceCompletion())
	spec.Storage = store

	type addResult struct {
		t     *torrent.Torrent
		isNew bool
		err   error
	}
	ch := make(chan addResult, 1)
	go func() {
		t, isNew, err := e.client.AddTorrentSpec(spec)
		ch <- addResult{t, isNew, err}
	}()

	// abandon keeps the gate closed until the late torrent is dropped.
	abandon := func() {
		handedOff = true
		go func() {
			defer release()
			if res := <-ch; res.t != nil && res.isNew {
				res.t.Drop()
			}
			_ = store.Close()
		}()
	}

	var (
		t     *torrent.Torrent
		owned storage.ClientImplCloser = store
	)
	select {
	case res := <-ch:
		if res.err != nil {
			_ = store.Close()
			return nil, res.err
		}
		t = res.t
		if !res.isNew {
			// The client already holds this torrent outside our bookkeeping.
			_ = store.Close()
			owned = nil
			if mt := e.lookup(fp); mt != nil {
				return mt, nil
			}
			if torrentClosed(t) {
				return nil, ErrTorrentClosing
			}
		}
	case <-time.After(addTimeout):
		abandon()
		return nil, errors.New("torrent client busy, try again later")
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}

	mt := &managedTorrent{
		engine: e,
		t:      t,
		fp:     fp,
		dir:    dir,
		store:  owned,
		failed: make(chan error, 1),
	}
	e.mu.Lock()
	e.torrents[fp] = mt
	e.mu.Unlock()

	go mt.watch()

	e.logger.Info("torrent added",
		slog.String("fingerprint", fp.String()),
		slog.String("kind", string(src.Kind)),
		slog.String("dir", dir),
	)
	return mt, nil
}

func specFromSource(src domain.Source) (*torrent.TorrentSpec, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	switch src.Kind {
	case domain.SourceMagnet:
		return torrent.TorrentSpecFromMagnetUri(src.Magnet)
	default:
		mi, err := metainfo.Load(bytes.NewReader(src.Metainfo))
		if err != nil {
			return nil, fmt.Errorf("decode metainfo: %w", err)
		}
		return torrent.TorrentSpecFromMetaInfoErr(mi)
	}
}

// acquire waits until no Add or Destroy is in flight for fp and claims it.
// The returned release must be called exactly once.
func (e *Engine) acquire(ctx context.Context, fp domain.Fingerprint) (func(), error) {
	for {
		e.gateMu.Lock()
		if e.gates == nil {
			e.gates = make(map[domain.Fingerprint]chan struct{})
		}
		busy, ok := e.gates[fp]
		if !ok {
			done := make(chan struct{})
			e.gates[fp] = done
			e.gateMu.Unlock()
			return func() {
				e.gateMu.Lock()
				delete(e.gates, fp)
				e.gateMu.Unlock()
				close(done)
			}, nil
		}
		e.gateMu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// current returns the handle registered for fp, closed or not.
func (e *Engine) current(fp domain.Fingerprint) *managedTorrent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.torrents[fp]
}

func (e *Engine) forget(fp domain.Fingerprint, mt *managedTorrent) {
	e.mu.Lock()
	if e.torrents[fp] == mt {
		delete(e.torrents, fp)
	}
	e.mu.Unlock()
}

// Close stops the file server and the client. Torrent data stays on disk.
func (e *Engine) Close() error {
	var errs []error
	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	e.mu.Lock()
	stores := make([]storage.ClientImplCloser, 0, len(e.torrents))
	for fp, mt := range e.torrents {
		stores = append(stores, mt.store)
		delete(e.torrents, fp)
	}
	e.mu.Unlock()

	if e.client != nil {
		errs = append(errs, e.client.Close()...)
	}
	for _, store := range stores {
		if store != nil {
			errs = append(errs, store.Close())
		}
	}
	return errors.Join(errs...)
}

// freeOSMemory returns memory to the OS after a torrent is dropped; the
// client's piece buffers otherwise linger until the next GC cycle.
func freeOSMemory() {
	runtime.GC()
	debug.FreeOSMemory()
}
