package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"torrentcache/internal/domain"
	"torrentcache/internal/domain/ports"
)

// ---------- clock ----------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ---------- files ----------

type fakeFile struct {
	mu            sync.Mutex
	fp            domain.Fingerprint
	index         int
	name          string
	length        int64
	selected      bool
	deselectCalls int
}

func (f *fakeFile) Index() int    { return f.index }
func (f *fakeFile) Name() string  { return f.name }
func (f *fakeFile) Length() int64 { return f.length }
func (f *fakeFile) StreamPath() string {
	return fmt.Sprintf("/%s/%d/%s", f.fp, f.index, f.name)
}

func (f *fakeFile) Select() {
	f.mu.Lock()
	f.selected = true
	f.mu.Unlock()
}

func (f *fakeFile) Deselect() {
	f.mu.Lock()
	f.selected = false
	f.deselectCalls++
	f.mu.Unlock()
}

func (f *fakeFile) isSelected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selected
}

// makeFiles builds files from "name:length" pairs.
func makeFiles(fp domain.Fingerprint, specs ...string) []*fakeFile {
	out := make([]*fakeFile, 0, len(specs))
	for i, spec := range specs {
		parts := strings.SplitN(spec, ":", 2)
		length, _ := strconv.ParseInt(parts[1], 10, 64)
		out = append(out, &fakeFile{fp: fp, index: i, name: parts[0], length: length})
	}
	return out
}

func asTorrentFiles(files []*fakeFile) []ports.TorrentFile {
	out := make([]ports.TorrentFile, len(files))
	for i, f := range files {
		out[i] = f
	}
	return out
}

// ---------- torrents ----------

type fakeTorrent struct {
	mu         sync.Mutex
	engine     *fakeEngine
	fp         domain.Fingerprint
	name       string
	length     int64
	downloaded int64
	ratio      float64
	files      []*fakeFile
	ready      chan struct{}
	failed     chan error

	destroyErr   error
	destroyCalls int
	removedStore bool
}

func (t *fakeTorrent) Fingerprint() domain.Fingerprint { return t.fp }
func (t *fakeTorrent) Name() string                    { return t.name }
func (t *fakeTorrent) Ready() <-chan struct{}          { return t.ready }
func (t *fakeTorrent) Failed() <-chan error            { return t.failed }

func (t *fakeTorrent) Length() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.length
}

func (t *fakeTorrent) DownloadedBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downloaded
}

func (t *fakeTorrent) Ratio() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ratio
}

func (t *fakeTorrent) Files() []ports.TorrentFile {
	return asTorrentFiles(t.files)
}

func (t *fakeTorrent) Destroy(removeStorage bool) error {
	if t.engine != nil {
		t.engine.remove(t.fp)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destroyCalls++
	t.removedStore = removeStorage
	return t.destroyErr
}

func (t *fakeTorrent) destroyed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroyCalls > 0
}

func testFingerprint(n int) domain.Fingerprint {
	return domain.Fingerprint(fmt.Sprintf("%040x", n))
}

func newReadyTorrent(fp domain.Fingerprint, length int64, fileSpecs ...string) *fakeTorrent {
	ready := make(chan struct{})
	close(ready)
	if len(fileSpecs) == 0 {
		fileSpecs = []string{fmt.Sprintf("movie.mkv:%d", length)}
	}
	return &fakeTorrent{
		fp:     fp,
		name:   "torrent-" + fp.Short(),
		length: length,
		files:  makeFiles(fp, fileSpecs...),
		ready:  ready,
		failed: make(chan error, 1),
	}
}

func newPendingTorrent(fp domain.Fingerprint, length int64, fileSpecs ...string) *fakeTorrent {
	t := newReadyTorrent(fp, length, fileSpecs...)
	t.ready = make(chan struct{})
	return t
}

// ---------- engine ----------

type fakeEngine struct {
	mu       sync.Mutex
	torrents map[domain.Fingerprint]*fakeTorrent
	order    []domain.Fingerprint
	baseURL  string

	addCalls int32
	addErr   error
	lastOpts ports.AddOptions
	// onAdd builds the torrent returned for an admission.
	onAdd func(src domain.Source) *fakeTorrent
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		torrents: make(map[domain.Fingerprint]*fakeTorrent),
		baseURL:  "http://127.0.0.1:40000",
	}
}

func (e *fakeEngine) put(t *fakeTorrent) *fakeTorrent {
	e.mu.Lock()
	defer e.mu.Unlock()
	t.engine = e
	if _, ok := e.torrents[t.fp]; !ok {
		e.order = append(e.order, t.fp)
	}
	e.torrents[t.fp] = t
	return t
}

func (e *fakeEngine) remove(fp domain.Fingerprint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.torrents, fp)
	for i, id := range e.order {
		if id == fp {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

func (e *fakeEngine) has(fp domain.Fingerprint) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.torrents[fp]
	return ok
}

func (e *fakeEngine) Get(fp domain.Fingerprint) (ports.Torrent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.torrents[fp]
	if !ok {
		return nil, false
	}
	return t, true
}

func (e *fakeEngine) Add(ctx context.Context, src domain.Source, opts ports.AddOptions) (ports.Torrent, error) {
	atomic.AddInt32(&e.addCalls, 1)
	e.mu.Lock()
	e.lastOpts = opts
	addErr := e.addErr
	onAdd := e.onAdd
	e.mu.Unlock()
	if addErr != nil {
		return nil, addErr
	}
	if onAdd == nil {
		return nil, fmt.Errorf("no torrent configured")
	}
	return e.put(onAdd(src)), nil
}

func (e *fakeEngine) ListActive() []ports.Torrent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ports.Torrent, 0, len(e.order))
	for _, fp := range e.order {
		out = append(out, e.torrents[fp])
	}
	return out
}

func (e *fakeEngine) BaseURL() string { return e.baseURL }
func (e *fakeEngine) Close() error    { return nil }

func (e *fakeEngine) adds() int {
	return int(atomic.LoadInt32(&e.addCalls))
}
