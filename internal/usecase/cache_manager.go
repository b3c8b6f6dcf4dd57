package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"torrentcache/internal/domain"
	"torrentcache/internal/domain/ports"
	"torrentcache/internal/metrics"
)

const (
	DefaultAdmissionTimeout = 60 * time.Second
	DefaultIdleThreshold    = 5 * time.Minute
	DefaultMinRatio         = 1.0
	DefaultSweepInterval    = 5 * time.Minute
)

const (
	reasonSoft             = "soft"
	reasonForced           = "forced"
	reasonManual           = "manual"
	reasonAdmissionTimeout = "admission_timeout"
	reasonAdmissionFailed  = "admission_failed"
	reasonStorageExhausted = "storage_exhausted"
)

type CacheConfig struct {
	// StoragePath is where per-torrent data directories are created.
	StoragePath string
	// BudgetBytes caps the sum of torrent lengths; 0 disables the check.
	BudgetBytes      int64
	Trackers         []string
	AdmissionTimeout time.Duration
	IdleThreshold    time.Duration
	MinRatio         float64
	SweepInterval    time.Duration
	Now              func() time.Time
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.AdmissionTimeout <= 0 {
		c.AdmissionTimeout = DefaultAdmissionTimeout
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = DefaultIdleThreshold
	}
	if c.MinRatio <= 0 {
		c.MinRatio = DefaultMinRatio
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// CacheManager owns admission, access bookkeeping and eviction for the
// engine's active torrent set.
type CacheManager struct {
	engine ports.Engine
	cfg    CacheConfig
	logger *slog.Logger
	ledger *AccessLedger

	admissions singleflight.Group
	// evictMu serialises budget checks and sweeps so two passes never pick
	// the same victims.
	evictMu sync.Mutex

	runMu     sync.Mutex
	runCancel context.CancelFunc
	runDone   chan struct{}
}

func NewCacheManager(engine ports.Engine, cfg CacheConfig, logger *slog.Logger) *CacheManager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	metrics.StorageBudgetBytes.Set(float64(cfg.BudgetBytes))
	return &CacheManager{
		engine: engine,
		cfg:    cfg,
		logger: logger,
		ledger: NewAccessLedger(cfg.Now),
	}
}

// Touch refreshes the idle clock of fp.
func (m *CacheManager) Touch(fp domain.Fingerprint) {
	m.ledger.Touch(fp)
}

func (m *CacheManager) BudgetBytes() int64 {
	return m.cfg.BudgetBytes
}

// AcquireFile returns the file to stream for fp, admitting the torrent when
// the engine does not hold it yet and enforcing the storage budget before
// the file is handed out.
func (m *CacheManager) AcquireFile(ctx context.Context, src domain.Source, fp domain.Fingerprint, hint domain.EpisodeHint) (ports.TorrentFile, error) {
	m.ledger.Touch(fp)

	t, err := m.admit(ctx, src, fp)
	if err != nil {
		return nil, err
	}

	if err := m.enforceBudget(fp); err != nil {
		return nil, err
	}

	file, ok := SelectFile(t.Files(), hint)
	if !ok {
		return nil, fmt.Errorf("%w in %q", ErrNoCompatibleFile, t.Name())
	}
	m.logger.Info("file acquired",
		slog.String("fingerprint", fp.String()),
		slog.String("file", file.Name()),
		slog.Int64("length", file.Length()),
	)
	return file, nil
}

func (m *CacheManager) admit(ctx context.Context, src domain.Source, fp domain.Fingerprint) (ports.Torrent, error) {
	if t, ok := m.engine.Get(fp); ok && isReady(t) {
		metrics.AdmissionsTotal.WithLabelValues("hit").Inc()
		return t, nil
	}

	// Admission outlives the caller that triggered it: other requests for
	// the same fingerprint share the result.
	admitCtx := context.WithoutCancel(ctx)
	ch := m.admissions.DoChan(string(fp), func() (interface{}, error) {
		if t, ok := m.engine.Get(fp); ok {
			return m.awaitReady(t, false)
		}
		if err := src.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
		}
		t, err := m.engine.Add(admitCtx, src, ports.AddOptions{
			StoragePath: m.cfg.StoragePath,
			Trackers:    m.cfg.Trackers,
		})
		if err != nil {
			metrics.AdmissionsTotal.WithLabelValues("error").Inc()
			return nil, wrapEngine(err)
		}
		return m.awaitReady(t, true)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(ports.Torrent), nil
	}
}

// awaitReady blocks until metadata arrives, the engine reports a failure, or
// the admission timeout fires. A torrent added by this call is destroyed on
// timeout; failures always destroy.
func (m *CacheManager) awaitReady(t ports.Torrent, added bool) (ports.Torrent, error) {
	start := time.Now()
	timer := time.NewTimer(m.cfg.AdmissionTimeout)
	defer timer.Stop()

	select {
	case <-t.Ready():
		metrics.AdmissionDuration.Observe(time.Since(start).Seconds())
		if added {
			metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()
			m.logger.Info("torrent admitted",
				slog.String("fingerprint", t.Fingerprint().String()),
				slog.String("name", t.Name()),
				slog.Int64("length", t.Length()),
			)
		} else {
			metrics.AdmissionsTotal.WithLabelValues("hit").Inc()
		}
		m.observe()
		return t, nil
	case err := <-t.Failed():
		metrics.AdmissionsTotal.WithLabelValues("error").Inc()
		_ = m.destroy(t, reasonAdmissionFailed)
		return nil, wrapEngine(err)
	case <-timer.C:
		metrics.AdmissionsTotal.WithLabelValues("timeout").Inc()
		if added {
			_ = m.destroy(t, reasonAdmissionTimeout)
		}
		m.logger.Warn("torrent admission timed out",
			slog.String("fingerprint", t.Fingerprint().String()),
			slog.Duration("timeout", m.cfg.AdmissionTimeout),
		)
		return nil, fmt.Errorf("%w after %s", ErrAdmissionTimeout, m.cfg.AdmissionTimeout)
	}
}

// enforceBudget brings the active set back under budget, first with soft
// eviction and then by evicting oldest-accessed torrents. keep is never a
// forced-eviction victim; if the budget cannot be met without it, keep is
// destroyed as well and ErrStorageExhausted is returned.
func (m *CacheManager) enforceBudget(keep domain.Fingerprint) error {
	if m.cfg.BudgetBytes <= 0 {
		return nil
	}
	m.evictMu.Lock()
	defer m.evictMu.Unlock()
	defer m.observe()

	used := m.StorageUsed()
	if used <= m.cfg.BudgetBytes {
		return nil
	}
	m.logger.Info("storage budget exceeded",
		slog.Int64("usedBytes", used),
		slog.Int64("budgetBytes", m.cfg.BudgetBytes),
	)

	m.softEvictLocked()
	used = m.StorageUsed()
	if used <= m.cfg.BudgetBytes {
		return nil
	}

	need := used - m.cfg.BudgetBytes
	freed, ok := m.forceEvictLocked(need, keep)
	if ok {
		return nil
	}

	if t, found := m.engine.Get(keep); found {
		_ = m.destroy(t, reasonStorageExhausted)
	}
	m.logger.Error("storage budget cannot be met",
		slog.String("fingerprint", keep.String()),
		slog.Int64("neededBytes", need),
		slog.Int64("freedBytes", freed),
		slog.Int64("budgetBytes", m.cfg.BudgetBytes),
	)
	return fmt.Errorf("%w: needed %d bytes, freed %d", ErrStorageExhausted, need, freed)
}

// SoftEvict destroys every torrent that has downloaded data, reached the
// minimum ratio and sat idle past the threshold. It returns the bytes freed
// and the number of torrents destroyed.
func (m *CacheManager) SoftEvict() (int64, int) {
	m.evictMu.Lock()
	defer m.evictMu.Unlock()
	defer m.observe()
	return m.softEvictLocked()
}

func (m *CacheManager) softEvictLocked() (int64, int) {
	now := m.cfg.Now()
	var freed int64
	evicted := 0
	for _, t := range m.engine.ListActive() {
		if !m.softEvictable(t, now) {
			continue
		}
		length := t.Length()
		if err := m.destroy(t, reasonSoft); err != nil {
			continue
		}
		freed += length
		evicted++
	}
	if evicted > 0 {
		m.logger.Info("soft eviction",
			slog.Int("evicted", evicted),
			slog.Int64("freedBytes", freed),
		)
	}
	return freed, evicted
}

func (m *CacheManager) softEvictable(t ports.Torrent, now time.Time) bool {
	if t.DownloadedBytes() <= 0 {
		return false
	}
	if t.Ratio() < m.cfg.MinRatio {
		return false
	}
	last, ok := m.ledger.LastAccess(t.Fingerprint())
	if !ok {
		return true
	}
	return now.Sub(last) > m.cfg.IdleThreshold
}

// ForceEvict destroys torrents oldest access first until need bytes are
// freed. Torrents missing from the ledger count as never accessed; torrents
// still waiting for metadata are skipped.
func (m *CacheManager) ForceEvict(need int64) (int64, bool) {
	m.evictMu.Lock()
	defer m.evictMu.Unlock()
	defer m.observe()
	return m.forceEvictLocked(need, "")
}

func (m *CacheManager) forceEvictLocked(need int64, keep domain.Fingerprint) (int64, bool) {
	type victim struct {
		torrent ports.Torrent
		last    time.Time
	}
	active := m.engine.ListActive()
	victims := make([]victim, 0, len(active))
	for _, t := range active {
		// Torrents without metadata hold no data yet; destroying one frees
		// nothing and fails its pending admission.
		if t.Fingerprint() == keep || t.Length() <= 0 {
			continue
		}
		last, _ := m.ledger.LastAccess(t.Fingerprint())
		victims = append(victims, victim{torrent: t, last: last})
	}
	sort.SliceStable(victims, func(i, j int) bool {
		if victims[i].last.Equal(victims[j].last) {
			return victims[i].torrent.Fingerprint() < victims[j].torrent.Fingerprint()
		}
		return victims[i].last.Before(victims[j].last)
	})

	var freed int64
	for _, v := range victims {
		if freed >= need {
			break
		}
		length := v.torrent.Length()
		if err := m.destroy(v.torrent, reasonForced); err != nil {
			continue
		}
		freed += length
	}
	if freed > 0 {
		m.logger.Info("forced eviction",
			slog.Int64("neededBytes", need),
			slog.Int64("freedBytes", freed),
		)
	}
	return freed, freed >= need
}

// Evict destroys a single torrent on request.
func (m *CacheManager) Evict(ctx context.Context, fp domain.Fingerprint) error {
	m.evictMu.Lock()
	defer m.evictMu.Unlock()
	defer m.observe()

	t, ok := m.engine.Get(fp)
	if !ok {
		return domain.ErrNotFound
	}
	if err := m.destroy(t, reasonManual); err != nil {
		return wrapEngine(err)
	}
	return nil
}

// destroy removes t and its storage. Failures are logged and reported but
// the ledger entry is dropped either way, since the engine no longer lists
// the torrent once destruction has started.
func (m *CacheManager) destroy(t ports.Torrent, reason string) error {
	fp := t.Fingerprint()
	err := t.Destroy(true)
	m.ledger.Forget(fp)
	if err != nil {
		metrics.EvictionErrorsTotal.Inc()
		m.logger.Warn("torrent destroy failed",
			slog.String("fingerprint", fp.String()),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return err
	}
	metrics.EvictionsTotal.WithLabelValues(reason).Inc()
	m.logger.Debug("torrent destroyed",
		slog.String("fingerprint", fp.String()),
		slog.String("reason", reason),
	)
	return nil
}

// StorageUsed is the sum of lengths over the engine's active set.
func (m *CacheManager) StorageUsed() int64 {
	var total int64
	for _, t := range m.engine.ListActive() {
		total += t.Length()
	}
	return total
}

func (m *CacheManager) Usage() domain.CacheUsage {
	active := m.engine.ListActive()
	var total int64
	for _, t := range active {
		total += t.Length()
	}
	return domain.CacheUsage{
		UsedBytes:   total,
		BudgetBytes: m.cfg.BudgetBytes,
		Torrents:    len(active),
	}
}

// Snapshot lists the active set, most recently accessed first.
func (m *CacheManager) Snapshot() []domain.CachedTorrent {
	active := m.engine.ListActive()
	out := make([]domain.CachedTorrent, 0, len(active))
	for _, t := range active {
		item := domain.CachedTorrent{
			Fingerprint:     t.Fingerprint(),
			Name:            t.Name(),
			Length:          t.Length(),
			DownloadedBytes: t.DownloadedBytes(),
			Ratio:           t.Ratio(),
			Ready:           isReady(t),
		}
		if last, ok := m.ledger.LastAccess(t.Fingerprint()); ok {
			at := last.UTC()
			item.LastAccess = &at
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastAccess, out[j].LastAccess
		switch {
		case a == nil && b == nil:
			return out[i].Fingerprint < out[j].Fingerprint
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return out
}

func (m *CacheManager) observe() {
	usage := m.Usage()
	metrics.ActiveTorrents.Set(float64(usage.Torrents))
	metrics.StorageUsedBytes.Set(float64(usage.UsedBytes))
}

func isReady(t ports.Torrent) bool {
	select {
	case <-t.Ready():
		return true
	default:
		return false
	}
}
