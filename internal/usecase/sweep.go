package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"torrentcache/internal/domain"
	"torrentcache/internal/metrics"
)

var errDiskFreeUnsupported = errors.New("disk free unsupported on this platform")

// SweepReport describes one background sweep.
type SweepReport struct {
	FreedBytes    int64
	Evicted       int
	PrunedEntries int
}

// Start launches the periodic soft-eviction sweep. Calling it twice has no
// effect; Close stops it.
func (m *CacheManager) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.runCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.runCancel = cancel
	m.runDone = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		m.Run(ctx)
	}(m.runDone)
}

// Run sweeps on every tick until ctx is cancelled.
func (m *CacheManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep runs soft eviction, drops ledger entries orphaned by failed
// admissions and samples free disk space.
func (m *CacheManager) Sweep() SweepReport {
	m.evictMu.Lock()
	freed, evicted := m.softEvictLocked()
	m.evictMu.Unlock()

	active := make(map[domain.Fingerprint]struct{})
	for _, t := range m.engine.ListActive() {
		active[t.Fingerprint()] = struct{}{}
	}
	pruned := m.ledger.Prune(active, m.cfg.Now().Add(-m.cfg.IdleThreshold))

	m.observe()
	m.sampleDiskFree()

	report := SweepReport{FreedBytes: freed, Evicted: evicted, PrunedEntries: pruned}
	m.logger.Debug("cache sweep finished",
		slog.Int("evicted", report.Evicted),
		slog.Int64("freedBytes", report.FreedBytes),
		slog.Int("prunedEntries", report.PrunedEntries),
		slog.Int("activeTorrents", len(active)),
	)
	return report
}

func (m *CacheManager) sampleDiskFree() {
	if m.cfg.StoragePath == "" {
		return
	}
	free, err := diskFreeBytes(m.cfg.StoragePath)
	if errors.Is(err, errDiskFreeUnsupported) {
		return
	}
	if err != nil {
		m.logger.Debug("disk free check failed",
			slog.String("path", m.cfg.StoragePath),
			slog.String("error", err.Error()),
		)
		return
	}
	metrics.DiskFreeBytes.Set(float64(free))
}

// Close stops the sweep and clears the access ledger. The engine's torrents
// are left alone; closing the engine is the caller's job.
func (m *CacheManager) Close() {
	m.runMu.Lock()
	cancel, done := m.runCancel, m.runDone
	m.runCancel, m.runDone = nil, nil
	m.runMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	m.ledger.Reset()
}
