package usecase

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSweepEvictsIdleSeededAndPrunesOrphans(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	cache := newTestCache(engine, clock, 0)

	seeded := newReadyTorrent(testFingerprint(1), 40)
	seeded.downloaded, seeded.ratio = 40, 2
	engine.put(seeded)
	cache.Touch(seeded.fp)
	// Orphan left behind by an admission that never reached the engine.
	cache.Touch(testFingerprint(7))

	clock.Advance(6 * time.Minute)
	fresh := testFingerprint(8)
	cache.Touch(fresh)

	report := cache.Sweep()
	if report.Evicted != 1 || report.FreedBytes != 40 {
		t.Fatalf("report = %+v", report)
	}
	if report.PrunedEntries != 1 {
		t.Fatalf("PrunedEntries = %d, want 1", report.PrunedEntries)
	}
	if !seeded.destroyed() {
		t.Fatalf("idle seeded torrent survived the sweep")
	}
	if _, ok := cache.ledger.LastAccess(fresh); !ok {
		t.Fatalf("recent orphan entry must survive pruning")
	}
}

func TestSweepLeavesActiveTorrentsAlone(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	cache := newTestCache(engine, clock, 0)

	active := newReadyTorrent(testFingerprint(1), 40)
	active.downloaded, active.ratio = 40, 3
	engine.put(active)
	cache.Touch(active.fp)
	clock.Advance(time.Minute)

	if report := cache.Sweep(); report.Evicted != 0 {
		t.Fatalf("report = %+v", report)
	}
	if active.destroyed() {
		t.Fatalf("recently accessed torrent evicted")
	}
}

func TestStartCloseResetsLedger(t *testing.T) {
	engine := newFakeEngine()
	cache := NewCacheManager(engine, CacheConfig{SweepInterval: 5 * time.Millisecond}, nil)

	cache.Start()
	cache.Start()
	cache.Touch(testFingerprint(1))

	done := make(chan struct{})
	go func() {
		cache.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close did not stop the sweep loop")
	}
	if cache.ledger.Len() != 0 {
		t.Fatalf("ledger not reset on close")
	}
	// A closed manager can be started again.
	cache.Start()
	cache.Close()
}

func TestRunSweepsOnTick(t *testing.T) {
	engine := newFakeEngine()
	seeded := newReadyTorrent(testFingerprint(1), 10)
	seeded.downloaded, seeded.ratio = 10, 1
	engine.put(seeded)
	cache := NewCacheManager(engine, CacheConfig{SweepInterval: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cache.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !seeded.destroyed() {
		if time.Now().After(deadline) {
			t.Fatalf("background sweep never evicted the unaccessed seeded torrent")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDiskFreeBytes(t *testing.T) {
	free, err := diskFreeBytes(t.TempDir())
	if errors.Is(err, errDiskFreeUnsupported) {
		t.Skip("disk free not supported on this platform")
	}
	if err != nil {
		t.Fatalf("diskFreeBytes: %v", err)
	}
	if free <= 0 {
		t.Fatalf("free = %d, want > 0", free)
	}
	if _, err := diskFreeBytes("/nonexistent/torrentcache"); err == nil {
		t.Fatalf("expected error for missing path")
	}
}
