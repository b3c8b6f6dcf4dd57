package usecase

import (
	"sync"
	"time"

	"torrentcache/internal/domain"
)

// AccessLedger records when each fingerprint was last requested. It is
// owned by one CacheManager and lives as long as the process; nothing is
// persisted. Concurrent touches are last-write-wins.
type AccessLedger struct {
	mu      sync.RWMutex
	entries map[domain.Fingerprint]time.Time
	now     func() time.Time
}

func NewAccessLedger(now func() time.Time) *AccessLedger {
	if now == nil {
		now = time.Now
	}
	return &AccessLedger{
		entries: make(map[domain.Fingerprint]time.Time),
		now:     now,
	}
}

func (l *AccessLedger) Touch(fp domain.Fingerprint) {
	if fp == "" {
		return
	}
	at := l.now()
	l.mu.Lock()
	l.entries[fp] = at
	l.mu.Unlock()
}

func (l *AccessLedger) LastAccess(fp domain.Fingerprint) (time.Time, bool) {
	l.mu.RLock()
	at, ok := l.entries[fp]
	l.mu.RUnlock()
	return at, ok
}

func (l *AccessLedger) Forget(fp domain.Fingerprint) {
	l.mu.Lock()
	delete(l.entries, fp)
	l.mu.Unlock()
}

// Prune drops entries that belong to no active torrent and were last touched
// before cutoff. Recent entries survive so that an admission in flight keeps
// its timestamp.
func (l *AccessLedger) Prune(active map[domain.Fingerprint]struct{}, cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for fp, at := range l.entries {
		if _, ok := active[fp]; ok {
			continue
		}
		if at.Before(cutoff) {
			delete(l.entries, fp)
			removed++
		}
	}
	return removed
}

func (l *AccessLedger) Reset() {
	l.mu.Lock()
	clear(l.entries)
	l.mu.Unlock()
}

func (l *AccessLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
