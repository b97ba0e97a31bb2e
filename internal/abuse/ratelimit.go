// Package abuse holds the in-memory anti-abuse services: the sliding-window
// rate limiter, the spam scorer and the admin brute-force guard. State here is
// intentionally not persisted.
package abuse

import (
	"sync"
	"time"
)

// Limiter is a sliding-window rate limiter keyed by network address and by stable identity.
type Limiter struct {
	mu             sync.Mutex
	window         time.Duration
	maxPerAddr     int
	maxPerIdentity int
	hits           map[string][]time.Time
}

// NewLimiter builds a limiter. A non-positive threshold disables that key space.
func NewLimiter(window time.Duration, maxPerAddr, maxPerIdentity int) *Limiter {
	return &Limiter{
		window:         window,
		maxPerAddr:     maxPerAddr,
		maxPerIdentity: maxPerIdentity,
		hits:           make(map[string][]time.Time),
	}
}

// Blocked records one event for addr and identity and reports whether either key is over its threshold.
// Both keys are recorded even when the first one trips.
func (l *Limiter) Blocked(addr, identity string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	blocked := false
	if addr != "" && l.maxPerAddr > 0 && l.hit("addr:"+addr, l.maxPerAddr, now) {
		blocked = true
	}
	if identity != "" && l.maxPerIdentity > 0 && l.hit("id:"+identity, l.maxPerIdentity, now) {
		blocked = true
	}
	return blocked
}

// hit appends now to the key's window and reports whether the post-insert count exceeds limit.
// The stored list never grows beyond limit+1 entries.
func (l *Limiter) hit(key string, limit int, now time.Time) bool {
	cutoff := now.Add(-l.window)
	recent := l.hits[key]

	kept := recent[:0]
	for _, ts := range recent {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	if len(kept) > limit+1 {
		kept = kept[len(kept)-(limit+1):]
	}
	l.hits[key] = kept

	return len(kept) > limit
}

// Prune drops keys whose whole window has expired.
func (l *Limiter) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	removed := 0
	for key, recent := range l.hits {
		if len(recent) == 0 || recent[len(recent)-1].Before(cutoff) {
			delete(l.hits, key)
			removed++
		}
	}
	return removed
}
