package abuse

import (
	"sync"
	"time"
)

type guardEntry struct {
	fails       []time.Time
	lockedUntil time.Time
}

// Guard locks out keys after repeated failed privilege elevation attempts.
type Guard struct {
	mu          sync.Mutex
	window      time.Duration
	maxAttempts int
	lockout     time.Duration
	entries     map[string]*guardEntry
}

// NewGuard builds a guard allowing maxAttempts failures per window before locking for lockout.
func NewGuard(window time.Duration, maxAttempts int, lockout time.Duration) *Guard {
	return &Guard{
		window:      window,
		maxAttempts: maxAttempts,
		lockout:     lockout,
		entries:     make(map[string]*guardEntry),
	}
}

// Locked reports whether key is currently locked out.
func (g *Guard) Locked(key string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	return ok && now.Before(e.lockedUntil)
}

// Fail records a failed attempt and reports whether the key is now locked.
func (g *Guard) Fail(key string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	if !ok {
		e = &guardEntry{}
		g.entries[key] = e
	}

	cutoff := now.Add(-g.window)
	kept := e.fails[:0]
	for _, ts := range e.fails {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)

	if len(kept) >= g.maxAttempts {
		e.lockedUntil = now.Add(g.lockout)
		e.fails = nil
		return true
	}
	e.fails = kept
	return false
}

// Reset forgets a key after a successful attempt.
func (g *Guard) Reset(key string) {
	g.mu.Lock()
	delete(g.entries, key)
	g.mu.Unlock()
}

// Prune drops entries with no lock and no failure inside the window.
func (g *Guard) Prune(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := now.Add(-g.window)
	removed := 0
	for key, e := range g.entries {
		if now.Before(e.lockedUntil) {
			continue
		}
		if n := len(e.fails); n > 0 && !e.fails[n-1].Before(cutoff) {
			continue
		}
		delete(g.entries, key)
		removed++
	}
	return removed
}
