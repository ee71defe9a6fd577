package alert

import (
	"sync"
	"time"
)

// DefaultCooldown is the minimum gap between two dwell alerts for one plate.
const DefaultCooldown = 10 * time.Second

// Throttle remembers when each identity was last alerted. It has its own lock
// so alert checks never wait on store writes.
type Throttle struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[string]time.Time
}

// NewThrottle returns a throttle with the given cooldown.
func NewThrottle(cooldown time.Duration) *Throttle {
	return &Throttle{cooldown: cooldown, last: make(map[string]time.Time)}
}

// Allow reports whether key may alert at now and, if so, records now as its
// last alert time. An alert exactly one cooldown after the previous one is
// allowed.
func (t *Throttle) Allow(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[key]; ok && now.Sub(last) < t.cooldown {
		return false
	}
	t.last[key] = now
	return true
}

// Prune forgets keys last alerted before cutoff and returns how many were
// removed.
func (t *Throttle) Prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, last := range t.last {
		if last.Before(cutoff) {
			delete(t.last, key)
			removed++
		}
	}
	return removed
}

// Rename moves the entry for from to to, following a canonical text rewrite.
// The more recent time wins when both exist.
func (t *Throttle) Rename(from, to string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.last[from]
	if !ok {
		return
	}
	delete(t.last, from)
	if cur, exists := t.last[to]; !exists || last.After(cur) {
		t.last[to] = last
	}
}

// Len returns the number of tracked keys.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
