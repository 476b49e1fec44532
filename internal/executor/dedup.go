package executor

import (
	"sync"
	"time"
)

// Dedup drops trade signals that were already executed within the ttl
// window. Redis pub/sub redelivers on reconnect and upstream engines may
// re-emit a signal, so execution must be idempotent per signal id. Safe for
// concurrent use.
type Dedup struct {
	seen map[string]time.Time
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup with the given suppression window.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate reports whether the signal id was seen within the ttl window.
// A previously unseen (or expired) id is recorded and passes through.
func (d *Dedup) IsDuplicate(signalID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if lastSeen, ok := d.seen[signalID]; ok {
		if now.Sub(lastSeen) < d.ttl {
			return true
		}
	}

	d.seen[signalID] = now
	return false
}

// Cleanup drops expired entries. The executor calls this on its housekeeping
// interval so the map does not grow with every signal ever seen.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
