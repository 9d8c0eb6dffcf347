package game

import (
	"sync"
	"time"
)

// Dedup is a short-lived cache of (identity, action, time bucket) keys used
// to drop repeated requests, such as a join fired twice by a reconnecting
// client.
type Dedup struct {
	mu        sync.Mutex
	now       Clock
	window    time.Duration
	seen      map[dedupKey]time.Time
	lastSweep time.Time
}

type dedupKey struct {
	identity string
	action   string
	bucket   int64
}

func NewDedup(window time.Duration, clock Clock) *Dedup {
	if window <= 0 {
		window = 2 * time.Second
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Dedup{
		now:       clock,
		window:    window,
		seen:      make(map[dedupKey]time.Time),
		lastSweep: clock(),
	}
}

// Claim reports whether this is the first (identity, action) in the current
// bucket. Later calls in the same bucket return false.
func (d *Dedup) Claim(identity, action string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.Sub(d.lastSweep) >= d.window {
		d.sweep(now)
	}
	key := dedupKey{identity: identity, action: action, bucket: now.UnixNano() / int64(d.window)}
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = now
	return true
}

func (d *Dedup) sweep(now time.Time) {
	for k, at := range d.seen {
		if now.Sub(at) > 2*d.window {
			delete(d.seen, k)
		}
	}
	d.lastSweep = now
}

func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
