// Package cache provides a small time-bounded cache for catalog reads.
package cache

import (
	"sync"
	"time"
)

// Listing caches an ordered list of names with time-based expiration.
// The whole list shares one timestamp; writers invalidate it when the
// underlying catalog changes so the next read refills it.
type Listing struct {
	mu      sync.RWMutex
	values  []string
	fetched time.Time
	ttl     time.Duration
}

// NewListing creates an empty, expired Listing with the given TTL.
func NewListing(ttl time.Duration) *Listing {
	return &Listing{ttl: ttl}
}

// Get returns a copy of the cached list and ok=true when the cache holds
// a fresh value. An empty list is a valid cached value.
func (l *Listing) Get() ([]string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.fetched.IsZero() || time.Since(l.fetched) > l.ttl {
		return nil, false
	}
	out := make([]string, len(l.values))
	copy(out, l.values)
	return out, true
}

// Set replaces the cached list and restarts the TTL timer.
func (l *Listing) Set(values []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.values = make([]string, len(values))
	copy(l.values, values)
	l.fetched = time.Now()
}

// Invalidate discards the cached list.
func (l *Listing) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.values = nil
	l.fetched = time.Time{}
}
