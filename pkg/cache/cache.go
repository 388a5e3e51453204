// Package cache provides the session-scoped result cache mapping call
// fingerprints to previously obtained payloads. A hit is only valid within
// the issuing session; there is no TTL beyond the session lifetime and no
// cross-session sharing.
package cache

import (
	"sort"
	"sync"
	"time"
)

// Entry is one cached call result. Owned exclusively by the cache.
type Entry struct {
	Fingerprint string
	Payload     map[string]any
	CreatedAt   time.Time
	RoundIndex  int
}

// Cache is safe for concurrent use by all calls within a round.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty session cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]Entry),
	}
}

// Get returns the live entry for the fingerprint, if any.
func (c *Cache) Get(fingerprint string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[fingerprint]
	return entry, ok
}

// Put stores a payload under the fingerprint. Idempotent: re-putting the same
// fingerprint overwrites with the latest payload and round index,
// last-write-wins. At most one live entry exists per fingerprint.
func (c *Cache) Put(fingerprint string, payload map[string]any, roundIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fingerprint] = Entry{
		Fingerprint: fingerprint,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
		RoundIndex:  roundIndex,
	}
}

// Clear drops all entries. Called on session reset.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Summary returns the cached fingerprints in deterministic order. Surfaced to
// the planner as a hint of which calls can be answered without a backend trip.
func (c *Cache) Summary() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for fp := range c.entries {
		keys = append(keys, fp)
	}
	sort.Strings(keys)
	return keys
}
