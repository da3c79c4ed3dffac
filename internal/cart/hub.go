package cart

import (
	"sync"
	"time"
)

// DefaultIdleTTL is how long an unobserved store is kept after its last use.
const DefaultIdleTTL = 30 * time.Minute

type hubEntry struct {
	store   *Store
	touched time.Time
}

// Hub owns one Store per user, created on first use. Stores unused for longer
// than the idle TTL are evicted once nothing subscribes to or mutates them; the
// next use reloads from the backend.
type Hub struct {
	api   API
	cache Cache
	now   func() time.Time

	mu        sync.Mutex
	stores    map[string]*hubEntry
	idleTTL   time.Duration
	lastSweep time.Time
}

// NewHub builds a hub. cache may be nil.
func NewHub(api API, cache Cache) *Hub {
	return &Hub{
		api:     api,
		cache:   cache,
		now:     time.Now,
		stores:  map[string]*hubEntry{},
		idleTTL: DefaultIdleTTL,
	}
}

// SetIdleTTL changes the eviction threshold; non-positive values are ignored.
func (h *Hub) SetIdleTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	h.mu.Lock()
	h.idleTTL = ttl
	h.mu.Unlock()
}

// Store returns the user's store.
func (h *Hub) Store(userID string) *Store {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	h.sweepLocked(now)

	entry, ok := h.stores[userID]
	if !ok {
		entry = &hubEntry{store: NewStore(userID, h.api, h.cache)}
		h.stores[userID] = entry
	}
	entry.touched = now
	return entry.store
}

// Len reports how many stores the hub holds.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stores)
}

// sweepLocked runs at most once per half TTL.
func (h *Hub) sweepLocked(now time.Time) {
	if now.Sub(h.lastSweep) < h.idleTTL/2 {
		return
	}
	h.lastSweep = now

	for userID, entry := range h.stores {
		if now.Sub(entry.touched) > h.idleTTL && entry.store.idle() {
			delete(h.stores, userID)
		}
	}
}
