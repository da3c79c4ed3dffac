package cart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cakeshop/internal/marketplace"
	"github.com/example/cakeshop/internal/marketplace/marketplacetest"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClockedHub(t *testing.T) (*Hub, *fakeClock) {
	srv := marketplacetest.New(t)
	hub := NewHub(marketplace.NewClient(srv.URL, 0), nil)
	clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	hub.now = clock.Now
	hub.SetIdleTTL(10 * time.Minute)
	return hub, clock
}

func TestHub_SameStorePerUser(t *testing.T) {
	hub, _ := newClockedHub(t)

	assert.Same(t, hub.Store("u1"), hub.Store("u1"))
	assert.NotSame(t, hub.Store("u1"), hub.Store("u2"))
	assert.Equal(t, 2, hub.Len())
}

func TestHub_EvictsIdleStores(t *testing.T) {
	hub, clock := newClockedHub(t)
	first := hub.Store("u1")
	hub.Store("u2")

	clock.Advance(6 * time.Minute)
	hub.Store("u2")
	assert.Equal(t, 2, hub.Len())

	clock.Advance(6 * time.Minute)
	hub.Store("u2")
	assert.Equal(t, 1, hub.Len())

	assert.NotSame(t, first, hub.Store("u1"))
}

func TestHub_KeepsSubscribedStores(t *testing.T) {
	hub, clock := newClockedHub(t)
	_, stop := hub.Store("watcher").Subscribe()

	clock.Advance(time.Hour)
	hub.Store("other")
	assert.Equal(t, 2, hub.Len())

	stop()
	clock.Advance(time.Hour)
	hub.Store("other")
	assert.Equal(t, 1, hub.Len())
}

func TestHub_KeepsStoreWithMutationInFlight(t *testing.T) {
	hub, clock := newClockedHub(t)
	store := hub.Store("busy")
	store.mutateMu.Lock()

	clock.Advance(time.Hour)
	hub.Store("other")
	assert.Equal(t, 2, hub.Len())

	store.mutateMu.Unlock()
	clock.Advance(time.Hour)
	hub.Store("other")
	assert.Equal(t, 1, hub.Len())
}

func TestHub_EvictedStoreReloadsFromBackend(t *testing.T) {
	hub, srv, _ := newTestHub(t)
	clock := &fakeClock{now: time.Now()}
	hub.now = clock.Now
	seedTwoCakes(t, hub)

	clock.Advance(2 * DefaultIdleTTL)
	hub.Store("someone-else")

	fresh := hub.Store(testUser)
	_, loaded := fresh.Snapshot()
	assert.False(t, loaded)

	cart := fresh.Load(context.Background(), true)
	require.Equal(t, 3, cart.ItemCount())
	assert.GreaterOrEqual(t, srv.Calls(marketplacetest.RouteGetCart), 1)
}
