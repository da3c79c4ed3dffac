package cart

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cakeshop/internal/marketplace/marketplacetest"
	"github.com/example/cakeshop/internal/models"
)

func seedTwoCakes(t *testing.T, hub *Hub) *Store {
	t.Helper()
	store := hub.Store(testUser)
	ctx := context.Background()
	_, err := store.Mutate(ctx, AddItem{ProductID: "cake-1", Quantity: 1})
	require.NoError(t, err)
	_, err = store.Mutate(ctx, AddItem{ProductID: "cake-2", Quantity: 2})
	require.NoError(t, err)
	return store
}

func TestClearAfterPurchase_KeepsEmptyCartWhenReloadFails(t *testing.T) {
	hub, srv, _ := newTestHub(t)
	store := seedTwoCakes(t, hub)
	srv.Fail(marketplacetest.RouteGetCart, http.StatusBadGateway)

	cart := NewSync(hub).ClearAfterPurchase(context.Background(), testUser)

	assert.True(t, cart.IsEmpty())
	assert.True(t, cart.TotalPrice.IsZero())
	snap, _ := store.Snapshot()
	assert.Equal(t, 0, snap.ItemCount())

	// A later cached read must not resurrect the purchased items.
	again := store.Load(context.Background(), false)
	assert.True(t, again.IsEmpty())
}

func TestClearAfterPurchase_ReconcilesWithBackend(t *testing.T) {
	hub, srv, _ := newTestHub(t)
	seedTwoCakes(t, hub)
	srv.SeedCart(testUser, models.LineItem{ProductID: "cake-1", ProductName: "Tiramisu", Price: decimal.NewFromInt(150), Quantity: 1})

	cart := NewSync(hub).ClearAfterPurchase(context.Background(), testUser)

	require.Len(t, cart.Items, 1)
	assert.True(t, decimal.NewFromInt(150).Equal(cart.TotalPrice))
	assert.Equal(t, 1, srv.Calls(marketplacetest.RouteGetCart))
}

func TestReloadAfterReturn_IgnoresCachedSnapshot(t *testing.T) {
	hub, srv, _ := newTestHub(t)
	seedTwoCakes(t, hub)
	srv.SeedCart(testUser)

	cart, err := NewSync(hub).ReloadAfterReturn(context.Background(), testUser)
	require.NoError(t, err)

	assert.True(t, cart.IsEmpty())
	assert.Equal(t, 1, srv.Calls(marketplacetest.RouteGetCart))
}

func TestReloadAfterReturn_FailureReportsError(t *testing.T) {
	hub, srv, _ := newTestHub(t)
	store := seedTwoCakes(t, hub)
	srv.Fail(marketplacetest.RouteGetCart, http.StatusInternalServerError)

	_, err := NewSync(hub).ReloadAfterReturn(context.Background(), testUser)
	require.Error(t, err)

	snap, _ := store.Snapshot()
	assert.Equal(t, 3, snap.ItemCount())
}

func TestReloadInBackground_FailureKeepsState(t *testing.T) {
	hub, srv, _ := newTestHub(t)
	store := seedTwoCakes(t, hub)
	before, _ := store.Snapshot()
	srv.Fail(marketplacetest.RouteGetCart, http.StatusInternalServerError)

	ctx, cancel := context.WithCancel(context.Background())
	done := NewSync(hub).ReloadInBackground(ctx, testUser)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background reload did not finish")
	}
	after, _ := store.Snapshot()
	assert.Equal(t, before.ItemCount(), after.ItemCount())
	assert.True(t, before.TotalPrice.Equal(after.TotalPrice))
}

func TestReloadInBackground_PublishesServerCart(t *testing.T) {
	hub, srv, _ := newTestHub(t)
	store := seedTwoCakes(t, hub)
	srv.SeedCart(testUser)

	updates, stop := store.Subscribe()
	defer stop()
	<-updates

	<-NewSync(hub).ReloadInBackground(context.Background(), testUser)

	select {
	case got := <-updates:
		assert.True(t, got.IsEmpty())
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestPush_AdoptsForeignCart(t *testing.T) {
	hub, _, _ := newTestHub(t)
	cart := NewSync(hub).Push(testUser, models.Cart{
		Items: []models.LineItem{{ProductID: "cake-2", Price: decimal.RequireFromString("99.5"), Quantity: 2}},
	})

	assert.True(t, decimal.NewFromInt(199).Equal(cart.TotalPrice))
	snap, loaded := hub.Store(testUser).Snapshot()
	assert.True(t, loaded)
	assert.Equal(t, 2, snap.ItemCount())
}
