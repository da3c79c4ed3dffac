package marketplace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cakeshop/internal/marketplace/marketplacetest"
	"github.com/example/cakeshop/internal/models"
)

func newTestClient(t *testing.T) (*Client, *marketplacetest.Server) {
	srv := marketplacetest.New(t)
	return NewClient(srv.URL, 0), srv
}

func TestGetCart_ForwardsBearerToken(t *testing.T) {
	client, srv := newTestClient(t)
	ctx := WithToken(context.Background(), "tok-123")

	cart, err := client.GetCart(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, "user-1", cart.UserID)
	assert.Empty(t, cart.Items)
	assert.Equal(t, "Bearer tok-123", srv.LastAuthorization())
}

func TestGetCart_FreshSendsCacheBypass(t *testing.T) {
	var gotQuery, gotCache string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("fresh")
		gotCache = r.Header.Get("Cache-Control")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"userId":"u","items":[],"totalPrice":0}`))
	}))
	defer backend.Close()

	client := NewClient(backend.URL, 0)
	_, err := client.GetCart(context.Background(), "u", true)
	require.NoError(t, err)
	assert.Equal(t, "true", gotQuery)
	assert.Equal(t, "no-cache", gotCache)
}

func TestAddItem_ReturnsServerCart(t *testing.T) {
	client, srv := newTestClient(t)
	srv.AddProduct(marketplacetest.Product{ID: "p1", Name: "Matcha roll", Price: decimal.NewFromInt(120)})

	cart, err := client.AddItem(context.Background(), AddItemRequest{UserID: "u1", ProductID: "p1", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.True(t, decimal.NewFromInt(240).Equal(cart.TotalPrice))
}

func TestCall_APIErrorCarriesMessage(t *testing.T) {
	client, srv := newTestClient(t)
	srv.Fail(marketplacetest.RouteGetCart, http.StatusBadGateway)

	_, err := client.GetCart(context.Background(), "u1", false)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.Equal(t, "injected failure", MessageOf(err))
	assert.False(t, IsClientError(err))
}

func TestFindOrder_NotFound(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.FindOrder(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestDecodeData_BarePayloadAndEnvelope(t *testing.T) {
	var methods []models.PaymentMethod
	require.NoError(t, decodeData([]byte(`[{"code":"COD","isActive":true}]`), &methods))
	require.Len(t, methods, 1)
	assert.Equal(t, "COD", methods[0].Code)

	var order models.Order
	body := []byte(`{"success":true,"data":{"_id":"65f0c1a2b3c4d5e6f7a8b9c0","orderNumber":"ORD-9","paymentMethod":"vnpay","status":"PENDING"}}`)
	require.NoError(t, decodeData(body, &order))
	assert.Equal(t, "65f0c1a2b3c4d5e6f7a8b9c0", order.ID)
	assert.Equal(t, "VNPAY", order.PaymentMethodCode())
}

func TestDecodeData_PartialVariant(t *testing.T) {
	var cart models.Cart
	body := []byte(`{"data":{"userId":"u","items":[{"productId":"p","variant":"v1","quantity":1,"price":0}]}}`)
	require.NoError(t, decodeData(body, &cart))
	require.Len(t, cart.Items, 1)
	require.NotNil(t, cart.Items[0].Variant)
	assert.True(t, cart.Items[0].Variant.Partial())
	assert.Equal(t, "v1", cart.Items[0].Variant.ID)
}

func TestCreateVNPayPayment_MissingURL(t *testing.T) {
	client, srv := newTestClient(t)
	id := srv.SeedOrder(models.Order{OrderNumber: "ORD-1", UserID: "u1", Status: models.OrderPending})
	srv.OmitPaymentURL(true)

	url, err := client.CreateVNPayPayment(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestCancelOrder_ByOrderNumber(t *testing.T) {
	client, srv := newTestClient(t)
	id := srv.SeedOrder(models.Order{OrderNumber: "ORD-7", UserID: "u1", Status: models.OrderConfirmed})

	require.NoError(t, client.CancelOrder(context.Background(), "ORD-7", "changed my mind"))

	order, ok := srv.Order(id)
	require.True(t, ok)
	assert.Equal(t, models.OrderCancelled, order.Status)
	assert.Equal(t, "changed my mind", order.CancelReason)
	assert.NotNil(t, order.CancelledAt)
}
