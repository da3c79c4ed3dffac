package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cakeshop/internal/cart"
	"github.com/example/cakeshop/internal/checkout"
	"github.com/example/cakeshop/internal/config"
	"github.com/example/cakeshop/internal/handlers"
	"github.com/example/cakeshop/internal/marketplace"
	"github.com/example/cakeshop/internal/marketplace/marketplacetest"
	"github.com/example/cakeshop/internal/models"
	"github.com/example/cakeshop/internal/orders"
	"github.com/example/cakeshop/internal/payment"
	"github.com/example/cakeshop/internal/utils"
)

const (
	testSecret   = "routes-secret"
	buyerID      = "6650a1b2c3d4e5f6a7b8c9d0"
	knownSession = "0b6a0c9e-5d4f-4a52-9f0e-2f4a7d1c8b31"
)

type stubJournal struct {
	orderRef  string
	page      utils.Pagination
	sessionID string
}

func (s *stubJournal) ListPaymentReturns(_ context.Context, orderRef string, p utils.Pagination) ([]models.PaymentReturn, int64, error) {
	s.orderRef = orderRef
	s.page = p
	return []models.PaymentReturn{{OrderRef: "ORD-000042", Outcome: "success", Success: true}}, 1, nil
}

func (s *stubJournal) ListCheckoutEvents(_ context.Context, sessionID string) ([]models.CheckoutEvent, error) {
	s.sessionID = sessionID
	if sessionID != knownSession {
		return nil, nil
	}
	return []models.CheckoutEvent{
		{FromState: "initializing", ToState: "ready"},
		{FromState: "ready", ToState: "submitting"},
	}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]int  `json:"meta"`
	Error   struct {
		Kind       string `json:"kind"`
		Message    string `json:"message"`
		NextAction string `json:"next_action"`
		Path       string `json:"path"`
	} `json:"error"`
}

type testApp struct {
	app     *fiber.App
	srv     *marketplacetest.Server
	returns *stubJournal
	buyer   string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	srv := marketplacetest.New(t)
	srv.AddProduct(marketplacetest.Product{ID: "cake-1", Name: "Tiramisu", Price: decimal.NewFromInt(150)})
	srv.SetAddresses(buyerID, []models.Address{
		{ID: "addr-1", FullName: "Lan", Phone: "0901", Street: "9 Hang Bai", City: "Hanoi", IsDefault: true},
	})

	client := marketplace.NewClient(srv.URL, 0)
	hub := cart.NewHub(client, nil)
	cartSync := cart.NewSync(hub)
	handoff := payment.NewHandoff(client, cartSync, nil, nil, payment.Options{})
	returns := &stubJournal{}

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	Register(app, Deps{
		Config:       &config.Config{JWTSecret: testSecret},
		Carts:        hub,
		Orchestrator: checkout.NewOrchestrator(client, hub, cartSync, handoff, nil, checkout.Options{}),
		Handoff:      handoff,
		Tracker:      orders.NewTracker(client, handoff),
		Returns:      returns,
		Events:       returns,
	})

	return &testApp{
		app:     app,
		srv:     srv,
		returns: returns,
		buyer:   signToken(t, jwt.MapClaims{"userId": buyerID, "role": "ROLE_USER"}),
	}
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := utils.GenerateToken(testSecret, claims, time.Hour)
	require.NoError(t, err)
	return signed
}

func (a *testApp) do(t *testing.T, method, target, token, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func decode(t *testing.T, raw json.RawMessage, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestUnauthenticatedRequestAsksToSignIn(t *testing.T) {
	a := newTestApp(t)

	status, env := a.do(t, http.MethodGet, "/api/cart", "", "")

	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)
	assert.Equal(t, "unauthorized", env.Error.Kind)
	assert.Equal(t, "sign_in", env.Error.NextAction)
}

func TestSessionReturnsRoles(t *testing.T) {
	a := newTestApp(t)

	status, env := a.do(t, http.MethodGet, "/api/session", a.buyer, "")
	require.Equal(t, http.StatusOK, status)

	var data struct {
		UserID string   `json:"user_id"`
		Roles  []string `json:"roles"`
	}
	decode(t, env.Data, &data)
	assert.Equal(t, buyerID, data.UserID)
	assert.Equal(t, []string{"buyer"}, data.Roles)
}

func TestCartAddThenBadge(t *testing.T) {
	a := newTestApp(t)

	status, env := a.do(t, http.MethodPost, "/api/cart/items", a.buyer, `{"product_id":"cake-1","quantity":2}`)
	require.Equal(t, http.StatusOK, status)
	var updated models.Cart
	decode(t, env.Data, &updated)
	assert.True(t, decimal.NewFromInt(300).Equal(updated.TotalPrice))
	assert.Equal(t, "Bearer "+a.buyer, a.srv.LastAuthorization())

	status, env = a.do(t, http.MethodGet, "/api/cart/badge", a.buyer, "")
	require.Equal(t, http.StatusOK, status)
	var b struct {
		Count int    `json:"count"`
		Total string `json:"total"`
	}
	decode(t, env.Data, &b)
	assert.Equal(t, 2, b.Count)
	assert.Equal(t, "300", b.Total)
}

func TestCartRejectsInvalidQuantityWithoutRequest(t *testing.T) {
	a := newTestApp(t)

	status, env := a.do(t, http.MethodPut, "/api/cart/items", a.buyer, `{"product_id":"cake-1","quantity":-1}`)

	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "validation", env.Error.Kind)
	assert.Equal(t, "fix_selection", env.Error.NextAction)
	assert.Zero(t, a.srv.Calls(marketplacetest.RouteUpdateItem))
}

func TestCartUnknownProductIsConflict(t *testing.T) {
	a := newTestApp(t)

	status, env := a.do(t, http.MethodPost, "/api/cart/items", a.buyer, `{"product_id":"cake-404","quantity":1}`)

	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "state_conflict", env.Error.Kind)
	assert.Equal(t, "product not found", env.Error.Message)
}

func TestCheckoutCashOnDeliveryEmptiesCart(t *testing.T) {
	a := newTestApp(t)
	status, _ := a.do(t, http.MethodPost, "/api/cart/items", a.buyer, `{"product_id":"cake-1","quantity":1}`)
	require.Equal(t, http.StatusOK, status)

	status, env := a.do(t, http.MethodPost, "/api/checkout", a.buyer, "")
	require.Equal(t, http.StatusCreated, status)
	var view checkout.View
	decode(t, env.Data, &view)
	assert.Equal(t, checkout.StateReady, view.State)
	assert.Equal(t, "addr-1", view.AddressID)

	status, env = a.do(t, http.MethodPatch, "/api/checkout/"+view.ID.String(), a.buyer, `{"payment_code":"cod"}`)
	require.Equal(t, http.StatusOK, status)
	decode(t, env.Data, &view)
	assert.Equal(t, models.PaymentCodeCOD, view.PaymentCode)

	status, env = a.do(t, http.MethodPost, "/api/checkout/"+view.ID.String()+"/submit", a.buyer, "")
	require.Equal(t, http.StatusOK, status)
	decode(t, env.Data, &view)
	assert.Equal(t, checkout.StateTerminal, view.State)
	assert.Equal(t, "/orders", view.Navigate)
	require.NotNil(t, view.Order)
	assert.Equal(t, 1, a.srv.OrderCount(buyerID))

	status, env = a.do(t, http.MethodPost, "/api/checkout/"+view.ID.String()+"/submit", a.buyer, "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "back_to_orders", env.Error.NextAction)

	status, env = a.do(t, http.MethodGet, "/api/cart/badge", a.buyer, "")
	require.Equal(t, http.StatusOK, status)
	var b struct {
		Count int `json:"count"`
	}
	decode(t, env.Data, &b)
	assert.Zero(t, b.Count)
}

func TestCheckoutUnknownSessionIsNotFound(t *testing.T) {
	a := newTestApp(t)

	status, env := a.do(t, http.MethodGet, "/api/checkout/not-a-uuid", a.buyer, "")

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Error.Kind)
}

func seedPendingOrder(a *testApp) {
	a.srv.SeedOrder(models.Order{
		OrderNumber:   "ORD-000042",
		UserID:        buyerID,
		Status:        models.OrderPending,
		PaymentStatus: models.PaymentPending,
		PaymentCode:   models.PaymentCodeVNPay,
		TotalAmount:   decimal.NewFromInt(300),
	})
}

func TestPaymentResultReadsRawQuery(t *testing.T) {
	a := newTestApp(t)
	seedPendingOrder(a)

	status, env := a.do(t, http.MethodGet,
		"/api/payment/result?success=false&orderId=ORD-000042&message=Sai%2520ch%25E1%25BB%25AF%2520k%25C3%25BD", a.buyer, "")
	require.Equal(t, http.StatusOK, status)

	var res payment.Result
	decode(t, env.Data, &res)
	assert.False(t, res.Success)
	assert.Equal(t, payment.OutcomeInvalidSignature, res.Outcome)
	assert.Equal(t, "ORD-000042", res.OrderNumber)
	assert.Equal(t, "Sai chữ ký", res.Message)
	assert.Equal(t, "/orders/ORD-000042/pay", res.Notice.Path)
}

func TestOrdersListCancelAndPay(t *testing.T) {
	a := newTestApp(t)
	seedPendingOrder(a)

	status, env := a.do(t, http.MethodGet, "/api/orders?status=pending", a.buyer, "")
	require.Equal(t, http.StatusOK, status)
	var list orders.List
	decode(t, env.Data, &list)
	require.Len(t, list.Orders, 1)
	assert.True(t, list.Orders[0].CanCancel)
	assert.True(t, list.Orders[0].CanPayNow)

	status, env = a.do(t, http.MethodPost, "/api/orders/ORD-000042/pay", a.buyer, "")
	require.Equal(t, http.StatusOK, status)
	var redirect payment.Redirect
	decode(t, env.Data, &redirect)
	assert.NotEmpty(t, redirect.URL)
	assert.EqualValues(t, 1500, redirect.DelayMS)

	status, env = a.do(t, http.MethodPost, "/api/orders/ORD-000042/cancel", a.buyer, `{"reason":"changed my mind"}`)
	require.Equal(t, http.StatusOK, status)
	var view orders.View
	decode(t, env.Data, &view)
	assert.Equal(t, models.OrderCancelled, view.Order.Status)
	assert.False(t, view.CanCancel)

	status, env = a.do(t, http.MethodPost, "/api/orders/ORD-000042/pay", a.buyer, "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "state_conflict", env.Error.Kind)
}

func TestPaymentReturnsRequireAdmin(t *testing.T) {
	a := newTestApp(t)

	status, env := a.do(t, http.MethodGet, "/api/payment/returns", a.buyer, "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, env.Success)

	admin := signToken(t, jwt.MapClaims{"sub": "admin-1", "roles": []interface{}{"ROLE_ADMIN"}})
	status, env = a.do(t, http.MethodGet, "/api/payment/returns?order=ORD-000042&page=2&limit=5", admin, "")
	require.Equal(t, http.StatusOK, status)

	var returns []models.PaymentReturn
	decode(t, env.Data, &returns)
	require.Len(t, returns, 1)
	assert.Equal(t, "ORD-000042", a.returns.orderRef)
	assert.Equal(t, 5, a.returns.page.Offset)
	assert.Equal(t, 1, env.Meta["total"])
	assert.Equal(t, 2, env.Meta["page"])

	status, env = a.do(t, http.MethodGet, "/api/payment/returns?page=3&limit=9223372036854775807", admin, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, utils.MaxLimit, env.Meta["limit"])
	assert.Equal(t, 2*utils.MaxLimit, a.returns.page.Offset)
}

func TestOrderListHugeLimitDoesNotPanic(t *testing.T) {
	a := newTestApp(t)
	seedPendingOrder(a)

	status, env := a.do(t, http.MethodGet, "/api/orders?page=3&limit=9223372036854775807", a.buyer, "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
}

func TestCheckoutEventsRequireAdmin(t *testing.T) {
	a := newTestApp(t)

	status, _ := a.do(t, http.MethodGet, "/api/checkout/"+knownSession+"/events", a.buyer, "")
	assert.Equal(t, http.StatusForbidden, status)

	admin := signToken(t, jwt.MapClaims{"sub": "admin-1", "roles": []interface{}{"ROLE_ADMIN"}})
	status, env := a.do(t, http.MethodGet, "/api/checkout/"+knownSession+"/events", admin, "")
	require.Equal(t, http.StatusOK, status)

	var events []models.CheckoutEvent
	decode(t, env.Data, &events)
	require.Len(t, events, 2)
	assert.Equal(t, "submitting", events[1].ToState)
	assert.Equal(t, knownSession, a.returns.sessionID)

	status, env = a.do(t, http.MethodGet, "/api/checkout/1d2c3b4a-0000-4000-8000-000000000000/events", admin, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Error.Kind)

	status, _ = a.do(t, http.MethodGet, "/api/checkout/not-a-uuid/events", admin, "")
	assert.Equal(t, http.StatusNotFound, status)
}
