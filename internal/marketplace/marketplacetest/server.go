// Package marketplacetest runs an in-memory marketplace backend on httptest for
// tests of the storefront pipeline.
package marketplacetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/cakeshop/internal/models"
)

// Route names used to count calls, inject failures and hold requests.
const (
	RouteGetCart        = "get-cart"
	RouteAddItem        = "add-item"
	RouteUpdateItem     = "update-item"
	RouteRemoveItem     = "remove-item"
	RouteClearCart      = "clear-cart"
	RouteGetVariant     = "get-variant"
	RouteListAddresses  = "list-addresses"
	RoutePaymentMethods = "payment-methods"
	RouteCreateOrder    = "create-order"
	RouteFindOrder      = "find-order"
	RouteListOrders     = "list-orders"
	RouteCancelOrder    = "cancel-order"
	RouteVNPayCreate    = "vnpay-create"
	RouteCODConfirm     = "cod-confirm"
)

// Product is a catalog entry used to price add-item calls.
type Product struct {
	ID    string
	Name  string
	Price decimal.Decimal
	Image string
}

// Server is a fake marketplace backed by maps.
type Server struct {
	*httptest.Server

	mu              sync.Mutex
	paymentURL      string
	omitPaymentURL  bool
	partialVariants bool
	carts           map[string]*models.Cart
	products        map[string]Product
	variants        map[string]models.Variant
	addresses       map[string][]models.Address
	orders          map[string]*models.Order
	methods         []models.PaymentMethod
	failures        map[string]int
	holds           map[string]chan struct{}
	calls           map[string]int
	lastAuth        string
	seq             int
}

// New starts a fake marketplace that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		paymentURL: "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		carts:      map[string]*models.Cart{},
		products:   map[string]Product{},
		variants:   map[string]models.Variant{},
		addresses:  map[string][]models.Address{},
		orders:     map[string]*models.Order{},
		failures:   map[string]int{},
		holds:      map[string]chan struct{}{},
		calls:      map[string]int{},
		methods: []models.PaymentMethod{
			{Code: models.PaymentCodeCOD, Name: "Cash on delivery", IsActive: true},
			{Code: models.PaymentCodeVNPay, Name: "VNPAY", IsActive: true},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cart/user/{userId}", s.wrap(RouteGetCart, s.getCart))
	mux.HandleFunc("POST /cart/add-item", s.wrap(RouteAddItem, s.addItem))
	mux.HandleFunc("PUT /cart/update-item", s.wrap(RouteUpdateItem, s.updateItem))
	mux.HandleFunc("DELETE /cart/remove-items/{productId}", s.wrap(RouteRemoveItem, s.removeItem))
	mux.HandleFunc("DELETE /cart/clear/{userId}", s.wrap(RouteClearCart, s.clearCart))
	mux.HandleFunc("GET /variant/find/{id}", s.wrap(RouteGetVariant, s.getVariant))
	mux.HandleFunc("GET /address/user/{userId}", s.wrap(RouteListAddresses, s.listAddresses))
	mux.HandleFunc("GET /payment-method/active", s.wrap(RoutePaymentMethods, s.listMethods))
	mux.HandleFunc("POST /order/create-from-cart", s.wrap(RouteCreateOrder, s.createOrder))
	mux.HandleFunc("GET /order/find/{id}", s.wrap(RouteFindOrder, s.findOrder))
	mux.HandleFunc("GET /order/user/{userId}", s.wrap(RouteListOrders, s.listOrders))
	mux.HandleFunc("PUT /order/cancel/{ref}", s.wrap(RouteCancelOrder, s.cancelOrder))
	mux.HandleFunc("POST /payment/vnpay/create", s.wrap(RouteVNPayCreate, s.vnpayCreate))
	mux.HandleFunc("POST /payment/cod/confirm", s.wrap(RouteCODConfirm, s.codConfirm))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// OmitPaymentURL makes the gateway endpoint answer without a URL.
func (s *Server) OmitPaymentURL(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitPaymentURL = omit
}

// PartialVariants makes cart responses carry variants as bare ids with no price.
func (s *Server) PartialVariants(partial bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partialVariants = partial
}

// Calls returns how many requests hit route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Fail makes route answer with status until Recover is called.
func (s *Server) Fail(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = status
}

// Recover removes an injected failure.
func (s *Server) Recover(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, route)
}

// Hold blocks requests to route until the returned release func is called.
func (s *Server) Hold(route string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[route] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.holds, route)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// LastAuthorization returns the Authorization header of the latest request.
func (s *Server) LastAuthorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

// AddProduct registers a catalog product.
func (s *Server) AddProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// AddVariant registers a product variant.
func (s *Server) AddVariant(v models.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[v.ID] = v
}

// SetProductPrice edits the catalog price of a product and its variants.
func (s *Server) SetProductPrice(productID string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		p.Price = price
		s.products[productID] = p
	}
	for _, cart := range s.carts {
		for i := range cart.Items {
			if cart.Items[i].ProductID == productID {
				cart.Items[i].Price = price
			}
		}
		cart.Recalculate()
	}
}

// SetAddresses replaces the user's saved addresses.
func (s *Server) SetAddresses(userID string, addresses []models.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[userID] = addresses
}

// EditAddress changes a saved address in place.
func (s *Server) EditAddress(userID string, addr models.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.addresses[userID] {
		if a.ID == addr.ID {
			s.addresses[userID][i] = addr
		}
	}
}

// SetPaymentMethods replaces the active payment methods.
func (s *Server) SetPaymentMethods(methods []models.PaymentMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods = methods
}

// SeedCart replaces the user's cart.
func (s *Server) SeedCart(userID string, items ...models.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := models.EmptyCart(userID)
	cart.Items = append(cart.Items, items...)
	cart.Recalculate()
	s.carts[userID] = &cart
}

// Cart returns a copy of the user's server-side cart.
func (s *Server) Cart(userID string) models.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cart, ok := s.carts[userID]; ok {
		return cart.Clone()
	}
	return models.EmptyCart(userID)
}

// SeedOrder stores an order and returns its id.
func (s *Server) SeedOrder(order models.Order) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID == "" {
		order.ID = s.nextIDLocked()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	s.orders[order.ID] = &order
	return order.ID
}

// Order returns a copy of the stored order.
func (s *Server) Order(id string) (models.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.lookupOrderLocked(id)
	if !ok {
		return models.Order{}, false
	}
	return *order, true
}

// OrderCount returns how many orders exist for the user.
func (s *Server) OrderCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, order := range s.orders {
		if order.UserID == userID {
			count++
		}
	}
	return count
}

// MarkPaid simulates the gateway's settlement callback for an order.
func (s *Server) MarkPaid(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.lookupOrderLocked(id)
	if !ok {
		return
	}
	order.PaymentStatus = models.PaymentPaid
	order.Status = models.OrderConfirmed
	if cart, ok := s.carts[order.UserID]; ok {
		cleared := models.EmptyCart(cart.UserID)
		*cart = cleared
	}
}

func (s *Server) wrap(route string, h func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[route]++
		s.lastAuth = r.Header.Get("Authorization")
		status, failing := s.failures[route]
		hold := s.holds[route]
		s.mu.Unlock()

		if hold != nil {
			<-hold
		}
		if failing {
			writeJSON(w, status, map[string]any{"success": false, "message": "injected failure"})
			return
		}
		h(w, r)
	}
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCartLocked(w, s.cartLocked(r.PathValue("userId")))
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"userId"`
		ProductID string `json:"productId"`
		VariantID string `json:"variantId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid add-item request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[req.ProductID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "product not found"})
		return
	}

	line := models.LineItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		Price:       product.Price,
		Quantity:    req.Quantity,
		Image:       product.Image,
	}
	if req.VariantID != "" {
		variant, ok := s.variants[req.VariantID]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "variant not found"})
			return
		}
		line.VariantID = variant.ID
		line.VariantName = variant.Name
		line.Price = variant.Price
	}

	cart := s.cartLocked(req.UserID)
	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == line.ProductID && cart.Items[i].VariantID == line.VariantID {
			cart.Items[i].Quantity += line.Quantity
			merged = true
		}
	}
	if !merged {
		cart.Items = append(cart.Items, line)
	}
	cart.Recalculate()
	s.writeCartLocked(w, cart)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"userId"`
		ProductID string `json:"productId"`
		VariantID string `json:"variantId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid update-item request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.cartLocked(req.UserID)
	items := cart.Items[:0]
	found := false
	for _, item := range cart.Items {
		if item.ProductID == req.ProductID && (req.VariantID == "" || item.VariantID == req.VariantID) {
			found = true
			if req.Quantity <= 0 {
				continue
			}
			item.Quantity = req.Quantity
		}
		items = append(items, item)
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "item not in cart"})
		return
	}
	cart.Items = items
	cart.Recalculate()
	s.writeCartLocked(w, cart)
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	productID := r.PathValue("productId")

	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.cartLocked(userID)
	items := cart.Items[:0]
	for _, item := range cart.Items {
		if item.ProductID != productID {
			items = append(items, item)
		}
	}
	cart.Items = items
	cart.Recalculate()
	s.writeCartLocked(w, cart)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	s.mu.Lock()
	defer s.mu.Unlock()

	cart := models.EmptyCart(userID)
	s.carts[userID] = &cart
	s.writeCartLocked(w, &cart)
}

func (s *Server) getVariant(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	variant, ok := s.variants[r.PathValue("id")]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "variant not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": variant})
}

func (s *Server) listAddresses(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	addresses := append([]models.Address(nil), s.addresses[r.PathValue("userId")]...)
	s.mu.Unlock()
	if addresses == nil {
		addresses = []models.Address{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": addresses})
}

func (s *Server) listMethods(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	methods := append([]models.PaymentMethod(nil), s.methods...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, methods)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID          string                 `json:"userId"`
		PaymentCode     string                 `json:"paymentCode"`
		ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.PaymentCode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid order request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.cartLocked(req.UserID)
	if cart.IsEmpty() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "cart is empty"})
		return
	}

	order := &models.Order{
		ID:              s.nextIDLocked(),
		UserID:          req.UserID,
		Status:          models.OrderPending,
		PaymentStatus:   models.PaymentPending,
		PaymentCode:     models.NormalizePaymentCode(req.PaymentCode),
		ShippingAddress: req.ShippingAddress,
		ShippingFee:     decimal.Zero,
		Discount:        decimal.Zero,
		CreatedAt:       time.Now().UTC(),
	}
	order.OrderNumber = fmt.Sprintf("ORD-%06d", s.seq)
	for _, item := range cart.Items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			Quantity:    item.Quantity,
			UnitPrice:   item.Price,
			LineTotal:   item.LineTotal(),
		})
	}
	order.Subtotal = order.ItemsTotal()
	order.TotalAmount = order.Subtotal.Add(order.ShippingFee).Sub(order.Discount)
	s.orders[order.ID] = order

	if order.PaymentCode == models.PaymentCodeCOD {
		cleared := models.EmptyCart(req.UserID)
		s.carts[req.UserID] = &cleared
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": order})
}

func (s *Server) findOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "order not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": order})
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	s.mu.Lock()
	defer s.mu.Unlock()
	orders := make([]models.Order, 0)
	for _, order := range s.orders {
		if order.UserID == userID {
			orders = append(orders, *order)
		}
	}
	for i := 1; i < len(orders); i++ {
		for j := i; j > 0 && orders[j].CreatedAt.After(orders[j-1].CreatedAt); j-- {
			orders[j], orders[j-1] = orders[j-1], orders[j]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": orders})
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.lookupOrderLocked(r.PathValue("ref"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "order not found"})
		return
	}
	if !order.Status.Cancellable() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "order cannot be cancelled"})
		return
	}

	now := time.Now().UTC()
	order.Status = models.OrderCancelled
	order.CancelReason = req.Reason
	order.CancelledAt = &now
	if order.PaymentStatus == models.PaymentPaid {
		order.PaymentStatus = models.PaymentRefunded
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "order cancelled"})
}

func (s *Server) vnpayCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"orderId"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[req.OrderID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "order not found"})
		return
	}
	if s.omitPaymentURL {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{}})
		return
	}
	url := fmt.Sprintf("%s?vnp_TxnRef=%s", s.paymentURL, order.OrderNumber)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"paymentUrl": url}})
}

func (s *Server) codConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"orderId"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[req.OrderID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "order not found"})
		return
	}
	order.Status = models.OrderConfirmed
	cleared := models.EmptyCart(order.UserID)
	s.carts[order.UserID] = &cleared
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "order confirmed"})
}

func (s *Server) cartLocked(userID string) *models.Cart {
	cart, ok := s.carts[userID]
	if !ok {
		empty := models.EmptyCart(userID)
		cart = &empty
		s.carts[userID] = cart
	}
	return cart
}

func (s *Server) writeCartLocked(w http.ResponseWriter, cart *models.Cart) {
	if !s.partialVariants {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": cart})
		return
	}

	items := make([]map[string]any, 0, len(cart.Items))
	for _, item := range cart.Items {
		entry := map[string]any{
			"productId":   item.ProductID,
			"productName": item.ProductName,
			"quantity":    item.Quantity,
			"price":       item.Price,
		}
		if item.VariantID != "" {
			entry["variantId"] = item.VariantID
			entry["variant"] = item.VariantID
			entry["price"] = 0
		}
		items = append(items, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"userId":     cart.UserID,
			"items":      items,
			"totalPrice": 0,
		},
	})
}

func (s *Server) lookupOrderLocked(ref string) (*models.Order, bool) {
	if order, ok := s.orders[ref]; ok {
		return order, true
	}
	for _, order := range s.orders {
		if strings.EqualFold(order.OrderNumber, ref) {
			return order, true
		}
	}
	return nil, false
}

func (s *Server) nextIDLocked() string {
	s.seq++
	return fmt.Sprintf("%024x", 0xabc000+s.seq)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
