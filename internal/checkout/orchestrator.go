// Package checkout turns the shared cart into an order and drives it to a payment
// outcome, one session per checkout page.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/cakeshop/internal/cart"
	"github.com/example/cakeshop/internal/marketplace"
	"github.com/example/cakeshop/internal/models"
	"github.com/example/cakeshop/internal/notice"
	"github.com/example/cakeshop/internal/payment"
)

// ErrSessionNotFound is returned for unknown, expired or foreign sessions.
var ErrSessionNotFound = errors.New("checkout session not found")

// API is the part of the marketplace client the orchestrator uses.
type API interface {
	ListAddresses(ctx context.Context, userID string) ([]models.Address, error)
	ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error)
	CreateOrderFromCart(ctx context.Context, req marketplace.CreateOrderRequest) (*models.Order, error)
	ConfirmCOD(ctx context.Context, orderID string) error
}

// Handoff requests a gateway payment URL for an order.
type Handoff interface {
	PayOrder(ctx context.Context, order models.Order) (payment.Redirect, error)
}

// Journal persists session transitions.
type Journal interface {
	RecordCheckoutEvent(ctx context.Context, ev *models.CheckoutEvent) error
}

// fallbackMethods is offered when the payment-method reference list cannot be read.
var fallbackMethods = []models.PaymentMethod{
	{Code: models.PaymentCodeVNPay, Name: "VNPAY", IsActive: true},
	{Code: models.PaymentCodeCOD, Name: "Cash on delivery", IsActive: true},
}

// Options tunes the orchestrator.
type Options struct {
	SessionTTL time.Duration
	OrdersPath string
}

// Orchestrator owns the checkout sessions.
type Orchestrator struct {
	api        API
	carts      *cart.Hub
	sync       *cart.Sync
	handoff    Handoff
	journal    Journal
	ttl        time.Duration
	ordersPath string
	now        func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewOrchestrator builds an orchestrator. journal may be nil.
func NewOrchestrator(api API, carts *cart.Hub, cartSync *cart.Sync, handoff Handoff, journal Journal, opts Options) *Orchestrator {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.OrdersPath == "" {
		opts.OrdersPath = "/orders"
	}
	return &Orchestrator{
		api:        api,
		carts:      carts,
		sync:       cartSync,
		handoff:    handoff,
		journal:    journal,
		ttl:        opts.SessionTTL,
		ordersPath: opts.OrdersPath,
		now:        time.Now,
		sessions:   map[uuid.UUID]*Session{},
	}
}

// Start opens a session: the cart is reloaded bypassing every cache, the saved
// addresses and active payment methods are read, and defaults are selected.
func (o *Orchestrator) Start(ctx context.Context, user models.User) (View, error) {
	o.sweep()

	s := newSession(user.ID, o.now())
	o.mu.Lock()
	o.sessions[s.ID] = s
	o.mu.Unlock()
	o.record(ctx, &models.CheckoutEvent{SessionID: s.ID, UserID: s.UserID, ToState: string(StateLoading)})

	current := o.carts.Store(user.ID).Load(ctx, true)

	addresses, err := o.api.ListAddresses(ctx, user.ID)
	if err != nil {
		o.drop(s.ID)
		log.Printf("[Checkout] list addresses for user %s failed: %v", user.ID, err)
		return View{}, notice.Transient("We could not load your addresses, please try again",
			notice.ActionRetryCheckout, fmt.Errorf("list addresses: %w", err))
	}

	methods, err := o.api.ListPaymentMethods(ctx)
	if err != nil {
		log.Printf("[Checkout] list payment methods failed, using built-in list: %v", err)
		methods = fallbackMethods
	}
	active := make([]models.PaymentMethod, 0, len(methods))
	for _, m := range methods {
		if m.IsActive {
			active = append(active, m)
		}
	}

	s.mu.Lock()
	s.addresses = addresses
	s.methods = active
	s.addressID = defaultAddress(addresses)
	s.paymentCode = defaultPaymentCode(active)
	ev := s.moveLocked(StateReady, nil)
	s.mu.Unlock()
	o.record(ctx, &ev)

	log.Printf("[Checkout] session %s started for user %s (%d items)", s.ID, user.ID, current.ItemCount())
	return s.view(current), nil
}

// Get returns the session view.
func (o *Orchestrator) Get(ctx context.Context, user models.User, id uuid.UUID) (View, error) {
	s, err := o.lookup(user.ID, id)
	if err != nil {
		return View{}, err
	}
	return s.view(o.currentCart(ctx, s.UserID)), nil
}

// Select changes the shipping address and/or payment method of a Ready session.
// Empty arguments leave the selection unchanged.
func (o *Orchestrator) Select(ctx context.Context, user models.User, id uuid.UUID, addressID, paymentCode string) (View, error) {
	s, err := o.lookup(user.ID, id)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	if err := readyLocked(s); err != nil {
		s.mu.Unlock()
		return View{}, err
	}
	if addressID != "" {
		if _, ok := s.addressLocked(addressID); !ok {
			s.mu.Unlock()
			return View{}, notice.Validation("Choose one of your saved addresses")
		}
		s.addressID = addressID
	}
	if paymentCode != "" {
		m, ok := s.methodLocked(paymentCode)
		if !ok {
			s.mu.Unlock()
			return View{}, notice.Validation("This payment method is not available")
		}
		s.paymentCode = models.NormalizePaymentCode(m.Code)
	}
	s.notice = nil
	s.mu.Unlock()

	return s.view(o.currentCart(ctx, s.UserID)), nil
}

// Submit places the order and drives it to a payment outcome. Concurrent submits
// of a session with the same payment code share one execution. An empty
// paymentCode submits the current selection.
func (o *Orchestrator) Submit(ctx context.Context, user models.User, id uuid.UUID, paymentCode string) (View, error) {
	s, err := o.lookup(user.ID, id)
	if err != nil {
		return View{}, err
	}

	code := models.NormalizePaymentCode(paymentCode)
	if code == "" {
		s.mu.Lock()
		code = s.paymentCode
		s.mu.Unlock()
	}

	v, err, shared := s.submits.Do(code, func() (interface{}, error) {
		return o.submit(ctx, s, code)
	})
	if shared {
		log.Printf("[Checkout] session %s: duplicate submit joined the one in flight", s.ID)
	}
	view, _ := v.(View)
	return view, err
}

func (o *Orchestrator) submit(ctx context.Context, s *Session, code string) (View, error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	current, _ := o.carts.Store(s.UserID).Snapshot()

	s.mu.Lock()
	if err := readyLocked(s); err != nil {
		s.mu.Unlock()
		return s.view(current), err
	}
	address, method, err := s.validateLocked(current, code)
	if err != nil {
		s.mu.Unlock()
		return s.view(current), err
	}
	paymentCode := models.NormalizePaymentCode(method.Code)
	s.paymentCode = paymentCode
	s.notice = nil
	s.redirect = nil
	var existing *models.Order
	if s.order != nil && s.order.PaymentMethodCode() == paymentCode {
		copied := *s.order
		existing = &copied
	}
	ev := s.moveLocked(StateCreatingOrder, nil)
	s.mu.Unlock()
	o.record(ctx, &ev)

	var order models.Order
	if existing != nil {
		order = *existing
		log.Printf("[Checkout] session %s reusing order %s", s.ID, order.Reference())
	} else {
		created, err := o.api.CreateOrderFromCart(ctx, marketplace.CreateOrderRequest{
			UserID:          s.UserID,
			PaymentCode:     paymentCode,
			ShippingAddress: address.Snapshot(),
		})
		if err != nil {
			return o.fail(ctx, s, notice.Transient("We could not place your order, please try again",
				notice.ActionRetryCheckout, fmt.Errorf("create order: %w", err)))
		}
		order = *created
		log.Printf("[Checkout] session %s created order %s (%s)", s.ID, order.Reference(), paymentCode)
	}

	s.mu.Lock()
	s.order = &order
	ev = s.moveLocked(StateAwaitingPaymentOutcome, nil)
	s.mu.Unlock()
	o.record(ctx, &ev)

	if method.GatewayRouted() {
		return o.redirect(ctx, s, order)
	}
	return o.confirm(ctx, s, order)
}

func (o *Orchestrator) redirect(ctx context.Context, s *Session, order models.Order) (View, error) {
	redirect, err := o.handoff.PayOrder(ctx, order)
	if err != nil {
		return o.fail(ctx, s, err)
	}

	s.mu.Lock()
	s.redirect = &redirect
	n := redirect.Notice
	s.notice = &n
	redirecting := s.moveLocked(StateRedirecting, nil)
	terminal := s.moveLocked(StateTerminal, nil)
	s.mu.Unlock()
	o.record(ctx, &redirecting)
	o.record(ctx, &terminal)

	return s.view(o.currentCart(ctx, s.UserID)), nil
}

func (o *Orchestrator) confirm(ctx context.Context, s *Session, order models.Order) (View, error) {
	if err := o.api.ConfirmCOD(ctx, order.ID); err != nil {
		return o.fail(ctx, s, notice.Transient("We could not confirm your order, please try again",
			notice.ActionRetryCheckout, fmt.Errorf("confirm cod: %w", err)))
	}

	emptied := o.sync.ClearAfterPurchase(ctx, s.UserID)

	s.mu.Lock()
	n := notice.Success(fmt.Sprintf("Order %s placed, you will pay on delivery", order.Reference()))
	n.NextAction = notice.ActionBackToOrders
	n.Path = o.ordersPath
	s.notice = &n
	s.navigate = o.ordersPath
	confirmed := s.moveLocked(StateConfirmed, nil)
	terminal := s.moveLocked(StateTerminal, nil)
	s.mu.Unlock()
	o.record(ctx, &confirmed)
	o.record(ctx, &terminal)

	return s.view(emptied), nil
}

// fail returns the session to Ready with its selections and order handle intact.
func (o *Orchestrator) fail(ctx context.Context, s *Session, err error) (View, error) {
	classified := notice.From(err, notice.ActionRetryCheckout)
	log.Printf("[Checkout] session %s failed: %v", s.ID, err)

	s.mu.Lock()
	n := classified.Notice()
	s.notice = &n
	ev := s.moveLocked(StateReady, err)
	s.mu.Unlock()
	o.record(ctx, &ev)

	current, _ := o.carts.Store(s.UserID).Snapshot()
	return s.view(current), classified
}

func (s *Session) validateLocked(current models.Cart, code string) (models.Address, models.PaymentMethod, error) {
	if current.IsEmpty() {
		return models.Address{}, models.PaymentMethod{}, notice.Validation("Your cart is empty")
	}
	address, ok := s.addressLocked(s.addressID)
	if !ok {
		return models.Address{}, models.PaymentMethod{}, notice.Validation("Choose a shipping address")
	}
	if code == "" {
		return models.Address{}, models.PaymentMethod{}, notice.Validation("Choose a payment method")
	}
	method, ok := s.methodLocked(code)
	if !ok {
		return models.Address{}, models.PaymentMethod{}, notice.Validation("This payment method is not available")
	}
	return address, method, nil
}

func readyLocked(s *Session) error {
	switch s.state {
	case StateReady:
		return nil
	case StateRedirecting, StateConfirmed, StateTerminal:
		return notice.Conflict("This checkout is already complete", notice.ActionBackToOrders, nil)
	}
	return notice.Conflict("This checkout is busy, please wait", notice.ActionReload, nil)
}

func (o *Orchestrator) currentCart(ctx context.Context, userID string) models.Cart {
	store := o.carts.Store(userID)
	if snap, loaded := store.Snapshot(); loaded {
		return snap
	}
	return store.Load(ctx, false)
}

func (o *Orchestrator) lookup(userID string, id uuid.UUID) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sessions[id]
	if !ok {
		return nil, notice.NotFound("This checkout has expired, please start again", ErrSessionNotFound)
	}

	now := o.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.touched) > o.ttl {
		delete(o.sessions, id)
		return nil, notice.NotFound("This checkout has expired, please start again", ErrSessionNotFound)
	}
	if s.UserID != userID {
		return nil, notice.NotFound("This checkout has expired, please start again", ErrSessionNotFound)
	}
	s.touched = now
	return s, nil
}

func (o *Orchestrator) drop(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sessions, id)
}

// sweep evicts idle sessions.
func (o *Orchestrator) sweep() {
	now := o.now()

	o.mu.Lock()
	defer o.mu.Unlock()
	for id, s := range o.sessions {
		s.mu.Lock()
		idle := now.Sub(s.touched) > o.ttl
		s.mu.Unlock()
		if idle {
			delete(o.sessions, id)
		}
	}
}

func (o *Orchestrator) record(ctx context.Context, ev *models.CheckoutEvent) {
	if o.journal == nil {
		return
	}
	if err := o.journal.RecordCheckoutEvent(ctx, ev); err != nil {
		log.Printf("[Checkout] journal write failed for session %s: %v", ev.SessionID, err)
	}
}
