package checkout

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/example/cakeshop/internal/models"
	"github.com/example/cakeshop/internal/notice"
	"github.com/example/cakeshop/internal/payment"
)

// State is a checkout session state.
type State string

const (
	StateLoading                State = "loading"
	StateReady                  State = "ready"
	StateCreatingOrder          State = "creating_order"
	StateAwaitingPaymentOutcome State = "awaiting_payment_outcome"
	StateRedirecting            State = "redirecting"
	StateConfirmed              State = "confirmed"
	StateTerminal               State = "terminal"
)

var transitions = map[State][]State{
	StateLoading:                {StateReady},
	StateReady:                  {StateCreatingOrder},
	StateCreatingOrder:          {StateAwaitingPaymentOutcome, StateReady},
	StateAwaitingPaymentOutcome: {StateRedirecting, StateConfirmed, StateReady},
	StateRedirecting:            {StateTerminal},
	StateConfirmed:              {StateTerminal},
}

// CanTransitionTo reports whether next directly follows s.
func (s State) CanTransitionTo(next State) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Session is one buyer's checkout. Fields are guarded by mu; submits are
// collapsed per payment code by submits and serialized by submitMu.
type Session struct {
	ID     uuid.UUID
	UserID string

	submits  singleflight.Group
	submitMu sync.Mutex

	mu          sync.Mutex
	state       State
	addresses   []models.Address
	methods     []models.PaymentMethod
	addressID   string
	paymentCode string
	order       *models.Order
	redirect    *payment.Redirect
	navigate    string
	notice      *notice.Notice
	touched     time.Time
}

// View is the checkout page model. Cart comes from the shared cart store, never
// from a copy held by the session.
type View struct {
	ID             uuid.UUID              `json:"id"`
	State          State                  `json:"state"`
	Cart           models.Cart            `json:"cart"`
	Addresses      []models.Address       `json:"addresses"`
	PaymentMethods []models.PaymentMethod `json:"payment_methods"`
	AddressID      string                 `json:"address_id"`
	PaymentCode    string                 `json:"payment_code"`
	Order          *models.Order          `json:"order,omitempty"`
	Redirect       *payment.Redirect      `json:"redirect,omitempty"`
	Navigate       string                 `json:"navigate,omitempty"`
	Notice         *notice.Notice         `json:"notice,omitempty"`
}

func newSession(userID string, now time.Time) *Session {
	return &Session{
		ID:      uuid.New(),
		UserID:  userID,
		state:   StateLoading,
		touched: now,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) view(cart models.Cart) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:             s.ID,
		State:          s.state,
		Cart:           cart,
		Addresses:      append([]models.Address(nil), s.addresses...),
		PaymentMethods: append([]models.PaymentMethod(nil), s.methods...),
		AddressID:      s.addressID,
		PaymentCode:    s.paymentCode,
		Navigate:       s.navigate,
	}
	if s.order != nil {
		order := *s.order
		v.Order = &order
	}
	if s.redirect != nil {
		redirect := *s.redirect
		v.Redirect = &redirect
	}
	if s.notice != nil {
		n := *s.notice
		v.Notice = &n
	}
	return v
}

// moveLocked changes state and returns the journal entry for the move.
func (s *Session) moveLocked(to State, failure error) models.CheckoutEvent {
	ev := models.CheckoutEvent{
		SessionID:   s.ID,
		UserID:      s.UserID,
		FromState:   string(s.state),
		ToState:     string(to),
		PaymentCode: s.paymentCode,
	}
	if s.order != nil {
		ev.OrderID = s.order.ID
		ev.OrderNumber = s.order.OrderNumber
	}
	if failure != nil {
		ev.Error = failure.Error()
	}
	if !s.state.CanTransitionTo(to) {
		log.Printf("[Checkout] session %s: unexpected move %s -> %s", s.ID, s.state, to)
	}
	s.state = to
	return ev
}

func (s *Session) addressLocked(id string) (models.Address, bool) {
	for _, a := range s.addresses {
		if a.ID == id {
			return a, true
		}
	}
	return models.Address{}, false
}

func (s *Session) methodLocked(code string) (models.PaymentMethod, bool) {
	code = models.NormalizePaymentCode(code)
	for _, m := range s.methods {
		if models.NormalizePaymentCode(m.Code) == code {
			return m, true
		}
	}
	return models.PaymentMethod{}, false
}

// defaultAddress picks the active address, else the first one.
func defaultAddress(addresses []models.Address) string {
	for _, a := range addresses {
		if a.Preferred() {
			return a.ID
		}
	}
	if len(addresses) > 0 {
		return addresses[0].ID
	}
	return ""
}

// defaultPaymentCode prefers a gateway-routed method.
func defaultPaymentCode(methods []models.PaymentMethod) string {
	for _, m := range methods {
		if m.GatewayRouted() {
			return models.NormalizePaymentCode(m.Code)
		}
	}
	if len(methods) > 0 {
		return models.NormalizePaymentCode(methods[0].Code)
	}
	return ""
}
