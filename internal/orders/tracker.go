// Package orders presents the buyer's orders with the actions their current status
// allows, and performs cancel and pay-now on request.
package orders

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/example/cakeshop/internal/marketplace"
	"github.com/example/cakeshop/internal/models"
	"github.com/example/cakeshop/internal/notice"
	"github.com/example/cakeshop/internal/payment"
	"github.com/example/cakeshop/internal/utils"
)

// API is the part of the marketplace client the tracker uses.
type API interface {
	ListOrders(ctx context.Context, userID string) ([]models.Order, error)
	FindOrder(ctx context.Context, id string) (*models.Order, error)
	CancelOrder(ctx context.Context, ref, reason string) error
	ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error)
}

// Payer requests a gateway redirect for an existing order.
type Payer interface {
	PayOrder(ctx context.Context, order models.Order) (payment.Redirect, error)
}

// View is an order with the actions offered for it.
type View struct {
	Order         models.Order         `json:"order"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	CanCancel     bool                 `json:"can_cancel"`
	CanPayNow     bool                 `json:"can_pay_now"`
	NextStatuses  []models.OrderStatus `json:"next_statuses"`
}

// Filter narrows the order list.
type Filter struct {
	Status models.OrderStatus
}

// List is one page of order views.
type List struct {
	Orders []View `json:"orders"`
	Total  int    `json:"total"`
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
}

// Tracker reads and acts on orders.
type Tracker struct {
	api   API
	payer Payer
}

// NewTracker builds a tracker.
func NewTracker(api API, payer Payer) *Tracker {
	return &Tracker{api: api, payer: payer}
}

// List returns the user's orders, newest first, filtered and paginated.
func (t *Tracker) List(ctx context.Context, user models.User, filter Filter, page utils.Pagination) (List, error) {
	all, err := t.api.ListOrders(ctx, user.ID)
	if err != nil {
		log.Printf("[Orders] list for user %s failed: %v", user.ID, err)
		return List{}, notice.Transient("We could not load your orders, please try again",
			notice.ActionReload, fmt.Errorf("list orders: %w", err))
	}

	status := filter.Status.Normalize()
	matched := make([]models.Order, 0, len(all))
	for _, order := range all {
		if status == "" || order.Status.Normalize() == status {
			matched = append(matched, order)
		}
	}

	result := List{Orders: []View{}, Total: len(matched), Page: page.Page, Limit: page.Limit}
	start, end := page.Bounds(len(matched))
	if start == end {
		return result, nil
	}

	methods := t.methods(ctx)
	for _, order := range matched[start:end] {
		result.Orders = append(result.Orders, buildView(order, methods))
	}
	return result, nil
}

// Get returns one order by order number or internal id.
func (t *Tracker) Get(ctx context.Context, user models.User, ref string) (View, error) {
	order, err := t.find(ctx, user, ref)
	if err != nil {
		return View{}, err
	}
	return buildView(*order, t.methods(ctx)), nil
}

// Cancel requests cancellation of an order whose known status allows it, keyed
// by order number when there is one, then returns the refreshed order. A refusal
// by the backend surfaces as a state conflict.
func (t *Tracker) Cancel(ctx context.Context, user models.User, ref, reason string) (View, error) {
	order, err := t.find(ctx, user, ref)
	if err != nil {
		return View{}, err
	}
	if !order.Status.CanTransitionTo(models.OrderCancelled) {
		return View{}, notice.Conflict("This order can no longer be cancelled", notice.ActionBackToOrders, nil)
	}

	reason = strings.TrimSpace(reason)
	if err := t.api.CancelOrder(ctx, order.Reference(), reason); err != nil {
		log.Printf("[Orders] cancel %s failed: %v", order.Reference(), marketplace.Describe(err))
		if marketplace.IsClientError(err) {
			msg := marketplace.MessageOf(err)
			if msg == "" {
				msg = "This order could not be cancelled"
			}
			return View{}, notice.Conflict(msg, notice.ActionBackToOrders, fmt.Errorf("cancel order: %w", err))
		}
		return View{}, notice.Transient("We could not cancel your order, please try again",
			notice.ActionReload, fmt.Errorf("cancel order: %w", err))
	}
	log.Printf("[Orders] order %s cancelled by user %s", order.Reference(), user.ID)

	refreshed, err := t.api.FindOrder(ctx, order.ID)
	if err != nil {
		log.Printf("[Orders] refresh after cancelling %s failed: %v", order.Reference(), err)
		now := time.Now().UTC()
		local := *order
		refreshed = &local
		refreshed.Status = models.OrderCancelled
		refreshed.CancelReason = reason
		refreshed.CancelledAt = &now
	}
	return buildView(*refreshed, t.methods(ctx)), nil
}

// PayNow hands an unpaid gateway-routed order back to the gateway. No new order
// is created.
func (t *Tracker) PayNow(ctx context.Context, user models.User, ref string) (payment.Redirect, error) {
	order, err := t.find(ctx, user, ref)
	if err != nil {
		return payment.Redirect{}, err
	}
	view := buildView(*order, t.methods(ctx))
	if !view.CanPayNow {
		return payment.Redirect{}, notice.Conflict("This order cannot be paid online", notice.ActionBackToOrders, nil)
	}
	return t.payer.PayOrder(ctx, view.Order)
}

// find resolves ref: internal ids are fetched directly, order numbers are matched
// against the user's list. An internal id that does not resolve to an owned order
// is matched against the user's list too, so orders of other users are not found.
func (t *Tracker) find(ctx context.Context, user models.User, ref string) (*models.Order, error) {
	parsed := payment.ParseOrderRef(ref)
	if parsed.IsZero() {
		return nil, notice.NotFound("Order not found", nil)
	}

	if parsed.Kind == payment.RefInternalID {
		order, err := t.api.FindOrder(ctx, parsed.Value)
		switch {
		case err == nil:
			if owns(user, order) {
				return order, nil
			}
		case !marketplace.IsNotFound(err):
			return nil, notice.Transient("We could not load this order, please try again",
				notice.ActionReload, fmt.Errorf("find order: %w", err))
		}
	}

	if user.ID == "" {
		return nil, notice.NotFound("Order not found", nil)
	}
	all, err := t.api.ListOrders(ctx, user.ID)
	if err != nil {
		return nil, notice.Transient("We could not load this order, please try again",
			notice.ActionReload, fmt.Errorf("list orders: %w", err))
	}
	for i := range all {
		if strings.EqualFold(all[i].OrderNumber, parsed.Value) || all[i].ID == parsed.Value {
			return &all[i], nil
		}
	}
	return nil, notice.NotFound("Order not found", nil)
}

// owns reports whether user may see order. An order without an owner is never
// owned; find then falls back to the user's own list.
func owns(user models.User, order *models.Order) bool {
	if user.Roles.Has(models.RoleAdmin) {
		return true
	}
	return order.UserID != "" && order.UserID == user.ID
}

func (t *Tracker) methods(ctx context.Context) []models.PaymentMethod {
	methods, err := t.api.ListPaymentMethods(ctx)
	if err != nil {
		log.Printf("[Orders] payment methods unavailable, resolving by code: %v", err)
		return nil
	}
	return methods
}

// resolveMethod matches the order's payment method against the reference list by
// id or code. An unmatched order falls back to its own code.
func resolveMethod(order models.Order, methods []models.PaymentMethod) models.PaymentMethod {
	var id, code string
	if order.PaymentMethod != nil {
		id = order.PaymentMethod.ID
	}
	code = order.PaymentMethodCode()

	for _, m := range methods {
		switch {
		case id != "" && m.ID == id:
			return m
		case code != "" && models.NormalizePaymentCode(m.Code) == code:
			return m
		case code != "" && m.ID != "" && strings.EqualFold(m.ID, code):
			return m
		}
	}
	if order.PaymentMethod != nil && order.PaymentMethod.Code != "" {
		return *order.PaymentMethod
	}
	return models.PaymentMethod{Code: code}
}

func buildView(order models.Order, methods []models.PaymentMethod) View {
	method := resolveMethod(order, methods)
	status := order.Status.Normalize()
	return View{
		Order:         order,
		PaymentMethod: method,
		CanCancel:     status.Cancellable(),
		CanPayNow: order.PaymentStatus.CanTransitionTo(models.PaymentPaid) &&
			method.GatewayRouted() &&
			status != models.OrderCancelled && status != models.OrderRefunded,
		NextStatuses: status.Next(),
	}
}
