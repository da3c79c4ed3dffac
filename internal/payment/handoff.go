// Package payment bridges a checkout across the full-page redirect to the payment
// gateway and back. Nothing in memory survives the round trip: the two halves are
// joined only by the order identifier in the return URL.
package payment

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/example/cakeshop/internal/cart"
	"github.com/example/cakeshop/internal/models"
	"github.com/example/cakeshop/internal/notice"
)

// DefaultRedirectDelay leaves the redirect notice on screen before navigating.
const DefaultRedirectDelay = 1500 * time.Millisecond

// API is the part of the marketplace client the handoff uses.
type API interface {
	FindOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, userID string) ([]models.Order, error)
	CreateVNPayPayment(ctx context.Context, orderID string) (string, error)
}

// Journal persists gateway returns.
type Journal interface {
	RecordPaymentReturn(ctx context.Context, ret *models.PaymentReturn) error
}

// Notifier announces paid orders to the shop.
type Notifier interface {
	NotifyOrderPaid(ctx context.Context, order models.Order) error
}

// Redirect instructs a surface to show Notice, wait DelayMS, then navigate to URL.
type Redirect struct {
	URL     string        `json:"url"`
	DelayMS int64         `json:"delay_ms"`
	Notice  notice.Notice `json:"notice"`
}

// Options tunes a Handoff. Zero values take the defaults.
type Options struct {
	RedirectDelay time.Duration
	// OrdersPath is the order list surface every "back to orders" action points at.
	OrdersPath string
}

// Handoff prepares gateway redirects and completes gateway returns.
type Handoff struct {
	api        API
	sync       *cart.Sync
	journal    Journal
	notifier   Notifier
	delay      time.Duration
	ordersPath string
}

// NewHandoff builds a handoff. journal and notifier may be nil.
func NewHandoff(api API, sync *cart.Sync, journal Journal, notifier Notifier, opts Options) *Handoff {
	if opts.RedirectDelay <= 0 {
		opts.RedirectDelay = DefaultRedirectDelay
	}
	if opts.OrdersPath == "" {
		opts.OrdersPath = "/orders"
	}
	return &Handoff{
		api:        api,
		sync:       sync,
		journal:    journal,
		notifier:   notifier,
		delay:      opts.RedirectDelay,
		ordersPath: opts.OrdersPath,
	}
}

// Prepare builds the redirect instruction for a gateway payment URL.
func (h *Handoff) Prepare(paymentURL string) Redirect {
	return Redirect{
		URL:     paymentURL,
		DelayMS: h.delay.Milliseconds(),
		Notice:  notice.Info("Redirecting you to the payment gateway..."),
	}
}

// PayOrder requests a fresh payment URL for an existing order and prepares the
// redirect. An answer without a URL is a gateway rejection; the order stays payable.
func (h *Handoff) PayOrder(ctx context.Context, order models.Order) (Redirect, error) {
	paymentURL, err := h.api.CreateVNPayPayment(ctx, order.ID)
	if err != nil {
		log.Printf("[Payment] create payment url for order %s failed: %v", order.Reference(), err)
		return Redirect{}, notice.Transient("Could not reach the payment gateway, please try again",
			notice.ActionRetryPayment, fmt.Errorf("create payment url: %w", err))
	}
	if strings.TrimSpace(paymentURL) == "" {
		log.Printf("[Payment] gateway returned no payment url for order %s", order.Reference())
		return Redirect{}, notice.GatewayRejection("The payment gateway did not return a payment link",
			h.RetryPath(order.Reference()), nil)
	}
	return h.Prepare(paymentURL), nil
}

// OrdersPath is the order list surface.
func (h *Handoff) OrdersPath() string {
	return h.ordersPath
}

// RetryPath is where a buyer retries payment for the order. Without a reference it
// is the order list.
func (h *Handoff) RetryPath(ref string) string {
	if ref == "" {
		return h.ordersPath
	}
	return h.ordersPath + "/" + url.PathEscape(ref) + "/pay"
}
