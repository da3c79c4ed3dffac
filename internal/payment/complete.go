package payment

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/example/cakeshop/internal/models"
	"github.com/example/cakeshop/internal/notice"
)

// Outcome classifies a gateway return.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeInvalidSignature Outcome = "invalid_signature"
	OutcomeFailed           Outcome = "failed"
	OutcomeCancelled        Outcome = "cancelled"
)

// Classify maps a failure message onto an outcome. Anything unrecognized counts as
// a cancellation.
func Classify(message string) Outcome {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "signature"), strings.Contains(m, "checksum"), strings.Contains(m, "chữ ký"):
		return OutcomeInvalidSignature
	case strings.Contains(m, "fail"), strings.Contains(m, "error"), strings.Contains(m, "thất bại"), strings.Contains(m, "lỗi"):
		return OutcomeFailed
	}
	return OutcomeCancelled
}

// Result is what the payment result surface renders.
type Result struct {
	Success     bool          `json:"success"`
	Outcome     Outcome       `json:"outcome"`
	Order       OrderRef      `json:"order_ref"`
	OrderNumber string        `json:"order_number"`
	Message     string        `json:"message,omitempty"`
	Notice      notice.Notice `json:"notice"`

	// Reloaded closes once the background cart reload of a successful return ends.
	Reloaded <-chan struct{} `json:"-"`
}

// Resolve returns the label to display for ref. Order numbers are used as they are;
// internal ids are looked up, falling back to the raw id when the lookup fails.
func (h *Handoff) Resolve(ctx context.Context, ref OrderRef) (string, *models.Order) {
	if ref.Kind != RefInternalID {
		return ref.Value, nil
	}
	order, err := h.api.FindOrder(ctx, ref.Value)
	if err != nil {
		log.Printf("[Payment] resolve order %s failed, showing raw id: %v", ref.Value, err)
		return ref.Value, nil
	}
	if order.OrderNumber == "" {
		return ref.Value, order
	}
	return order.OrderNumber, order
}

// Complete reconciles a gateway return. A success reloads the cart in the
// background and never reports a reload failure. A failure leaves the cart alone
// so the buyer can pay the same order again.
func (h *Handoff) Complete(ctx context.Context, user models.User, ret Return) Result {
	display, order := h.Resolve(ctx, ret.Order)
	if order != nil && !ownedBy(user, order) {
		log.Printf("[Payment] order %s does not belong to user %s, showing raw id", ret.Order.Value, user.ID)
		display, order = ret.Order.Value, nil
	}

	res := Result{
		Success:     ret.Success,
		Order:       ret.Order,
		OrderNumber: display,
		Message:     ret.Message,
	}

	if ret.Success {
		res.Outcome = OutcomeSuccess
		res.Reloaded = h.sync.ReloadInBackground(ctx, user.ID)
		res.Notice = h.successNotice(display)
		if paid := h.paidOrder(ctx, user, ret.Order, order); paid != nil {
			h.notifyPaid(ctx, *paid)
		}
	} else {
		res.Outcome = Classify(ret.Message)
		res.Notice = h.failureNotice(res.Outcome, display)
		log.Printf("[Payment] order %s returned unpaid (%s): %q", display, res.Outcome, ret.Message)
	}

	h.record(ctx, user, ret, res)
	return res
}

func (h *Handoff) successNotice(display string) notice.Notice {
	n := notice.Success("Payment received, thank you for your order")
	if display != "" {
		n.Message = fmt.Sprintf("Payment received for order %s, thank you", display)
	}
	n.NextAction = notice.ActionBackToOrders
	n.Path = h.ordersPath
	return n
}

func (h *Handoff) failureNotice(outcome Outcome, display string) notice.Notice {
	var message string
	switch outcome {
	case OutcomeInvalidSignature:
		message = "We could not verify the gateway response (invalid signature). Your order is still waiting for payment."
	case OutcomeFailed:
		message = "The payment failed. Your order is still waiting for payment."
	default:
		message = "The payment was cancelled or not completed. Your order is still waiting for payment."
	}
	n := notice.Notice{
		Level:      notice.LevelError,
		Message:    message,
		NextAction: notice.ActionRetryPayment,
		Path:       h.RetryPath(display),
	}
	if display == "" {
		n.NextAction = notice.ActionBackToOrders
	}
	return n
}

// paidOrder returns the order behind ref when it belongs to user and the backend
// shows it paid. The return query alone never proves a payment.
func (h *Handoff) paidOrder(ctx context.Context, user models.User, ref OrderRef, resolved *models.Order) *models.Order {
	if h.notifier == nil || ref.IsZero() {
		return nil
	}

	order := resolved
	if order == nil && ref.Kind == RefOrderNumber && user.ID != "" {
		all, err := h.api.ListOrders(ctx, user.ID)
		if err != nil {
			log.Printf("[Payment] list orders for user %s failed, skipping paid notification: %v", user.ID, err)
			return nil
		}
		for i := range all {
			if strings.EqualFold(all[i].OrderNumber, ref.Value) {
				order = &all[i]
				break
			}
		}
	}

	switch {
	case order == nil:
		log.Printf("[Payment] order %s not found for user %s, skipping paid notification", ref.Value, user.ID)
	case !ownedBy(user, order):
		log.Printf("[Payment] order %s does not belong to user %s, skipping paid notification", ref.Value, user.ID)
	case order.PaymentStatus.Normalize() != models.PaymentPaid:
		log.Printf("[Payment] order %s is %s on the backend, skipping paid notification", order.Reference(), order.PaymentStatus)
	default:
		return order
	}
	return nil
}

func ownedBy(user models.User, order *models.Order) bool {
	return order.UserID != "" && order.UserID == user.ID
}

func (h *Handoff) notifyPaid(ctx context.Context, paid models.Order) {
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := h.notifier.NotifyOrderPaid(bg, paid); err != nil {
			log.Printf("[Payment] paid notification for order %s failed: %v", paid.Reference(), err)
		}
	}()
}

func (h *Handoff) record(ctx context.Context, user models.User, ret Return, res Result) {
	if h.journal == nil {
		return
	}
	entry := &models.PaymentReturn{
		UserID:      user.ID,
		OrderRef:    ret.Order.Value,
		RefKind:     string(ret.Order.Kind),
		OrderNumber: res.OrderNumber,
		Success:     ret.Success,
		Outcome:     string(res.Outcome),
		Message:     ret.Message,
	}
	if err := h.journal.RecordPaymentReturn(ctx, entry); err != nil {
		log.Printf("[Payment] journal write failed for order %s: %v", res.OrderNumber, err)
	}
}
