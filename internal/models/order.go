package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfillment lifecycle owned by the marketplace.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderConfirmed  OrderStatus = "CONFIRMED"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
	OrderRefunded   OrderStatus = "REFUNDED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderConfirmed, OrderCancelled},
	OrderConfirmed:  {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped},
	OrderShipped:    {OrderDelivered},
	OrderDelivered:  {OrderRefunded},
	OrderCancelled:  {OrderRefunded},
}

// Normalize upper-cases the status so "pending" and "PENDING" compare equal.
func (s OrderStatus) Normalize() OrderStatus {
	return OrderStatus(strings.ToUpper(strings.TrimSpace(string(s))))
}

// Cancellable reports whether the buyer may request cancellation.
func (s OrderStatus) Cancellable() bool {
	return s.CanTransitionTo(OrderCancelled)
}

// CanTransitionTo reports whether next is a known successor of s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[s.Normalize()] {
		if candidate == next.Normalize() {
			return true
		}
	}
	return false
}

// Next lists the statuses that may follow s, for display.
func (s OrderStatus) Next() []OrderStatus {
	return append([]OrderStatus(nil), orderTransitions[s.Normalize()]...)
}

// PaymentStatus is the payment lifecycle, observed independently of OrderStatus.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed},
	PaymentPaid:    {PaymentRefunded},
}

// Normalize upper-cases the payment status.
func (s PaymentStatus) Normalize() PaymentStatus {
	return PaymentStatus(strings.ToUpper(strings.TrimSpace(string(s))))
}

// CanTransitionTo reports whether next is a known successor of s.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, candidate := range paymentTransitions[s.Normalize()] {
		if candidate == next.Normalize() {
			return true
		}
	}
	return false
}

// Order is the marketplace order: a frozen snapshot of the cart at creation time.
type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	UserID          string          `json:"userId"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	PaymentCode     string          `json:"paymentCode,omitempty"`
	PaymentMethod   *PaymentMethod  `json:"paymentMethod,omitempty"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingFee     decimal.Decimal `json:"shippingFee"`
	Discount        decimal.Decimal `json:"discount"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	CancelReason    string          `json:"cancelReason,omitempty"`
	CancelledAt     *time.Time      `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// OrderItem is a frozen copy of a line item; it never follows later catalog edits.
type OrderItem struct {
	ProductID   string          `json:"productId"`
	VariantID   string          `json:"variantId,omitempty"`
	ProductName string          `json:"productName"`
	VariantName string          `json:"variantName,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// UnmarshalJSON tolerates the marketplace's `_id` key and a bare paymentMethod code.
func (o *Order) UnmarshalJSON(data []byte) error {
	type plain Order
	var aux struct {
		plain
		MongoID       string          `json:"_id"`
		PaymentMethod json.RawMessage `json:"paymentMethod"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*o = Order(aux.plain)
	if o.ID == "" {
		o.ID = aux.MongoID
	}

	raw := bytes.TrimSpace(aux.PaymentMethod)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		o.PaymentMethod = nil
	case raw[0] == '"':
		var code string
		if err := json.Unmarshal(raw, &code); err != nil {
			return err
		}
		o.PaymentMethod = &PaymentMethod{Code: code}
	default:
		var pm PaymentMethod
		if err := json.Unmarshal(raw, &pm); err != nil {
			return err
		}
		o.PaymentMethod = &pm
	}
	return nil
}

// PaymentMethodCode returns the upper-cased payment method code of the order.
func (o Order) PaymentMethodCode() string {
	if o.PaymentCode != "" {
		return NormalizePaymentCode(o.PaymentCode)
	}
	if o.PaymentMethod != nil {
		return NormalizePaymentCode(o.PaymentMethod.Code)
	}
	return ""
}

// Reference returns the order number when known, otherwise the internal id.
func (o Order) Reference() string {
	if o.OrderNumber != "" {
		return o.OrderNumber
	}
	return o.ID
}

// ItemsTotal sums the frozen line totals.
func (o Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal)
	}
	return total
}
