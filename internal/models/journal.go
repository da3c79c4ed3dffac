package models

import "github.com/google/uuid"

// CheckoutEvent records one state transition of a checkout session.
type CheckoutEvent struct {
	JournalEntry
	SessionID   uuid.UUID `gorm:"type:uuid;index" json:"session_id"`
	UserID      string    `gorm:"index" json:"user_id"`
	FromState   string    `json:"from_state"`
	ToState     string    `json:"to_state"`
	PaymentCode string    `json:"payment_code"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Error       string    `json:"error"`
}

// PaymentReturn records a gateway return as the buyer's browser delivered it.
type PaymentReturn struct {
	JournalEntry
	UserID      string `gorm:"index" json:"user_id"`
	OrderRef    string `gorm:"index" json:"order_ref"`
	RefKind     string `json:"ref_kind"`
	OrderNumber string `json:"order_number"`
	Success     bool   `json:"success"`
	Outcome     string `json:"outcome"`
	Message     string `json:"message"`
}
