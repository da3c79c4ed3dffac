package models

import "strings"

const (
	PaymentCodeCOD   = "COD"
	PaymentCodeVNPay = "VNPAY"
)

// gatewayCodes lists payment methods settled through a browser redirect.
var gatewayCodes = map[string]bool{
	PaymentCodeVNPay: true,
}

// PaymentMethod is reference data managed by admins; buyers only read it.
type PaymentMethod struct {
	ID          string `json:"id,omitempty"`
	Code        string `json:"code"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	IsActive    bool   `json:"isActive"`
}

// NormalizePaymentCode trims and upper-cases a payment code.
func NormalizePaymentCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsGatewayCode reports whether the code is settled through a redirect to a gateway.
func IsGatewayCode(code string) bool {
	return gatewayCodes[NormalizePaymentCode(code)]
}

// GatewayRouted reports whether the method hands off to an external gateway.
func (m PaymentMethod) GatewayRouted() bool {
	return IsGatewayCode(m.Code)
}
