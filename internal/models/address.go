package models

import "strings"

// Address is a saved shipping destination owned by a user.
type Address struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	FullName  string `json:"fullName"`
	Phone     string `json:"phone"`
	Street    string `json:"street"`
	Ward      string `json:"ward"`
	District  string `json:"district"`
	City      string `json:"city"`
	IsDefault bool   `json:"isDefault"`
	IsActive  bool   `json:"isActive"`
}

// ShippingAddress is the value copy of an Address frozen into an order.
type ShippingAddress struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Street   string `json:"street"`
	Ward     string `json:"ward"`
	District string `json:"district"`
	City     string `json:"city"`
}

// Preferred reports whether the address is marked as the active/default one.
func (a Address) Preferred() bool {
	return a.IsDefault || a.IsActive
}

// Snapshot copies the address fields by value.
func (a Address) Snapshot() ShippingAddress {
	return ShippingAddress{
		FullName: a.FullName,
		Phone:    a.Phone,
		Street:   a.Street,
		Ward:     a.Ward,
		District: a.District,
		City:     a.City,
	}
}

// Line renders the address on one line.
func (s ShippingAddress) Line() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{s.Street, s.Ward, s.District, s.City} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, ", ")
}
