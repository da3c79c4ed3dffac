package models

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Cart is the marketplace's per-user cart. TotalPrice is derived from the items and
// is recomputed locally with Recalculate whenever the cart is adopted.
type Cart struct {
	ID         string          `json:"id,omitempty"`
	UserID     string          `json:"userId"`
	Items      []LineItem      `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// LineItem is one product/variant row with its unit price snapshot.
type LineItem struct {
	ProductID   string          `json:"productId"`
	VariantID   string          `json:"variantId,omitempty"`
	ProductName string          `json:"productName"`
	VariantName string          `json:"variantName,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Image       string          `json:"image,omitempty"`
	Variant     *Variant        `json:"variant,omitempty"`
}

// Variant is a priced product option. The marketplace sometimes returns only the id.
type Variant struct {
	ID    string          `json:"id"`
	Name  string          `json:"name,omitempty"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image,omitempty"`
	Stock int             `json:"stock,omitempty"`
}

// UnmarshalJSON accepts either a full variant object or a bare id string.
func (v *Variant) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*v = Variant{ID: id}
		return nil
	}

	type plain Variant
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.ID == "" {
		var alt struct {
			MongoID string `json:"_id"`
		}
		_ = json.Unmarshal(data, &alt)
		p.ID = alt.MongoID
	}
	*v = Variant(p)
	return nil
}

// Partial reports whether only the identifier of the variant is known.
func (v *Variant) Partial() bool {
	return v != nil && v.ID != "" && v.Name == "" && v.Price.IsZero()
}

// EmptyCart returns a cart with no items for the user.
func EmptyCart(userID string) Cart {
	return Cart{UserID: userID, Items: []LineItem{}, TotalPrice: decimal.Zero}
}

// LineTotal is price multiplied by quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Recalculate overwrites TotalPrice with the sum of the line totals.
func (c *Cart) Recalculate() {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	c.TotalPrice = total
}

// ItemCount is the number of units in the cart, shown on the header badge.
func (c Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// IsEmpty reports whether the cart has no line items.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Clone returns a deep copy safe to hand to another goroutine.
func (c Cart) Clone() Cart {
	out := c
	out.Items = make([]LineItem, len(c.Items))
	for i, item := range c.Items {
		if item.Variant != nil {
			v := *item.Variant
			item.Variant = &v
		}
		out.Items[i] = item
	}
	return out
}
