package payment

import (
	"net/url"
	"strings"
)

// RefKind tells which identifier the gateway threaded back through the return URL.
type RefKind string

const (
	RefNone        RefKind = "none"
	RefOrderNumber RefKind = "order_number"
	RefInternalID  RefKind = "internal_id"
)

// internalIDLength is the length of a marketplace object id.
const internalIDLength = 24

// OrderRef is either a human-readable order number or an internal id.
type OrderRef struct {
	Kind  RefKind `json:"kind"`
	Value string  `json:"value"`
}

// ParseOrderRef classifies value by shape only: 24 characters without an "ORD"
// prefix is taken as an internal id. This is a heuristic; an order number that
// happens to be 24 characters long without the prefix is misclassified.
func ParseOrderRef(value string) OrderRef {
	v := strings.TrimSpace(value)
	switch {
	case v == "":
		return OrderRef{Kind: RefNone}
	case len(v) == internalIDLength && !strings.HasPrefix(strings.ToUpper(v), "ORD"):
		return OrderRef{Kind: RefInternalID, Value: v}
	default:
		return OrderRef{Kind: RefOrderNumber, Value: v}
	}
}

func (r OrderRef) String() string {
	return r.Value
}

// IsZero reports whether the return carried no order identifier.
func (r OrderRef) IsZero() bool {
	return r.Kind == RefNone || r.Value == ""
}

// Return is the outcome the gateway delivered through the buyer's browser.
type Return struct {
	Success bool     `json:"success"`
	Order   OrderRef `json:"order"`
	Message string   `json:"message"`
}

// ParseReturn reads success, orderId and message from a raw query string. It never
// fails: pairs are split by hand so one malformed escape does not discard the rest,
// and every value that cannot be decoded is kept as received.
func ParseReturn(rawQuery string) Return {
	rawQuery = strings.TrimPrefix(rawQuery, "?")

	var ret Return
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		switch unescapeQuery(key) {
		case "success":
			ret.Success = unescapeQuery(value) == "true"
		case "orderId":
			ret.Order = ParseOrderRef(unescapeQuery(value))
		case "message":
			ret.Message = decodeMessage(value)
		}
	}
	if ret.Order.Kind == "" {
		ret.Order = OrderRef{Kind: RefNone}
	}
	return ret
}

func unescapeQuery(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// decodeMessage decodes the query value, then once more because the backend
// escapes the message before putting it into the redirect URL.
func decodeMessage(raw string) string {
	first := unescapeQuery(raw)
	second, err := url.PathUnescape(first)
	if err != nil {
		return first
	}
	return second
}
