package marketplace

import (
	"context"
	"net/http"
	"strconv"

	"github.com/example/cakeshop/internal/models"
)

// AddItemRequest is the body of POST /cart/add-item.
type AddItemRequest struct {
	UserID    string `json:"userId"`
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity"`
}

// UpdateItemRequest is the body of PUT /cart/update-item.
type UpdateItemRequest struct {
	UserID    string `json:"userId"`
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderRequest is the body of POST /order/create-from-cart. The shipping
// address is a value copy, never a reference to the saved Address.
type CreateOrderRequest struct {
	UserID          string                 `json:"userId"`
	PaymentCode     string                 `json:"paymentCode"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
}

type orderIDRequest struct {
	OrderID string `json:"orderId"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type paymentURLResponse struct {
	PaymentURL string `json:"paymentUrl"`
}

// GetCart fetches the user's cart. fresh asks every cache on the way to step aside.
func (c *Client) GetCart(ctx context.Context, userID string, fresh bool) (*models.Cart, error) {
	opts := RequestOpts{Method: http.MethodGet, Path: "/cart/user/" + segment(userID)}
	if fresh {
		opts.Query = map[string]string{"fresh": "true"}
		opts.Headers = map[string]string{"Cache-Control": "no-cache"}
	}
	var cart models.Cart
	if err := c.call(ctx, opts, &cart); err != nil {
		return nil, err
	}
	if cart.UserID == "" {
		cart.UserID = userID
	}
	return &cart, nil
}

// AddItem adds a product to the cart and returns the resulting cart.
func (c *Client) AddItem(ctx context.Context, req AddItemRequest) (*models.Cart, error) {
	var cart models.Cart
	if err := c.call(ctx, RequestOpts{Method: http.MethodPost, Path: "/cart/add-item", Body: req}, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// UpdateItem changes a line quantity and returns the resulting cart.
func (c *Client) UpdateItem(ctx context.Context, req UpdateItemRequest) (*models.Cart, error) {
	var cart models.Cart
	if err := c.call(ctx, RequestOpts{Method: http.MethodPut, Path: "/cart/update-item", Body: req}, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// RemoveItem drops a product from the cart and returns the resulting cart.
func (c *Client) RemoveItem(ctx context.Context, userID, productID string) (*models.Cart, error) {
	var cart models.Cart
	opts := RequestOpts{
		Method: http.MethodDelete,
		Path:   "/cart/remove-items/" + segment(productID),
		Query:  map[string]string{"userId": userID},
	}
	if err := c.call(ctx, opts, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// ClearCart empties the cart and returns the resulting cart.
func (c *Client) ClearCart(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	if err := c.call(ctx, RequestOpts{Method: http.MethodDelete, Path: "/cart/clear/" + segment(userID)}, &cart); err != nil {
		return nil, err
	}
	if cart.UserID == "" {
		cart.UserID = userID
	}
	return &cart, nil
}

// GetVariant looks up a product variant by id.
func (c *Client) GetVariant(ctx context.Context, variantID string) (*models.Variant, error) {
	var variant models.Variant
	if err := c.call(ctx, RequestOpts{Method: http.MethodGet, Path: "/variant/find/" + segment(variantID)}, &variant); err != nil {
		return nil, err
	}
	return &variant, nil
}

// ListAddresses returns the user's saved addresses.
func (c *Client) ListAddresses(ctx context.Context, userID string) ([]models.Address, error) {
	var addresses []models.Address
	if err := c.call(ctx, RequestOpts{Method: http.MethodGet, Path: "/address/user/" + segment(userID)}, &addresses); err != nil {
		return nil, err
	}
	return addresses, nil
}

// ListPaymentMethods returns the active payment methods.
func (c *Client) ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	if err := c.call(ctx, RequestOpts{Method: http.MethodGet, Path: "/payment-method/active"}, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

// CreateOrderFromCart turns the server-side cart into a pending order.
func (c *Client) CreateOrderFromCart(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	var order models.Order
	if err := c.call(ctx, RequestOpts{Method: http.MethodPost, Path: "/order/create-from-cart", Body: req}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOrder fetches one order by internal id.
func (c *Client) FindOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := c.call(ctx, RequestOpts{Method: http.MethodGet, Path: "/order/find/" + segment(id)}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders returns the user's orders, newest first as the backend sorts them.
func (c *Client) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	if err := c.call(ctx, RequestOpts{Method: http.MethodGet, Path: "/order/user/" + segment(userID)}, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CancelOrder asks the backend to cancel the order identified by ref, which is an
// order number or an internal id. The backend may answer with the updated order or
// with no payload; callers refresh either way.
func (c *Client) CancelOrder(ctx context.Context, ref, reason string) error {
	opts := RequestOpts{
		Method: http.MethodPut,
		Path:   "/order/cancel/" + segment(ref),
		Body:   cancelRequest{Reason: reason},
	}
	return c.call(ctx, opts, nil)
}

// CreateVNPayPayment requests a gateway payment URL for the order. An empty string
// with a nil error means the backend answered without a URL.
func (c *Client) CreateVNPayPayment(ctx context.Context, orderID string) (string, error) {
	var out paymentURLResponse
	opts := RequestOpts{Method: http.MethodPost, Path: "/payment/vnpay/create", Body: orderIDRequest{OrderID: orderID}}
	if err := c.call(ctx, opts, &out); err != nil {
		return "", err
	}
	return out.PaymentURL, nil
}

// ConfirmCOD confirms a cash-on-delivery order.
func (c *Client) ConfirmCOD(ctx context.Context, orderID string) error {
	opts := RequestOpts{Method: http.MethodPost, Path: "/payment/cod/confirm", Body: orderIDRequest{OrderID: orderID}}
	return c.call(ctx, opts, nil)
}

// IsNotFound reports whether err is a 404 from the marketplace.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsClientError reports whether err is a 4xx from the marketplace.
func IsClientError(err error) bool {
	status := StatusOf(err)
	return status >= 400 && status < 500
}

// Describe formats a short human label for logs.
func Describe(err error) string {
	if status := StatusOf(err); status != 0 {
		return strconv.Itoa(status) + " " + MessageOf(err)
	}
	return err.Error()
}
