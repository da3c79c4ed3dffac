package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/cakeshop/internal/models"
	"github.com/example/cakeshop/internal/notice"
	"github.com/example/cakeshop/internal/orders"
	"github.com/example/cakeshop/internal/utils"
)

// OrderHandler manages order endpoints.
type OrderHandler struct {
	tracker *orders.Tracker
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(tracker *orders.Tracker) *OrderHandler {
	return &OrderHandler{tracker: tracker}
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// ListOrders returns the caller's orders, optionally filtered by status.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	filter := orders.Filter{Status: models.OrderStatus(c.Query("status")).Normalize()}
	list, err := h.tracker.List(c.UserContext(), user, filter, utils.ParsePagination(c))
	if err != nil {
		return notice.From(err, notice.ActionReload)
	}
	return sendData(c, list)
}

// GetOrder returns one order by number or internal id.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	view, err := h.tracker.Get(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return notice.From(err, notice.ActionReload)
	}
	return sendData(c, view)
}

// CancelOrder asks the marketplace to cancel a pending or confirmed order.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var req cancelOrderRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	view, err := h.tracker.Cancel(c.UserContext(), user, c.Params("id"), req.Reason)
	if err != nil {
		return notice.From(err, notice.ActionReload)
	}
	return sendData(c, view)
}

// PayOrder returns a gateway redirect for an unpaid order.
func (h *OrderHandler) PayOrder(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	redirect, err := h.tracker.PayNow(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return notice.From(err, notice.ActionRetryPayment)
	}
	return sendData(c, redirect)
}
