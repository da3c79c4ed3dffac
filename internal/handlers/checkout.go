package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/cakeshop/internal/checkout"
	"github.com/example/cakeshop/internal/models"
	"github.com/example/cakeshop/internal/notice"
)

// CheckoutEvents lists the journaled transitions of a checkout session.
type CheckoutEvents interface {
	ListCheckoutEvents(ctx context.Context, sessionID string) ([]models.CheckoutEvent, error)
}

// CheckoutHandler drives checkout sessions.
type CheckoutHandler struct {
	orchestrator *checkout.Orchestrator
	events       CheckoutEvents
}

// NewCheckoutHandler constructs CheckoutHandler. events may be nil when no journal is configured.
func NewCheckoutHandler(orchestrator *checkout.Orchestrator, events CheckoutEvents) *CheckoutHandler {
	return &CheckoutHandler{orchestrator: orchestrator, events: events}
}

type selectRequest struct {
	AddressID   string `json:"address_id"`
	PaymentCode string `json:"payment_code"`
}

type submitRequest struct {
	PaymentCode string `json:"payment_code"`
}

// Start opens a checkout session for the caller's cart.
func (h *CheckoutHandler) Start(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	view, err := h.orchestrator.Start(c.UserContext(), user)
	if err != nil {
		return notice.From(err, notice.ActionRetryCheckout)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    view,
	})
}

// Get returns the session view.
func (h *CheckoutHandler) Get(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	view, err := h.orchestrator.Get(c.UserContext(), user, id)
	if err != nil {
		return notice.From(err, notice.ActionRetryCheckout)
	}
	return sendData(c, view)
}

// Select changes the address or payment method.
func (h *CheckoutHandler) Select(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	var req selectRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	view, err := h.orchestrator.Select(c.UserContext(), user, id, req.AddressID, req.PaymentCode)
	if err != nil {
		return notice.From(err, notice.ActionRetryCheckout)
	}
	return sendData(c, view)
}

// Submit places the order and hands off to payment. The body is optional; without
// a payment code the session's selection is used.
func (h *CheckoutHandler) Submit(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	var req submitRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	view, err := h.orchestrator.Submit(c.UserContext(), user, id, req.PaymentCode)
	if err != nil {
		return notice.From(err, notice.ActionRetryCheckout)
	}
	return sendData(c, view)
}

// Events returns the journaled transitions of a session, oldest first. Sessions
// that expired from memory keep their history.
func (h *CheckoutHandler) Events(c *fiber.Ctx) error {
	if h.events == nil {
		return notice.Transient("Checkout journal is not available", notice.ActionReload, nil)
	}
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	events, err := h.events.ListCheckoutEvents(c.UserContext(), id.String())
	if err != nil {
		return notice.Transient("Could not load checkout events", notice.ActionReload, err)
	}
	if len(events) == 0 {
		return notice.NotFound("Checkout session not found", nil)
	}
	return sendData(c, events)
}

func sessionID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, notice.NotFound("Checkout session not found", err)
	}
	return id, nil
}
