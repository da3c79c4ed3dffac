package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/example/cakeshop/internal/models"
	"github.com/example/cakeshop/internal/notice"
	"github.com/example/cakeshop/internal/payment"
	"github.com/example/cakeshop/internal/utils"
)

// PaymentReturns lists recorded gateway returns.
type PaymentReturns interface {
	ListPaymentReturns(ctx context.Context, orderRef string, p utils.Pagination) ([]models.PaymentReturn, int64, error)
}

// PaymentHandler completes gateway returns.
type PaymentHandler struct {
	handoff *payment.Handoff
	returns PaymentReturns
}

// NewPaymentHandler constructs PaymentHandler. returns may be nil when no journal is configured.
func NewPaymentHandler(handoff *payment.Handoff, returns PaymentReturns) *PaymentHandler {
	return &PaymentHandler{handoff: handoff, returns: returns}
}

// Result parses the gateway's return query exactly as delivered and renders the outcome.
func (h *PaymentHandler) Result(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	ret := payment.ParseReturn(string(c.Request().URI().QueryString()))
	result := h.handoff.Complete(c.UserContext(), user, ret)
	return sendData(c, result)
}

// ListReturns pages through the gateway return journal.
func (h *PaymentHandler) ListReturns(c *fiber.Ctx) error {
	if h.returns == nil {
		return notice.Transient("Payment journal is not available", notice.ActionReload, nil)
	}

	pagination := utils.ParsePagination(c)
	returns, total, err := h.returns.ListPaymentReturns(c.UserContext(), c.Query("order"), pagination)
	if err != nil {
		return notice.Transient("Could not load payment returns", notice.ActionReload, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    returns,
		"meta": fiber.Map{
			"page":  pagination.Page,
			"limit": pagination.Limit,
			"total": total,
		},
	})
}
