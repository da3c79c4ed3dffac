package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/example/cakeshop/internal/cart"
	"github.com/example/cakeshop/internal/middleware"
	"github.com/example/cakeshop/internal/models"
	"github.com/example/cakeshop/internal/notice"
)

type errorBody struct {
	Kind       notice.Kind       `json:"kind"`
	Message    string            `json:"message"`
	NextAction notice.NextAction `json:"next_action,omitempty"`
	Path       string            `json:"path,omitempty"`
}

// ErrorHandler renders every failure as {success:false, error:{...}} with a next action.
func ErrorHandler(c *fiber.Ctx, err error) error {
	ne := classify(err)
	status := ne.HTTPStatus()

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	if ne.Kind == notice.KindTransient {
		log.Printf("[HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error": errorBody{
			Kind:       ne.Kind,
			Message:    ne.Message,
			NextAction: ne.Next,
			Path:       ne.Path,
		},
	})
}

func classify(err error) *notice.Error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case fiber.StatusUnauthorized:
			return &notice.Error{Kind: notice.KindUnauthorized, Message: fe.Message, Next: notice.ActionSignIn}
		case fiber.StatusForbidden:
			return &notice.Error{Kind: notice.KindUnauthorized, Message: fe.Message}
		case fiber.StatusNotFound:
			return notice.NotFound(fe.Message, nil)
		case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
			return notice.Validation(fe.Message)
		case fiber.StatusConflict:
			return notice.Conflict(fe.Message, notice.ActionReload, nil)
		}
		return notice.Transient(fe.Message, notice.ActionReload, err)
	}
	if errors.Is(err, cart.ErrInvalidOperation) {
		return notice.Validation(err.Error())
	}
	return notice.From(err, notice.ActionReload)
}

func currentUser(c *fiber.Ctx) (models.User, error) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return models.User{}, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return user, nil
}

func sendData(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}
