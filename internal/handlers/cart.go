package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/cakeshop/internal/cart"
	"github.com/example/cakeshop/internal/marketplace"
	"github.com/example/cakeshop/internal/models"
	"github.com/example/cakeshop/internal/notice"
)

const eventsHeartbeat = 25 * time.Second

// CartHandler serves the cart page, the header badge and their live stream.
type CartHandler struct {
	hub *cart.Hub
}

// NewCartHandler constructs CartHandler.
func NewCartHandler(hub *cart.Hub) *CartHandler {
	return &CartHandler{hub: hub}
}

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type badge struct {
	Count int    `json:"count"`
	Total string `json:"total"`
}

func badgeOf(c models.Cart) badge {
	return badge{Count: c.ItemCount(), Total: c.TotalPrice.StringFixed(0)}
}

// GetCart loads the cart; ?fresh=true bypasses the cache.
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	current := h.hub.Store(user.ID).Load(c.UserContext(), c.QueryBool("fresh", false))
	return sendData(c, current)
}

// Badge returns the item count and total shown in the header.
func (h *CartHandler) Badge(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	store := h.hub.Store(user.ID)
	current, loaded := store.Snapshot()
	if !loaded {
		current = store.Load(c.UserContext(), false)
	}
	return sendData(c, badgeOf(current))
}

// Events streams every cart snapshot as server-sent events until the client leaves.
// The store is loaded before subscribing so the first event is the current cart.
func (h *CartHandler) Events(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	store := h.hub.Store(user.ID)
	if _, loaded := store.Snapshot(); !loaded {
		store.Load(c.UserContext(), false)
	}
	updates, cancel := store.Subscribe()

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		ticker := time.NewTicker(eventsHeartbeat)
		defer ticker.Stop()

		for {
			select {
			case snapshot, open := <-updates:
				if !open {
					return
				}
				if err := writeCartEvent(w, snapshot); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func writeCartEvent(w *bufio.Writer, snapshot models.Cart) error {
	payload, err := json.Marshal(fiber.Map{"cart": snapshot, "badge": badgeOf(snapshot)})
	if err != nil {
		log.Printf("[Cart] encode event failed: %v", err)
		return err
	}
	if _, err := fmt.Fprintf(w, "event: cart\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

// AddItem adds a product to the cart.
func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	var req cartItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	return h.mutate(c, cart.AddItem{ProductID: req.ProductID, VariantID: req.VariantID, Quantity: req.Quantity})
}

// UpdateItem sets the quantity of a line.
func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	var req cartItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	return h.mutate(c, cart.UpdateQuantity{ProductID: req.ProductID, VariantID: req.VariantID, Quantity: req.Quantity})
}

// RemoveItem drops a product from the cart.
func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	return h.mutate(c, cart.RemoveItem{ProductID: c.Params("productId")})
}

// Clear empties the cart.
func (h *CartHandler) Clear(c *fiber.Ctx) error {
	return h.mutate(c, cart.Clear{})
}

func (h *CartHandler) mutate(c *fiber.Ctx, op cart.Op) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	updated, err := h.hub.Store(user.ID).Mutate(c.UserContext(), op)
	switch {
	case err == nil:
		return sendData(c, updated)
	case errors.Is(err, cart.ErrInvalidOperation):
		return notice.Validation("Choose a product and a valid quantity")
	case marketplace.IsClientError(err):
		message := marketplace.MessageOf(err)
		if message == "" {
			message = "The cart could not be updated"
		}
		return notice.Conflict(message, notice.ActionReload, err)
	}
	return notice.Transient("The cart could not be updated, please try again", notice.ActionReload, err)
}
