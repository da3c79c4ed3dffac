package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/cakeshop/internal/cart"
	"github.com/example/cakeshop/internal/checkout"
	"github.com/example/cakeshop/internal/config"
	"github.com/example/cakeshop/internal/handlers"
	"github.com/example/cakeshop/internal/middleware"
	"github.com/example/cakeshop/internal/models"
	"github.com/example/cakeshop/internal/orders"
	"github.com/example/cakeshop/internal/payment"
)

// Deps carries the components the HTTP surface is built on.
type Deps struct {
	Config       *config.Config
	Carts        *cart.Hub
	Orchestrator *checkout.Orchestrator
	Handoff      *payment.Handoff
	Tracker      *orders.Tracker
	Returns      handlers.PaymentReturns
	Events       handlers.CheckoutEvents
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, deps Deps) {
	sessionHandler := handlers.NewSessionHandler()
	cartHandler := handlers.NewCartHandler(deps.Carts)
	checkoutHandler := handlers.NewCheckoutHandler(deps.Orchestrator, deps.Events)
	paymentHandler := handlers.NewPaymentHandler(deps.Handoff, deps.Returns)
	orderHandler := handlers.NewOrderHandler(deps.Tracker)

	api := app.Group("/api", middleware.AuthMiddleware(deps.Config))

	api.Get("/session", sessionHandler.Me)

	// Cart routes
	carts := api.Group("/cart")
	carts.Get("/", cartHandler.GetCart)
	carts.Delete("/", cartHandler.Clear)
	carts.Get("/badge", cartHandler.Badge)
	carts.Get("/events", cartHandler.Events)
	carts.Post("/items", cartHandler.AddItem)
	carts.Put("/items", cartHandler.UpdateItem)
	carts.Delete("/items/:productId", cartHandler.RemoveItem)

	// Checkout routes
	checkouts := api.Group("/checkout")
	checkouts.Post("/", checkoutHandler.Start)
	checkouts.Get("/:id", checkoutHandler.Get)
	checkouts.Patch("/:id", checkoutHandler.Select)
	checkouts.Post("/:id/submit", checkoutHandler.Submit)
	checkouts.Get("/:id/events", middleware.RequireRole(models.RoleAdmin), checkoutHandler.Events)

	// Payment routes
	payments := api.Group("/payment")
	payments.Get("/result", paymentHandler.Result)
	payments.Get("/returns", middleware.RequireRole(models.RoleAdmin), paymentHandler.ListReturns)

	// Order routes
	orderRoutes := api.Group("/orders")
	orderRoutes.Get("/", orderHandler.ListOrders)
	orderRoutes.Get("/:id", orderHandler.GetOrder)
	orderRoutes.Post("/:id/cancel", orderHandler.CancelOrder)
	orderRoutes.Post("/:id/pay", orderHandler.PayOrder)
}
