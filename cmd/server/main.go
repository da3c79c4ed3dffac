package main

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/example/cakeshop/internal/cart"
	"github.com/example/cakeshop/internal/checkout"
	"github.com/example/cakeshop/internal/config"
	"github.com/example/cakeshop/internal/database"
	"github.com/example/cakeshop/internal/handlers"
	"github.com/example/cakeshop/internal/marketplace"
	"github.com/example/cakeshop/internal/orders"
	"github.com/example/cakeshop/internal/payment"
	"github.com/example/cakeshop/internal/routes"
	"github.com/example/cakeshop/internal/services"
)

func main() {
	cfg := config.Load()
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	journal := database.NewJournal(db)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	client := marketplace.NewClient(cfg.MarketplaceBaseURL, cfg.MarketplaceTimeout)
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)

	hub := cart.NewHub(client, cart.NewRedisCache(rdb, cfg.CartCacheTTL))
	hub.SetIdleTTL(cfg.CartIdleTTL)
	cartSync := cart.NewSync(hub)
	handoff := payment.NewHandoff(client, cartSync, journal, payment.NewOnceNotifier(rdb, telegramService, 0), payment.Options{
		RedirectDelay: cfg.RedirectDelay,
		OrdersPath:    cfg.OrdersPath,
	})
	orchestrator := checkout.NewOrchestrator(client, hub, cartSync, handoff, journal, checkout.Options{
		SessionTTL: cfg.CheckoutSessionTTL,
		OrdersPath: cfg.OrdersPath,
	})
	tracker := orders.NewTracker(client, handoff)

	app := fiber.New(fiber.Config{
		AppName:      "Cakeshop Storefront",
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, routes.Deps{
		Config:       cfg,
		Carts:        hub,
		Orchestrator: orchestrator,
		Handoff:      handoff,
		Tracker:      tracker,
		Returns:      journal,
		Events:       journal,
	})

	log.Printf("Starting server on :%s", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}
