package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg := Load()

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "http://localhost:8081/api", cfg.MarketplaceBaseURL)
	assert.Zero(t, cfg.MarketplaceTimeout)
	assert.Equal(t, 15*time.Minute, cfg.CartCacheTTL)
	assert.Equal(t, 30*time.Minute, cfg.CartIdleTTL)
	assert.Equal(t, 1500*time.Millisecond, cfg.RedirectDelay)
	assert.Equal(t, 30*time.Minute, cfg.CheckoutSessionTTL)
	assert.Equal(t, "/orders", cfg.OrdersPath)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MARKETPLACE_BASE_URL", "https://api.example.com/api/")
	t.Setenv("MARKETPLACE_TIMEOUT_SECONDS", "20")
	t.Setenv("REDIRECT_DELAY_MS", "800")
	t.Setenv("CART_CACHE_TTL_MINUTES", "not-a-number")

	cfg := Load()

	assert.Equal(t, "https://api.example.com/api", cfg.MarketplaceBaseURL)
	assert.Equal(t, 20*time.Second, cfg.MarketplaceTimeout)
	assert.Equal(t, 800*time.Millisecond, cfg.RedirectDelay)
	assert.Equal(t, 15*time.Minute, cfg.CartCacheTTL)
}
