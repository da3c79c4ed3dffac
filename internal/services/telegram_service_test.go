package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cakeshop/internal/models"
)

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "1,250,000 VND", FormatPrice(decimal.NewFromInt(1250000), ""))
	assert.Equal(t, "999 VND", FormatPrice(decimal.NewFromInt(999), "VND"))
	assert.Equal(t, "100 USD", FormatPrice(decimal.RequireFromString("99.5"), "USD"))
	assert.Equal(t, "0 VND", FormatPrice(decimal.Zero, ""))
}

func TestNotifyOrderPaid_SendsToAdminChat(t *testing.T) {
	var got telegramMessage
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewTelegramService("bot-token", "-100200")
	svc.apiBase = srv.URL

	err := svc.NotifyOrderPaid(context.Background(), models.Order{
		OrderNumber: "ORD-000042",
		PaymentCode: "VNPAY",
		Items: []models.OrderItem{
			{ProductName: "Tiramisu", VariantName: "24cm", Quantity: 2, UnitPrice: decimal.NewFromInt(320000), LineTotal: decimal.NewFromInt(640000)},
		},
		TotalAmount: decimal.NewFromInt(640000),
	})
	require.NoError(t, err)

	assert.Equal(t, "/botbot-token/sendMessage", path)
	assert.Equal(t, "-100200", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.Contains(t, got.Text, "ORD-000042")
	assert.Contains(t, got.Text, "Tiramisu (24cm)")
	assert.Contains(t, got.Text, "640,000 VND")
}

func TestNotifyOrderPaid_NotConfigured(t *testing.T) {
	assert.NoError(t, NewTelegramService("", "").NotifyOrderPaid(context.Background(), models.Order{OrderNumber: "ORD-1"}))
	assert.NoError(t, NewTelegramService("", "-1").NotifyOrderPaid(context.Background(), models.Order{OrderNumber: "ORD-1"}))
}

func TestSendMessage_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := NewTelegramService("bot-token", "-1")
	svc.apiBase = srv.URL

	assert.Error(t, svc.SendToAdmin(context.Background(), "hello"))
}
