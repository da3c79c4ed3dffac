package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/cakeshop/internal/models"
)

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiBase     string
	httpClient  *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiBase:     "https://api.telegram.org",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)

	msg := telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// FormatPrice formats an amount in whole dong with thousand separators.
func FormatPrice(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "VND"
	}
	str := amount.Round(0).Abs().String()

	var result strings.Builder
	if amount.Round(0).IsNegative() {
		result.WriteString("-")
	}
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return result.String() + " " + currency
}

// NotifyOrderPaid tells the shop admins that an order was paid through the
// gateway. Orders known only by number produce a short message.
func (s *TelegramService) NotifyOrderPaid(ctx context.Context, order models.Order) error {
	if s.adminChatID == "" {
		return nil
	}

	var itemsList strings.Builder
	for i, item := range order.Items {
		name := item.ProductName
		if item.VariantName != "" {
			name += " (" + item.VariantName + ")"
		}
		itemsList.WriteString(fmt.Sprintf("%d. <b>%s</b>\n   %d x %s = %s\n",
			i+1,
			html.EscapeString(name),
			item.Quantity,
			FormatPrice(item.UnitPrice, ""),
			FormatPrice(item.LineTotal, ""),
		))
	}

	message := fmt.Sprintf(`<b>✅ PAYMENT RECEIVED</b>
<b>📋 Order:</b> %s
<b>💳 Method:</b> %s`,
		html.EscapeString(order.Reference()),
		html.EscapeString(paymentLabel(order)),
	)
	if itemsList.Len() > 0 {
		message += "\n<b>🎂 Items:</b>\n" + itemsList.String()
	}
	if !order.TotalAmount.IsZero() {
		message += fmt.Sprintf("\n<b>💰 Total:</b> %s", FormatPrice(order.TotalAmount, ""))
	}
	if line := order.ShippingAddress.Line(); line != "" {
		message += fmt.Sprintf("\n<b>📍 Ship to:</b> %s, %s",
			html.EscapeString(order.ShippingAddress.FullName), html.EscapeString(line))
	}
	message += "\n━━━━━━━━━━━━━━━━━━"

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}

func paymentLabel(order models.Order) string {
	if order.PaymentMethod != nil && order.PaymentMethod.Name != "" {
		return order.PaymentMethod.Name
	}
	if code := order.PaymentMethodCode(); code != "" {
		return code
	}
	return models.PaymentCodeVNPay
}
