// Package telegram delivers alerts through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"remora/internal/core"
	"remora/internal/notifier"
)

const defaultBaseURL = "https://api.telegram.org"

// Telegram implements the Notifier interface for the Telegram Bot API.
type Telegram struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// New creates a new Telegram notifier
func New(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  defaultBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Init(cfg notifier.Config) error {
	if token, ok := cfg.Params["bot_token"].(string); ok {
		t.botToken = token
	}
	if chatID, ok := cfg.Params["chat_id"].(string); ok {
		t.chatID = chatID
	}

	if t.botToken == "" {
		return fmt.Errorf("telegram: bot_token is required")
	}
	if t.chatID == "" {
		return fmt.Errorf("telegram: chat_id is required")
	}

	if t.baseURL == "" {
		t.baseURL = defaultBaseURL
	}
	if t.client == nil {
		t.client = &http.Client{Timeout: 30 * time.Second}
	}

	return nil
}

func (t *Telegram) SendStrategy(ctx context.Context, strategy core.Strategy) error {
	return t.sendMessage(ctx, t.formatStrategy(strategy))
}

func (t *Telegram) SendExecution(ctx context.Context, result core.ExecutionResult) error {
	return t.sendMessage(ctx, t.formatExecution(result))
}

func (t *Telegram) formatStrategy(s core.Strategy) string {
	actionEmoji := "⚪"
	switch s.Action {
	case core.ActionLong:
		actionEmoji = "🟢"
	case core.ActionShort:
		actionEmoji = "🔴"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🚨 *TRADING ALERT* %s\n\n", actionEmoji))
	sb.WriteString(fmt.Sprintf("📊 *%s*\n", s.Symbol))
	sb.WriteString(fmt.Sprintf("Action: %s\n", s.Action))
	sb.WriteString(fmt.Sprintf("Confidence: %.0f%%\n", s.Confidence))
	sb.WriteString(fmt.Sprintf("Entry Price: $%.2f\n", s.EntryPrice))
	sb.WriteString(fmt.Sprintf("Stop Loss: %s\n", price(s.StopLoss)))
	sb.WriteString(fmt.Sprintf("Take Profit: %s\n", price(s.TakeProfit)))
	sb.WriteString(fmt.Sprintf("R/R Ratio: %s\n", ratio(s.RiskRewardRatio)))

	sb.WriteString("\n🔑 Key Factors:\n")
	if len(s.KeyFactors) == 0 {
		sb.WriteString("• not specified\n")
	}
	for _, factor := range s.KeyFactors {
		sb.WriteString(fmt.Sprintf("• %s\n", factor))
	}

	if s.RiskLevel != "" {
		sb.WriteString(fmt.Sprintf("\n🎯 Risk: %s\n", s.RiskLevel))
	}
	sb.WriteString(fmt.Sprintf("🎫 Strategy #%d - expires %s", s.ID, s.ExpiresAt.Format("2006-01-02 15:04:05")))

	return sb.String()
}

func (t *Telegram) formatExecution(r core.ExecutionResult) string {
	var sb strings.Builder

	if r.Success {
		sb.WriteString("✅ *EXECUTION FILLED*\n\n")
	} else {
		sb.WriteString("❌ *EXECUTION FAILED*\n\n")
	}

	sb.WriteString(fmt.Sprintf("📊 *%s*\n", r.Symbol))
	sb.WriteString(fmt.Sprintf("Ticket: %s\n", r.Ticket))
	sb.WriteString(fmt.Sprintf("Side: %s\n", r.Side))
	if r.Quantity > 0 {
		sb.WriteString(fmt.Sprintf("Quantity: %v\n", r.Quantity))
	}
	if r.OrderID != "" {
		sb.WriteString(fmt.Sprintf("Order ID: %s\n", r.OrderID))
	}
	sb.WriteString(fmt.Sprintf("Entry: $%.2f\n", r.EntryPrice))
	sb.WriteString(fmt.Sprintf("Stop Loss: %s\n", price(r.StopLoss)))
	sb.WriteString(fmt.Sprintf("Take Profit: %s\n", price(r.TakeProfit)))

	if r.Message != "" {
		sb.WriteString(fmt.Sprintf("💬 %s\n", r.Message))
	}
	if r.Error != "" {
		sb.WriteString(fmt.Sprintf("⚠️ %s\n", r.Error))
	}

	return strings.TrimRight(sb.String(), "\n")
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)

	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("telegram: API error (status %d): %v", resp.StatusCode, result)
	}

	return nil
}

func price(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("$%.2f", *v)
}

func ratio(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *v)
}
