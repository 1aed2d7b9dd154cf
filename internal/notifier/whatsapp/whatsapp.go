// Package whatsapp delivers alerts through the CallMeBot WhatsApp gateway.
//
// CallMeBot is a free relay: the receiving phone number authorizes the
// bot once and gets an API key back. Messages are plain text passed as
// an URL-encoded query parameter on a GET request.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"remora/internal/core"
	"remora/internal/notifier"
)

const defaultBaseURL = "https://api.callmebot.com/whatsapp.php"

// WhatsApp implements the Notifier interface for CallMeBot.
type WhatsApp struct {
	phone   string
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates a new WhatsApp notifier
func New(phone, apiKey string) *WhatsApp {
	return &WhatsApp{
		phone:   phone,
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WhatsApp) Name() string {
	return "whatsapp"
}

func (w *WhatsApp) Init(cfg notifier.Config) error {
	if phone, ok := cfg.Params["phone"].(string); ok {
		w.phone = phone
	}
	if apiKey, ok := cfg.Params["api_key"].(string); ok {
		w.apiKey = apiKey
	}

	if w.phone == "" {
		return fmt.Errorf("whatsapp: phone is required")
	}
	if w.apiKey == "" {
		return fmt.Errorf("whatsapp: api_key is required")
	}

	if w.baseURL == "" {
		w.baseURL = defaultBaseURL
	}
	if w.client == nil {
		w.client = &http.Client{Timeout: 10 * time.Second}
	}

	return nil
}

func (w *WhatsApp) SendStrategy(ctx context.Context, strategy core.Strategy) error {
	return w.send(ctx, w.formatStrategy(strategy))
}

func (w *WhatsApp) SendExecution(ctx context.Context, result core.ExecutionResult) error {
	return w.send(ctx, w.formatExecution(result))
}

func (w *WhatsApp) formatStrategy(s core.Strategy) string {
	actionEmoji := "⚪"
	switch s.Action {
	case core.ActionLong:
		actionEmoji = "🟢"
	case core.ActionShort:
		actionEmoji = "🔴"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🚨 TRADING ALERT %s\n\n", actionEmoji))
	sb.WriteString(fmt.Sprintf("📊 %s\n", s.Symbol))
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

func (w *WhatsApp) formatExecution(r core.ExecutionResult) string {
	var sb strings.Builder

	if r.Success {
		sb.WriteString("✅ EXECUTION FILLED\n\n")
	} else {
		sb.WriteString("❌ EXECUTION FAILED\n\n")
	}

	sb.WriteString(fmt.Sprintf("📊 %s\n", r.Symbol))
	sb.WriteString(fmt.Sprintf("Ticket: %s\n", r.Ticket))
	sb.WriteString(fmt.Sprintf("Side: %s\n", r.Side))
	if r.Quantity > 0 {
		sb.WriteString(fmt.Sprintf("Quantity: %v\n", r.Quantity))
	}
	sb.WriteString(fmt.Sprintf("Entry: $%.2f\n", r.EntryPrice))

	if r.Message != "" {
		sb.WriteString(fmt.Sprintf("💬 %s\n", r.Message))
	}
	if r.Error != "" {
		sb.WriteString(fmt.Sprintf("⚠️ %s\n", r.Error))
	}

	return strings.TrimRight(sb.String(), "\n")
}

func (w *WhatsApp) send(ctx context.Context, text string) error {
	query := url.Values{}
	query.Set("phone", w.phone)
	query.Set("text", text)
	query.Set("apikey", w.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("whatsapp: failed to create request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp: gateway error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
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
