// Package email implements an SMTP-based email notifier
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"remora/internal/core"
	"remora/internal/notifier"
)

// Email implements the Notifier interface for SMTP email
type Email struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
}

// New creates a new Email notifier
func New(host string, port int, username, password, from string, to []string) *Email {
	return &Email{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
	}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Init(cfg notifier.Config) error {
	if host, ok := cfg.Params["host"].(string); ok {
		e.host = host
	}
	if port, ok := cfg.Params["port"].(int); ok {
		e.port = port
	}
	if username, ok := cfg.Params["username"].(string); ok {
		e.username = username
	}
	if password, ok := cfg.Params["password"].(string); ok {
		e.password = password
	}
	if from, ok := cfg.Params["from"].(string); ok {
		e.from = from
	}
	if to, ok := cfg.Params["to"].([]string); ok {
		e.to = to
	}

	if e.host == "" || e.from == "" || len(e.to) == 0 {
		return fmt.Errorf("email: host, from, and to are required")
	}
	return nil
}

// SendStrategy mails a strategy proposal. SMTP has no context support,
// so ctx is accepted only to satisfy the Notifier interface.
func (e *Email) SendStrategy(ctx context.Context, strategy core.Strategy) error {
	subject := fmt.Sprintf("Remora Strategy #%d: %s %s", strategy.ID, strategy.Action, strategy.Symbol)
	return e.sendEmail(subject, e.formatStrategy(strategy))
}

func (e *Email) SendExecution(ctx context.Context, result core.ExecutionResult) error {
	outcome := "Filled"
	if !result.Success {
		outcome = "FAILED"
	}
	subject := fmt.Sprintf("Remora Execution %s: %s %s", outcome, result.Ticket, result.Symbol)
	return e.sendEmail(subject, e.formatExecution(result))
}

func (e *Email) formatStrategy(s core.Strategy) string {
	var sb strings.Builder

	sb.WriteString("Remora Trading Strategy\n\n")
	sb.WriteString(fmt.Sprintf("Strategy: #%d\n", s.ID))
	sb.WriteString(fmt.Sprintf("Symbol: %s\n", s.Symbol))
	sb.WriteString(fmt.Sprintf("Action: %s\n", s.Action))
	sb.WriteString(fmt.Sprintf("Confidence: %.0f%%\n", s.Confidence))
	sb.WriteString(fmt.Sprintf("Entry Price: $%.2f\n", s.EntryPrice))
	sb.WriteString(fmt.Sprintf("Stop Loss: %s\n", price(s.StopLoss)))
	sb.WriteString(fmt.Sprintf("Take Profit: %s\n", price(s.TakeProfit)))
	if s.RiskRewardRatio != nil {
		sb.WriteString(fmt.Sprintf("Risk/Reward: %.2f\n", *s.RiskRewardRatio))
	}
	if s.RiskLevel != "" {
		sb.WriteString(fmt.Sprintf("Risk Level: %s\n", s.RiskLevel))
	}

	if len(s.KeyFactors) > 0 {
		sb.WriteString("\nKey Factors:\n")
		for _, factor := range s.KeyFactors {
			sb.WriteString(fmt.Sprintf("  - %s\n", factor))
		}
	}
	if s.Justification != "" {
		sb.WriteString(fmt.Sprintf("\nJustification:\n%s\n", s.Justification))
	}

	sb.WriteString(fmt.Sprintf("\nCreated: %s\n", s.CreatedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("Expires: %s\n", s.ExpiresAt.Format("2006-01-02 15:04:05")))

	return sb.String()
}

func (e *Email) formatExecution(r core.ExecutionResult) string {
	var sb strings.Builder

	if r.Success {
		sb.WriteString("Execution filled\n\n")
	} else {
		sb.WriteString("Execution FAILED\n\n")
	}

	sb.WriteString(fmt.Sprintf("Ticket: %s\n", r.Ticket))
	sb.WriteString(fmt.Sprintf("Symbol: %s\n", r.Symbol))
	sb.WriteString(fmt.Sprintf("Side: %s\n", r.Side))
	if r.Quantity > 0 {
		sb.WriteString(fmt.Sprintf("Quantity: %v\n", r.Quantity))
	}
	if r.OrderID != "" {
		sb.WriteString(fmt.Sprintf("Order ID: %s\n", r.OrderID))
	}
	sb.WriteString(fmt.Sprintf("Entry Price: $%.2f\n", r.EntryPrice))
	sb.WriteString(fmt.Sprintf("Stop Loss: %s\n", price(r.StopLoss)))
	sb.WriteString(fmt.Sprintf("Take Profit: %s\n", price(r.TakeProfit)))

	if r.Message != "" {
		sb.WriteString(fmt.Sprintf("\nMessage: %s\n", r.Message))
	}
	if r.Error != "" {
		sb.WriteString(fmt.Sprintf("\nError: %s\n", r.Error))
	}

	return sb.String()
}

func (e *Email) sendEmail(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", e.host, e.port)

	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}

	msg := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s",
		e.from,
		strings.Join(e.to, ","),
		subject,
		body,
	)

	return smtp.SendMail(addr, auth, e.from, e.to, []byte(msg))
}

func price(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("$%.2f", *v)
}
