// Package notifier fans trading alerts out to configured channels.
//
// Two alert kinds exist: a strategy proposal produced by an analysis
// cycle, and the outcome of executing a strategy on the exchange.
// Delivery is best-effort; channel failures are reported per channel
// and never abort the cycle that raised the alert.
package notifier

import (
	"context"

	"remora/internal/core"
)

// Config selects and parameterizes a single notification channel.
type Config struct {
	Type   string         `mapstructure:"type"`
	Params map[string]any `mapstructure:"params"`
}

// Notifier delivers alerts to one channel.
type Notifier interface {
	// Name returns the unique identifier for this channel.
	Name() string

	// Init applies channel parameters from configuration.
	Init(cfg Config) error

	// SendStrategy delivers a new strategy proposal.
	SendStrategy(ctx context.Context, strategy core.Strategy) error

	// SendExecution delivers the outcome of an execution attempt,
	// successful or not.
	SendExecution(ctx context.Context, result core.ExecutionResult) error
}
