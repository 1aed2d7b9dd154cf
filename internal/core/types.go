package core

import (
	"fmt"
	"time"
)

// TradeAction is the direction of a proposed trade.
type TradeAction string

const (
	ActionLong  TradeAction = "LONG"
	ActionShort TradeAction = "SHORT"
	// ActionWait is returned by the reasoning step when conditions do not
	// warrant a trade. It is never persisted as a strategy.
	ActionWait TradeAction = "WAIT"
)

// IsTradable reports whether the action can back a strategy.
func (a TradeAction) IsTradable() bool {
	return a == ActionLong || a == ActionShort
}

// StrategyStatus is the lifecycle state of a persisted strategy.
type StrategyStatus string

const (
	StatusPending   StrategyStatus = "PENDING"
	StatusOpen      StrategyStatus = "OPEN"
	StatusClosed    StrategyStatus = "CLOSED"
	StatusCancelled StrategyStatus = "CANCELLED"
	StatusExpired   StrategyStatus = "EXPIRED"
)

// IsValid reports whether s is one of the five known statuses.
func (s StrategyStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusOpen, StatusClosed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s StrategyStatus) IsTerminal() bool {
	switch s {
	case StatusClosed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Direction is the side an indicator assessment leans toward.
type Direction string

const (
	DirectionBullish Direction = "BULLISH"
	DirectionBearish Direction = "BEARISH"
	DirectionNeutral Direction = "NEUTRAL"
)

// Opposite returns the opposing direction; NEUTRAL has none.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBullish:
		return DirectionBearish
	case DirectionBearish:
		return DirectionBullish
	}
	return DirectionNeutral
}

// IndicatorSnapshot is one observation of a symbol's technical indicators.
// Values are produced by the external technical-analysis service; any field
// may be absent, in which case the rules that need it simply do not fire.
type IndicatorSnapshot struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval,omitempty"`
	Time     time.Time `json:"time"`
	Price    float64   `json:"price"`

	RSI           *float64 `json:"rsi,omitempty"`
	MACD          *float64 `json:"macd,omitempty"`
	MACDSignal    *float64 `json:"macd_signal,omitempty"`
	MACDHistogram *float64 `json:"macd_histogram,omitempty"`
	EMA20         *float64 `json:"ema20,omitempty"`
	EMA200        *float64 `json:"ema200,omitempty"`
	SMA20         *float64 `json:"sma20,omitempty"`
	SMA50         *float64 `json:"sma50,omitempty"`
	SMA200        *float64 `json:"sma200,omitempty"`
	BollUpper     *float64 `json:"bb_upper,omitempty"`
	BollMiddle    *float64 `json:"bb_middle,omitempty"`
	BollLower     *float64 `json:"bb_lower,omitempty"`
	ADX           *float64 `json:"adx,omitempty"`
	ATR14         *float64 `json:"atr14,omitempty"`
	OBV           *float64 `json:"obv,omitempty"`
}

// SignalAssessment is the outcome of scoring a snapshot. Strength grows
// monotonically as qualifying rules fire and is capped at 10.
type SignalAssessment struct {
	ShouldAnalyze bool      `json:"should_analyze"`
	Strength      float64   `json:"strength"`
	Direction     Direction `json:"direction"`
	Reasons       []string  `json:"reasons"`
}

// Strategy is a persisted, time-boxed trade proposal.
type Strategy struct {
	ID              int64          `json:"id"`
	Symbol          string         `json:"symbol"`
	Action          TradeAction    `json:"action"`
	Confidence      float64        `json:"confidence"`
	EntryPrice      float64        `json:"entry_price"`
	StopLoss        *float64       `json:"stop_loss,omitempty"`
	TakeProfit      *float64       `json:"take_profit,omitempty"`
	RiskRewardRatio *float64       `json:"risk_reward_ratio,omitempty"`
	Justification   string         `json:"justification,omitempty"`
	KeyFactors      []string       `json:"key_factors,omitempty"`
	RiskLevel       string         `json:"risk_level,omitempty"`
	Status          StrategyStatus `json:"status"`
	Executed        bool           `json:"executed"`
	TransactionID   string         `json:"transaction_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	ExpiresAt       time.Time      `json:"expires_at"`
	ExecutedAt      *time.Time     `json:"executed_at,omitempty"`
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`

	// Opaque blobs captured at creation time: the raw reasoning response
	// and the market snapshot the proposal was based on.
	LLMResponse      string `json:"llm_response,omitempty"`
	MarketConditions string `json:"market_conditions,omitempty"`
}

// Ticket returns the client-facing identifier used to tag exchange orders.
func (s *Strategy) Ticket() string {
	return fmt.Sprintf("STRATEGY_%d", s.ID)
}

// IsExpired reports whether the strategy's TTL has elapsed at now.
func (s *Strategy) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsExecutable reports whether execute() preconditions (state and TTL) hold.
func (s *Strategy) IsExecutable(now time.Time) bool {
	return s.Status == StatusPending && !s.IsExpired(now)
}

// Recommendation is the structured proposal returned by the reasoning
// oracle. Field names follow the JSON contract of the oracle response.
type Recommendation struct {
	Action           TradeAction `json:"action"`
	Confidence       float64     `json:"confidence"`
	EntryPrice       *float64    `json:"entry_price,omitempty"`
	StopLoss         *float64    `json:"stop_loss,omitempty"`
	TakeProfit       *float64    `json:"take_profit,omitempty"`
	RiskRewardRatio  *float64    `json:"risk_reward_ratio,omitempty"`
	Justification    string      `json:"justification,omitempty"`
	KeyFactors       []string    `json:"key_factors,omitempty"`
	RiskLevel        string      `json:"risk_level,omitempty"`
	TimeframeOutlook string      `json:"timeframe_outlook,omitempty"`
}

// ExecutionResult reports the outcome of one strategy execution attempt.
// A venue rejection is a non-error result with Success=false.
type ExecutionResult struct {
	Success    bool     `json:"success"`
	Ticket     string   `json:"ticket"`
	Symbol     string   `json:"symbol"`
	Side       string   `json:"side"`
	Quantity   float64  `json:"quantity,omitempty"`
	OrderID    string   `json:"order_id,omitempty"`
	EntryPrice float64  `json:"entry_price"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	Message    string   `json:"message,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// StrategyStats aggregates lifecycle counters for reporting.
type StrategyStats struct {
	Total         int64   `json:"total"`
	Pending       int64   `json:"pending"`
	Open          int64   `json:"open"`
	Closed        int64   `json:"closed"`
	Cancelled     int64   `json:"cancelled"`
	Expired       int64   `json:"expired"`
	Executed      int64   `json:"executed"`
	Long          int64   `json:"long"`
	Short         int64   `json:"short"`
	AvgConfidence float64 `json:"avg_confidence"`
	// SuccessRate is closed strategies over executed ones, in percent.
	SuccessRate float64 `json:"success_rate"`
}

// Float returns a pointer to v. Convenience for optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
