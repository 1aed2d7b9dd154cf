// Package analyzer turns snapshot history into a trading recommendation by
// assembling a market context, rendering it into a JSON-mode prompt and
// parsing the model's structured reply.
package analyzer

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"remora/internal/core"
	"remora/internal/exchange"
	"remora/internal/llm"
	"remora/internal/storage/snapshot"
)

const (
	// Context window sizes over stored snapshots.
	recentWindow  = 12
	summaryShort  = 30
	summaryLong   = 60
	eventLookback = 10

	// Oracle call parameters.
	oracleMaxTokens   = 1000
	oracleTemperature = 0.7
)

// MarketContext carries everything the oracle sees for one decision.
type MarketContext struct {
	Symbol    string
	Interval  string
	Now       time.Time
	Latest    *core.IndicatorSnapshot
	Recent    []core.IndicatorSnapshot // newest first, excludes Latest
	Summary30 *snapshot.Summary
	Summary60 *snapshot.Summary
	Events    []string
	Position  *exchange.Position // nil when flat
}

// Result is one oracle decision with its provenance.
type Result struct {
	Recommendation core.Recommendation
	Raw            string
	Provider       string
	Usage          llm.Usage
}

// TokensUsed returns the total token spend for the call.
func (r *Result) TokensUsed() int {
	return r.Usage.InputTokens + r.Usage.OutputTokens
}

// Analyzer builds market contexts and queries the reasoning model.
type Analyzer struct {
	provider  llm.Provider
	snapshots snapshot.Store
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an analyzer over the given provider and snapshot history.
func New(provider llm.Provider, snapshots snapshot.Store, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		provider:  provider,
		snapshots: snapshots,
		logger:    logger,
		now:       time.Now,
	}
}

// BuildContext assembles the decision context for the latest snapshot, which
// must already be persisted: the newest stored row is assumed to be latest
// and is dropped from the recent window.
func (a *Analyzer) BuildContext(ctx context.Context, latest *core.IndicatorSnapshot, position *exchange.Position) (*MarketContext, error) {
	if latest == nil {
		return nil, core.Errorf(core.ErrInvalidParameter, "latest snapshot required")
	}

	recent, err := a.snapshots.Recent(ctx, latest.Symbol, recentWindow)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	if len(recent) > 0 {
		recent = recent[1:]
	}

	sum30, err := a.snapshots.Summary(ctx, latest.Symbol, summaryShort)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	sum60, err := a.snapshots.Summary(ctx, latest.Symbol, summaryLong)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	events, err := a.snapshots.Events(ctx, latest.Symbol, eventLookback)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}

	return &MarketContext{
		Symbol:    latest.Symbol,
		Interval:  latest.Interval,
		Now:       a.now().UTC(),
		Latest:    latest,
		Recent:    recent,
		Summary30: sum30,
		Summary60: sum60,
		Events:    events,
		Position:  position,
	}, nil
}

// Analyze renders mc into the oracle prompt, runs the model in JSON mode and
// parses the reply. A reply the model refuses to shape is an ErrLLMFailed,
// never a zero recommendation.
func (a *Analyzer) Analyze(ctx context.Context, mc *MarketContext) (*Result, error) {
	prompt := buildPrompt(mc)

	resp, err := a.provider.Chat(ctx, llm.ChatRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:    oracleMaxTokens,
		Temperature:  oracleTemperature,
		JSONMode:     true,
	})
	if err != nil {
		return nil, core.WrapError(core.ErrLLMFailed, err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, core.Errorf(core.ErrLLMFailed, "empty response from %s", a.provider.Name())
	}

	rec, err := parseRecommendation(resp.Content)
	if err != nil {
		a.logger.Warn("unparseable oracle reply",
			zap.String("provider", a.provider.Name()),
			zap.String("symbol", mc.Symbol),
			zap.String("raw", resp.Content))
		return nil, err
	}

	tokens := resp.Usage.InputTokens + resp.Usage.OutputTokens
	a.logger.Info("analysis complete",
		zap.String("symbol", mc.Symbol),
		zap.String("action", string(rec.Action)),
		zap.Float64("confidence", rec.Confidence),
		zap.Int("tokens", tokens))

	return &Result{
		Recommendation: *rec,
		Raw:            resp.Content,
		Provider:       a.provider.Name(),
		Usage:          resp.Usage,
	}, nil
}
