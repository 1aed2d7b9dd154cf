package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"remora/internal/core"
	"remora/internal/exchange"
	"remora/internal/llm"
	"remora/internal/storage/snapshot"
)

const validReply = `{
	"action": "LONG",
	"confidence": 85,
	"entry_price": 58500,
	"stop_loss": 57200,
	"take_profit": 61200,
	"risk_reward_ratio": 2.3,
	"justification": "Oversold bounce with MACD turning positive",
	"key_factors": ["RSI 24 extreme oversold", "MACD histogram flipped positive", "Price holding SMA50"],
	"timeframe_outlook": "4-12h",
	"risk_level": "MEDIUM"
}`

// stubProvider scripts one Chat exchange and records the request.
type stubProvider struct {
	reply   string
	usage   llm.Usage
	err     error
	lastReq llm.ChatRequest
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ChatResponse{Content: s.reply, Usage: s.usage, FinishReason: "stop"}, nil
}

func testContext() *MarketContext {
	return &MarketContext{
		Symbol:   "BTCUSDT",
		Interval: "240",
		Now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Latest: &core.IndicatorSnapshot{
			Symbol:   "BTCUSDT",
			Interval: "240",
			Price:    58500,
			RSI:      core.Float(24),
		},
	}
}

func TestAnalyzer_Analyze(t *testing.T) {
	provider := &stubProvider{reply: validReply, usage: llm.Usage{InputTokens: 900, OutputTokens: 180}}
	a := New(provider, snapshot.NewMemoryStore(), zap.NewNop())

	res, err := a.Analyze(context.Background(), testContext())
	require.NoError(t, err)

	assert.Equal(t, core.ActionLong, res.Recommendation.Action)
	assert.Equal(t, 85.0, res.Recommendation.Confidence)
	require.NotNil(t, res.Recommendation.EntryPrice)
	assert.Equal(t, 58500.0, *res.Recommendation.EntryPrice)
	require.NotNil(t, res.Recommendation.StopLoss)
	assert.Equal(t, 57200.0, *res.Recommendation.StopLoss)
	assert.Len(t, res.Recommendation.KeyFactors, 3)
	assert.Equal(t, "stub", res.Provider)
	assert.Equal(t, 1080, res.TokensUsed())
	assert.Equal(t, validReply, res.Raw)

	req := provider.lastReq
	assert.True(t, req.JSONMode)
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 1000, req.MaxTokens)
	assert.NotEmpty(t, req.SystemPrompt)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, llm.RoleUser, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "BTCUSDT")
}

func TestAnalyzer_AnalyzeFencedReply(t *testing.T) {
	provider := &stubProvider{reply: "```json\n" + validReply + "\n```"}
	a := New(provider, snapshot.NewMemoryStore(), zap.NewNop())

	res, err := a.Analyze(context.Background(), testContext())
	require.NoError(t, err)
	assert.Equal(t, core.ActionLong, res.Recommendation.Action)
}

func TestAnalyzer_ProviderError(t *testing.T) {
	provider := &stubProvider{err: errors.New("rate limited")}
	a := New(provider, snapshot.NewMemoryStore(), zap.NewNop())

	_, err := a.Analyze(context.Background(), testContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrLLMFailed)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestAnalyzer_EmptyReply(t *testing.T) {
	provider := &stubProvider{reply: "  \n"}
	a := New(provider, snapshot.NewMemoryStore(), zap.NewNop())

	_, err := a.Analyze(context.Background(), testContext())
	assert.ErrorIs(t, err, core.ErrLLMFailed)
}

func TestAnalyzer_GarbageReply(t *testing.T) {
	provider := &stubProvider{reply: "the market looks bullish to me"}
	a := New(provider, snapshot.NewMemoryStore(), zap.NewNop())

	_, err := a.Analyze(context.Background(), testContext())
	assert.ErrorIs(t, err, core.ErrLLMFailed)
}

func TestAnalyzer_BuildContext(t *testing.T) {
	store := snapshot.NewMemoryStore()
	ctx := context.Background()

	// 14 BTC snapshots, oldest first, histogram flipping positive at the end.
	var latest *core.IndicatorSnapshot
	for i := 0; i < 14; i++ {
		hist := -1.0
		if i == 13 {
			hist = 1.0
		}
		s := &core.IndicatorSnapshot{
			Symbol:        "BTCUSDT",
			Interval:      "240",
			Time:          time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * 4 * time.Hour),
			Price:         58000 + float64(i)*10,
			RSI:           core.Float(40),
			MACDHistogram: core.Float(hist),
		}
		_, err := store.Save(ctx, s)
		require.NoError(t, err)
		latest = s
	}
	_, err := store.Save(ctx, &core.IndicatorSnapshot{Symbol: "ETHUSDT", Interval: "240", Price: 3100})
	require.NoError(t, err)

	a := New(&stubProvider{}, store, zap.NewNop())
	mc, err := a.BuildContext(ctx, latest, nil)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", mc.Symbol)
	assert.Equal(t, "240", mc.Interval)
	assert.Same(t, latest, mc.Latest)
	// The stored copy of latest is dropped from the recent window.
	assert.Len(t, mc.Recent, 11)
	assert.Equal(t, 58120.0, mc.Recent[0].Price)

	require.NotNil(t, mc.Summary30)
	assert.Equal(t, 14, mc.Summary30.Points)
	require.NotNil(t, mc.Summary60)
	assert.Contains(t, mc.Events, "macd_cross_up@t-0")
	assert.Nil(t, mc.Position)
}

func TestAnalyzer_BuildContextRequiresLatest(t *testing.T) {
	a := New(&stubProvider{}, snapshot.NewMemoryStore(), zap.NewNop())
	_, err := a.BuildContext(context.Background(), nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
}

func TestBuildPrompt_NewEntry(t *testing.T) {
	prompt := buildPrompt(testContext())

	assert.Contains(t, prompt, "No active position")
	assert.Contains(t, prompt, "- **RSI**: 24 (momentum)")
	assert.Contains(t, prompt, "- **MACD**: N/A / Signal: N/A")
	assert.Contains(t, prompt, "**Current Price**: $58500")
	assert.Contains(t, prompt, "No significant events detected")
	assert.Contains(t, prompt, "Insufficient history for this window")
	assert.Contains(t, prompt, `"action": "LONG|SHORT|WAIT"`)
	assert.Contains(t, prompt, `"risk_reward_ratio"`)
	assert.NotContains(t, prompt, "POSITION MANAGEMENT REQUIRED")
}

func TestBuildPrompt_WithPosition(t *testing.T) {
	mc := testContext()
	mc.Position = &exchange.Position{
		Symbol:       "BTCUSDT",
		Side:         exchange.SideBuy,
		Size:         0.5,
		EntryPrice:   58200,
		MarkPrice:    58900,
		UnrealizedPL: 350,
		Leverage:     3,
	}
	mc.Events = []string{"macd_cross_up@t-1", "rsi_out_of_oversold@t-1"}
	mc.Summary30 = &snapshot.Summary{Points: 30, RSIMin: 22, RSIMax: 61, RSIMean: 41.5, MACDHistMean: 0.42}

	prompt := buildPrompt(mc)

	assert.Contains(t, prompt, "## ACTIVE POSITION:")
	assert.Contains(t, prompt, "Side: Buy (LONG)")
	assert.Contains(t, prompt, "Unrealized PnL: $350.00 (WINNING)")
	assert.Contains(t, prompt, "Mark vs Entry: +1.20%")
	assert.Contains(t, prompt, "POSITION MANAGEMENT REQUIRED")
	assert.Contains(t, prompt, "macd_cross_up@t-1, rsi_out_of_oversold@t-1")
	assert.Contains(t, prompt, "RSI Range: 22.0-61.0 (mean: 41.5)")
}

func TestParseRecommendation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		action  core.TradeAction
	}{
		{"plain object", validReply, false, core.ActionLong},
		{"json fence", "```json\n" + validReply + "\n```", false, core.ActionLong},
		{"bare fence", "```\n" + validReply + "\n```", false, core.ActionLong},
		{"lowercase action", `{"action": "short", "confidence": 60}`, false, core.ActionShort},
		{"padded action", `{"action": " WAIT ", "confidence": 10}`, false, core.ActionWait},
		{"missing action", `{"confidence": 60}`, true, ""},
		{"not json", "hold and pray", true, ""},
		{"wrong shape", `[1, 2, 3]`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := parseRecommendation(tt.content)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrLLMFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.action, rec.Action)
		})
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("  {\"a\":1}  "))
	assert.Equal(t, "", stripFences("```json\n```"))
}

func TestBuildPrompt_StableAcrossCalls(t *testing.T) {
	mc := testContext()
	if buildPrompt(mc) != buildPrompt(mc) {
		t.Error("prompt rendering must be deterministic")
	}
}

func TestBuildPrompt_RecentCount(t *testing.T) {
	mc := testContext()
	mc.Recent = make([]core.IndicatorSnapshot, 7)
	prompt := buildPrompt(mc)
	assert.Contains(t, prompt, "7 snapshots available")
	assert.False(t, strings.Contains(prompt, "0 snapshots available"))
}
