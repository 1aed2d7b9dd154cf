package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remora/internal/analyzer"
	"remora/internal/config"
	"remora/internal/core"
	"remora/internal/exchange"
	"remora/internal/exchange/mock"
	"remora/internal/execution"
	"remora/internal/feed"
	"remora/internal/llm"
	"remora/internal/notifier"
	"remora/internal/storage/archive"
	"remora/internal/storage/snapshot"
	strategystore "remora/internal/storage/strategy"
	"remora/internal/strategy"
)

const longReply = `{
	"action": "LONG",
	"confidence": 85,
	"entry_price": 58500,
	"stop_loss": 57200,
	"take_profit": 61200,
	"risk_reward_ratio": 2.3,
	"justification": "Oversold bounce with MACD turning positive",
	"key_factors": ["RSI extreme oversold", "MACD histogram flipping"],
	"timeframe_outlook": "4-12h",
	"risk_level": "MEDIUM"
}`

const waitReply = `{
	"action": "WAIT",
	"confidence": 40,
	"justification": "No clear edge at current levels",
	"key_factors": ["Mixed momentum"],
	"risk_level": "LOW"
}`

type stubFeed struct {
	snap  *core.IndicatorSnapshot
	err   error
	calls int
}

var _ feed.Feed = (*stubFeed)(nil)

func (f *stubFeed) Fetch(ctx context.Context, symbol, interval string) (*core.IndicatorSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s := *f.snap
	s.Symbol = symbol
	s.Interval = interval
	return &s, nil
}

type stubProvider struct {
	reply string
	err   error
	calls int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ChatResponse{
		Content: p.reply,
		Usage:   llm.Usage{InputTokens: 800, OutputTokens: 120},
	}, nil
}

type captureNotifier struct {
	name       string
	fail       bool
	strategies []core.Strategy
	executions []core.ExecutionResult
}

func (c *captureNotifier) Name() string                   { return c.name }
func (c *captureNotifier) Init(cfg notifier.Config) error { return nil }

func (c *captureNotifier) SendStrategy(ctx context.Context, s core.Strategy) error {
	if c.fail {
		return errors.New("channel down")
	}
	c.strategies = append(c.strategies, s)
	return nil
}

func (c *captureNotifier) SendExecution(ctx context.Context, r core.ExecutionResult) error {
	if c.fail {
		return errors.New("channel down")
	}
	c.executions = append(c.executions, r)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Schedule.Symbols = []string{"BTCUSDT"}
	cfg.Schedule.SymbolDelay = 0
	cfg.Storage.Snapshots.Driver = "memory"
	cfg.Storage.Strategies.Driver = "memory"
	return cfg
}

func snapshotWithRSI(rsi float64) *core.IndicatorSnapshot {
	return &core.IndicatorSnapshot{
		Symbol:   "BTCUSDT",
		Interval: "240",
		Time:     time.Now().UTC(),
		Price:    58500,
		RSI:      core.Float(rsi),
	}
}

// testParts bundles the fakes a test wants wired into an App.
type testParts struct {
	feed     *stubFeed
	provider *stubProvider
	venue    *mock.MockExchange
	channel  *captureNotifier
}

func newTestApp(t *testing.T, parts testParts) *App {
	t.Helper()

	snapshots := snapshot.NewMemoryStore()
	mgr := strategy.NewManager(strategystore.NewMemoryStore(), nil)

	deps := Deps{
		Feed:      parts.feed,
		Snapshots: snapshots,
		Lifecycle: mgr,
	}
	if parts.provider != nil {
		deps.Analyzer = analyzer.New(parts.provider, snapshots, nil)
	}
	if parts.venue != nil {
		deps.Exchange = parts.venue
		deps.Execution = execution.NewEngine(execution.DefaultConfig(), parts.venue, mgr, nil)
	}
	if parts.channel != nil {
		reg := notifier.NewRegistry()
		require.NoError(t, reg.Register(parts.channel))
		deps.Notifiers = reg
	}

	backend, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	deps.Archiver = archive.NewArchiver(backend)

	return New(testConfig(), deps, nil)
}

func TestApp_New(t *testing.T) {
	a := newTestApp(t, testParts{feed: &stubFeed{snap: snapshotWithRSI(50)}})
	require.NotNil(t, a)

	stats := a.GetStats(context.Background())
	assert.False(t, stats["running"].(bool))
	assert.Equal(t, []string{"BTCUSDT"}, stats["symbols"])
}

func TestApp_RegisterNotifier_Duplicate(t *testing.T) {
	a := newTestApp(t, testParts{feed: &stubFeed{snap: snapshotWithRSI(50)}})

	require.NoError(t, a.RegisterNotifier(&captureNotifier{name: "dup"}))
	err := a.RegisterNotifier(&captureNotifier{name: "dup"})
	require.Error(t, err)
}

func TestApp_AnalyzeSymbol_CreatesStrategy(t *testing.T) {
	f := &stubFeed{snap: snapshotWithRSI(22)}
	p := &stubProvider{reply: longReply}
	ch := &captureNotifier{name: "capture"}
	a := newTestApp(t, testParts{feed: f, provider: p, channel: ch})
	ctx := context.Background()

	res, err := a.AnalyzeSymbol(ctx, "BTCUSDT")
	require.NoError(t, err)

	assert.True(t, res.Analyzed)
	assert.Equal(t, 1, p.calls)
	require.NotNil(t, res.Strategy)
	assert.Equal(t, core.StatusPending, res.Strategy.Status)
	assert.Equal(t, core.ActionLong, res.Strategy.Action)
	assert.Equal(t, "BTCUSDT", res.Strategy.Symbol)
	assert.Equal(t, 85.0, res.Strategy.Confidence)

	require.Len(t, ch.strategies, 1)
	assert.Equal(t, res.Strategy.ID, ch.strategies[0].ID)

	require.NotEmpty(t, res.ReportPath)
	report, err := a.archiver.ReadReport(ctx, res.ReportPath)
	require.NoError(t, err)
	assert.Equal(t, res.Strategy.ID, report.StrategyID)
	assert.Equal(t, "stub", report.Provider)
	require.NotNil(t, report.Recommendation)
	assert.Equal(t, core.ActionLong, report.Recommendation.Action)
}

func TestApp_AnalyzeSymbol_QuietMarketSkipsOracle(t *testing.T) {
	f := &stubFeed{snap: snapshotWithRSI(50)}
	p := &stubProvider{reply: longReply}
	a := newTestApp(t, testParts{feed: f, provider: p})
	ctx := context.Background()

	res, err := a.AnalyzeSymbol(ctx, "BTCUSDT")
	require.NoError(t, err)

	assert.False(t, res.Analyzed)
	assert.Equal(t, 0, p.calls)
	assert.Nil(t, res.Strategy)
	// The quiet cycle is still archived for the audit trail.
	assert.NotEmpty(t, res.ReportPath)
}

func TestApp_AnalyzeSymbol_OpenPositionForcesAnalysis(t *testing.T) {
	f := &stubFeed{snap: snapshotWithRSI(50)}
	p := &stubProvider{reply: waitReply}
	venue := mock.New()
	venue.SetPosition(exchange.Position{
		Symbol: "BTCUSDT",
		Side:   "Buy",
		Size:   0.01,
	})
	a := newTestApp(t, testParts{feed: f, provider: p, venue: venue})

	res, err := a.AnalyzeSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.True(t, res.Analyzed)
	assert.Equal(t, 1, p.calls)
	assert.Nil(t, res.Strategy, "WAIT must not create a strategy")
}

func TestApp_AnalyzeSymbol_FeedError(t *testing.T) {
	f := &stubFeed{err: errors.New("service unavailable")}
	a := newTestApp(t, testParts{feed: f})

	res, err := a.AnalyzeSymbol(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Zero(t, res.SnapshotID)
	assert.Empty(t, res.ReportPath)
}

func TestApp_AnalyzeSymbol_OracleFailureStillArchives(t *testing.T) {
	f := &stubFeed{snap: snapshotWithRSI(22)}
	p := &stubProvider{err: errors.New("rate limited")}
	a := newTestApp(t, testParts{feed: f, provider: p})
	ctx := context.Background()

	res, err := a.AnalyzeSymbol(ctx, "BTCUSDT")
	require.Error(t, err)
	assert.True(t, res.Analyzed)
	assert.Nil(t, res.Result)
	assert.Nil(t, res.Strategy)

	paths, listErr := a.archiver.ListReports(ctx, "BTCUSDT")
	require.NoError(t, listErr)
	require.Len(t, paths, 1)
	report, readErr := a.archiver.ReadReport(ctx, paths[0])
	require.NoError(t, readErr)
	require.NotNil(t, report.Assessment)
	assert.Nil(t, report.Recommendation)
}

func TestApp_RunOnce(t *testing.T) {
	f := &stubFeed{snap: snapshotWithRSI(22)}
	p := &stubProvider{reply: longReply}
	ch := &captureNotifier{name: "capture"}
	a := newTestApp(t, testParts{feed: f, provider: p, channel: ch})

	a.RunOnce(context.Background())

	assert.Equal(t, 1, f.calls)
	assert.Len(t, ch.strategies, 1)
}

func TestApp_ExecuteStrategy(t *testing.T) {
	venue := mock.New()
	venue.SetPrice("BTCUSDT", 58500)
	ch := &captureNotifier{name: "capture"}
	a := newTestApp(t, testParts{feed: &stubFeed{snap: snapshotWithRSI(50)}, venue: venue, channel: ch})
	ctx := context.Background()

	rec := &core.Recommendation{
		Action:     core.ActionLong,
		Confidence: 80,
		EntryPrice: core.Float(58500),
		TakeProfit: core.Float(61000),
		StopLoss:   core.Float(56930),
	}
	st, err := a.lifecycle.Create(ctx, "BTCUSDT", rec, "", "")
	require.NoError(t, err)

	result, err := a.ExecuteStrategy(ctx, st.ID, 50)
	require.NoError(t, err)
	assert.True(t, result.Success)

	stored, err := a.lifecycle.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusOpen, stored.Status)
	assert.True(t, stored.Executed)

	require.Len(t, ch.executions, 1)
	assert.Equal(t, st.Ticket(), ch.executions[0].Ticket)

	records, err := a.archiver.ListExecutions(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestApp_ExecuteStrategy_NoExchange(t *testing.T) {
	a := newTestApp(t, testParts{feed: &stubFeed{snap: snapshotWithRSI(50)}})

	_, err := a.ExecuteStrategy(context.Background(), 1, 50)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfigMissing)
}

func TestApp_NotifierFailureDoesNotBlockStrategy(t *testing.T) {
	f := &stubFeed{snap: snapshotWithRSI(22)}
	p := &stubProvider{reply: longReply}
	ch := &captureNotifier{name: "capture", fail: true}
	a := newTestApp(t, testParts{feed: f, provider: p, channel: ch})

	res, err := a.AnalyzeSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, res.Strategy, "delivery failure must not undo the strategy")
}

func TestApp_StartStop(t *testing.T) {
	a := newTestApp(t, testParts{feed: &stubFeed{snap: snapshotWithRSI(50)}})
	a.interval = 50 * time.Millisecond
	a.sweepInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err := a.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	stats := a.GetStats(context.Background())
	assert.False(t, stats["running"].(bool))
}

func TestApp_CannotStartTwice(t *testing.T) {
	a := newTestApp(t, testParts{feed: &stubFeed{snap: snapshotWithRSI(50)}})
	a.interval = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.Start(ctx)
	time.Sleep(50 * time.Millisecond)

	err := a.Start(context.Background())
	require.Error(t, err)

	a.Stop()
	time.Sleep(50 * time.Millisecond)
}
