// Package app wires the analysis pipeline together and drives it: fetch
// indicators, persist the snapshot, score it, consult the oracle when the
// score or an open position warrants it, store the resulting strategy and
// fan out alerts. It also owns the expiry sweep and snapshot retention.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"remora/internal/analyzer"
	"remora/internal/config"
	"remora/internal/core"
	"remora/internal/exchange"
	"remora/internal/execution"
	"remora/internal/feed"
	"remora/internal/metrics"
	"remora/internal/notifier"
	"remora/internal/signal"
	"remora/internal/storage/archive"
	"remora/internal/storage/snapshot"
	"remora/internal/strategy"
)

// Deps carries the constructed dependencies for an App. Feed, Snapshots,
// Lifecycle, Notifiers and Metrics are required; the rest degrade features
// when nil: no Analyzer means scoring only, no Exchange means no position
// context, no Execution means alerts cannot be turned into orders, no
// Archiver means no cold audit trail.
type Deps struct {
	Feed      feed.Feed
	Snapshots snapshot.Store
	Lifecycle *strategy.Manager
	Analyzer  *analyzer.Analyzer
	Exchange  exchange.Client
	Execution *execution.Engine
	Archiver  *archive.Archiver
	Notifiers *notifier.Registry
	Metrics   *metrics.Registry
}

// CycleResult summarizes one symbol's analysis cycle.
type CycleResult struct {
	Symbol     string
	SnapshotID int64
	Assessment core.SignalAssessment
	Position   *exchange.Position
	Analyzed   bool
	Result     *analyzer.Result // nil when the oracle was skipped or failed
	Strategy   *core.Strategy   // nil unless a tradable action was stored
	ReportPath string
}

// App is the main application orchestrator.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	feed      feed.Feed
	scorer    *signal.Scorer
	snapshots snapshot.Store
	lifecycle *strategy.Manager
	analyzer  *analyzer.Analyzer
	exchange  exchange.Client
	execution *execution.Engine
	archiver  *archive.Archiver
	notifiers *notifier.Registry
	metrics   *metrics.Registry

	symbols       []string
	interval      time.Duration
	symbolDelay   time.Duration
	sweepInterval time.Duration
	retention     time.Duration

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	closers []func() error
	now     func() time.Time
}

// New creates an App instance over pre-built dependencies. Schedule settings
// come from cfg; see Bootstrap for assembling Deps from config.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Notifiers == nil {
		deps.Notifiers = notifier.NewRegistry()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}

	return &App{
		cfg:           cfg,
		logger:        logger,
		feed:          deps.Feed,
		scorer:        signal.NewScorer(),
		snapshots:     deps.Snapshots,
		lifecycle:     deps.Lifecycle,
		analyzer:      deps.Analyzer,
		exchange:      deps.Exchange,
		execution:     deps.Execution,
		archiver:      deps.Archiver,
		notifiers:     deps.Notifiers,
		metrics:       deps.Metrics,
		symbols:       cfg.Schedule.Symbols,
		interval:      time.Duration(cfg.Schedule.IntervalHours) * time.Hour,
		symbolDelay:   cfg.Schedule.SymbolDelay,
		sweepInterval: cfg.Schedule.SweepInterval,
		retention:     time.Duration(cfg.Storage.Snapshots.RetentionDays) * 24 * time.Hour,
		now:           time.Now,
	}
}

// RegisterNotifier adds an alert channel.
func (a *App) RegisterNotifier(n notifier.Notifier) error {
	return a.notifiers.Register(n)
}

// Metrics returns the metrics registry for the serve surface.
func (a *App) Metrics() *metrics.Registry {
	return a.metrics
}

// Symbols returns the monitored symbols.
func (a *App) Symbols() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, len(a.symbols))
	copy(out, a.symbols)
	return out
}

// Lifecycle returns the strategy lifecycle manager.
func (a *App) Lifecycle() *strategy.Manager {
	return a.lifecycle
}

// Start begins the analysis loop and the expiry sweep. It blocks until ctx
// is cancelled or Stop is called.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}
	a.running = true

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	a.logger.Info("remora starting",
		zap.Strings("symbols", a.symbols),
		zap.Duration("interval", a.interval),
		zap.Bool("oracle", a.analyzer != nil),
		zap.Bool("exchange", a.exchange != nil),
	)
	a.metrics.SetWatchlistSize(len(a.symbols))

	go a.sweepLoop(ctx)

	// Initial run
	a.runCycle(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("remora shutting down")
			a.mu.Lock()
			a.running = false
			a.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
			a.runCycle(ctx)
		}
	}
}

// Stop stops the analysis loop.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// Close releases the stores the app owns. Call after the loop has stopped.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RunOnce performs a single analysis cycle over all symbols.
func (a *App) RunOnce(ctx context.Context) {
	a.runCycle(ctx)
}

// runCycle analyzes every symbol in order, then applies snapshot retention.
func (a *App) runCycle(ctx context.Context) {
	a.mu.RLock()
	symbols := make([]string, len(a.symbols))
	copy(symbols, a.symbols)
	a.mu.RUnlock()

	if len(symbols) == 0 {
		a.logger.Debug("no symbols configured")
		return
	}

	a.logger.Debug("starting analysis cycle", zap.Int("symbols", len(symbols)))

	for i, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && a.symbolDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.symbolDelay):
			}
		}

		if _, err := a.AnalyzeSymbol(ctx, symbol); err != nil {
			a.logger.Error("cycle failed",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
		}
	}

	a.pruneSnapshots(ctx)
}

// AnalyzeSymbol runs the full pipeline for one symbol. The returned
// CycleResult carries whatever stages completed, also on error.
func (a *App) AnalyzeSymbol(ctx context.Context, symbol string) (*CycleResult, error) {
	start := a.now()
	res := &CycleResult{Symbol: symbol}

	snap, err := a.feed.Fetch(ctx, symbol, a.cfg.Feed.Interval)
	if err != nil {
		a.metrics.RecordCycle(symbol, "feed_error", a.now().Sub(start).Seconds())
		return res, err
	}

	id, err := a.snapshots.Save(ctx, snap)
	if err != nil {
		a.metrics.RecordCycle(symbol, "store_error", a.now().Sub(start).Seconds())
		return res, core.WrapError(core.ErrStoreFailed, err)
	}
	res.SnapshotID = id

	res.Assessment = a.scorer.Score(snap)
	res.Position = a.currentPosition(ctx, symbol)

	report := archive.CycleReport{
		Symbol:     symbol,
		Interval:   snap.Interval,
		CycleAt:    start,
		SnapshotID: id,
		Snapshot:   snap,
		Assessment: &res.Assessment,
	}

	if a.analyzer != nil && (res.Assessment.ShouldAnalyze || res.Position != nil) {
		res.Analyzed = true
		if err := a.consultOracle(ctx, symbol, snap, res, &report); err != nil {
			// Archive what the cycle produced so the audit trail stays whole.
			a.archiveReport(ctx, &report, res)
			a.metrics.RecordCycle(symbol, "oracle_error", a.now().Sub(start).Seconds())
			return res, err
		}
	}

	a.archiveReport(ctx, &report, res)
	a.metrics.RecordCycle(symbol, "completed", a.now().Sub(start).Seconds())

	a.logger.Info("cycle complete",
		zap.String("symbol", symbol),
		zap.Float64("strength", res.Assessment.Strength),
		zap.String("direction", string(res.Assessment.Direction)),
		zap.Bool("analyzed", res.Analyzed),
		zap.Bool("strategy_created", res.Strategy != nil),
	)
	return res, nil
}

// consultOracle builds the market context, queries the reasoning model and,
// for a tradable recommendation, persists the strategy and raises alerts.
func (a *App) consultOracle(ctx context.Context, symbol string, snap *core.IndicatorSnapshot, res *CycleResult, report *archive.CycleReport) error {
	mc, err := a.analyzer.BuildContext(ctx, snap, res.Position)
	if err != nil {
		return err
	}
	report.Events = mc.Events

	oracleStart := a.now()
	out, err := a.analyzer.Analyze(ctx, mc)
	if err != nil {
		a.metrics.RecordOracleCall(a.cfg.LLM.Provider, "error", a.now().Sub(oracleStart).Seconds())
		return err
	}
	a.metrics.RecordOracleCall(out.Provider, "ok", a.now().Sub(oracleStart).Seconds())
	a.metrics.AddOracleTokens(out.Provider, out.Usage.InputTokens, out.Usage.OutputTokens)

	res.Result = out
	report.Recommendation = &out.Recommendation
	report.RawResponse = out.Raw
	report.Provider = out.Provider

	if !out.Recommendation.Action.IsTradable() {
		return nil
	}

	conditions, err := json.Marshal(snap)
	if err != nil {
		conditions = nil
	}
	st, err := a.lifecycle.Create(ctx, symbol, &out.Recommendation, out.Raw, string(conditions))
	if err != nil {
		return err
	}
	res.Strategy = st
	report.StrategyID = st.ID
	a.metrics.RecordStrategy(symbol, string(st.Action))

	if err := a.snapshots.MarkSignal(ctx, res.SnapshotID); err != nil {
		a.logger.Warn("mark signal failed",
			zap.Int64("snapshot_id", res.SnapshotID),
			zap.Error(err),
		)
	}

	a.notifyStrategy(ctx, *st)
	return nil
}

// currentPosition asks the venue for an open position. Position context is
// optional; a lookup failure degrades to "flat" with a warning.
func (a *App) currentPosition(ctx context.Context, symbol string) *exchange.Position {
	if a.exchange == nil {
		return nil
	}
	pos, err := a.exchange.GetPosition(ctx, symbol)
	if err != nil {
		a.logger.Warn("position lookup failed",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return nil
	}
	return pos
}

func (a *App) archiveReport(ctx context.Context, report *archive.CycleReport, res *CycleResult) {
	if a.archiver == nil {
		return
	}
	path, err := a.archiver.SaveReport(ctx, *report)
	if err != nil {
		a.logger.Warn("report archive failed",
			zap.String("symbol", report.Symbol),
			zap.Error(err),
		)
		return
	}
	res.ReportPath = path
}

func (a *App) notifyStrategy(ctx context.Context, st core.Strategy) {
	failures := a.notifiers.NotifyStrategy(ctx, st)
	for _, n := range a.notifiers.GetAll() {
		if err, failed := failures[n.Name()]; failed {
			a.logger.Error("strategy alert failed",
				zap.String("channel", n.Name()),
				zap.Error(err),
			)
			a.metrics.RecordNotification(n.Name(), "error")
			continue
		}
		a.metrics.RecordNotification(n.Name(), "sent")
	}
}

func (a *App) notifyExecution(ctx context.Context, result core.ExecutionResult) {
	failures := a.notifiers.NotifyExecution(ctx, result)
	for _, n := range a.notifiers.GetAll() {
		if err, failed := failures[n.Name()]; failed {
			a.logger.Error("execution alert failed",
				zap.String("channel", n.Name()),
				zap.Error(err),
			)
			a.metrics.RecordNotification(n.Name(), "error")
			continue
		}
		a.metrics.RecordNotification(n.Name(), "sent")
	}
}

// ExecuteStrategy places the order for a stored strategy, moves it to OPEN
// on success and records the outcome in the archive and the alert channels.
// usdtAmount zero means the configured default stake.
func (a *App) ExecuteStrategy(ctx context.Context, id int64, usdtAmount float64) (*core.ExecutionResult, error) {
	if a.execution == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "exchange credentials not configured")
	}

	result, err := a.execution.Execute(ctx, id, usdtAmount)
	if err != nil {
		return nil, err
	}

	outcome := "filled"
	if !result.Success {
		outcome = "rejected"
	}
	a.metrics.RecordOrder(result.Symbol, outcome)

	if result.Success {
		if err := a.lifecycle.MarkOpen(ctx, id, result.OrderID); err != nil {
			a.logger.Error("strategy not marked open",
				zap.Int64("strategy_id", id),
				zap.Error(err),
			)
		}
	}

	if a.archiver != nil {
		if st, err := a.lifecycle.Get(ctx, id); err == nil {
			record := archive.ExecutionRecord{
				RecordedAt: a.now(),
				Strategy:   *st,
				Result:     *result,
			}
			if _, err := a.archiver.SaveExecution(ctx, record); err != nil {
				a.logger.Warn("execution archive failed",
					zap.Int64("strategy_id", id),
					zap.Error(err),
				)
			}
		}
	}

	a.notifyExecution(ctx, *result)
	return result, nil
}

// sweepLoop expires overdue strategies on a short interval, so a strategy
// never looks actionable much past its expiry.
func (a *App) sweepLoop(ctx context.Context) {
	if a.sweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(a.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.lifecycle.ExpireOverdue(ctx)
			if err != nil {
				a.logger.Error("expiry sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				a.logger.Info("strategies expired", zap.Int("count", n))
				a.metrics.AddStrategiesExpired(n)
			}
		}
	}
}

// pruneSnapshots applies the retention window after a full cycle round.
func (a *App) pruneSnapshots(ctx context.Context) {
	if a.retention <= 0 {
		return
	}
	cutoff := a.now().Add(-a.retention)
	n, err := a.snapshots.Prune(ctx, cutoff)
	if err != nil {
		a.logger.Warn("snapshot prune failed", zap.Error(err))
		return
	}
	if n > 0 {
		a.logger.Debug("snapshots pruned",
			zap.Int64("rows", n),
			zap.Time("cutoff", cutoff),
		)
	}
}

// GetStats returns application statistics.
func (a *App) GetStats(ctx context.Context) map[string]any {
	a.mu.RLock()
	running := a.running
	a.mu.RUnlock()

	stats := map[string]any{
		"running":   running,
		"symbols":   a.Symbols(),
		"interval":  a.interval.String(),
		"notifiers": len(a.notifiers.GetAll()),
		"oracle":    a.analyzer != nil,
		"exchange":  a.exchange != nil,
	}
	if s, err := a.lifecycle.Stats(ctx); err == nil {
		stats["strategies"] = s
	}
	return stats
}
