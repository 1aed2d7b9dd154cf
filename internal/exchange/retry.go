package exchange

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"remora/internal/core"
)

const (
	// clockSkewRetries bounds how many resync-and-retry rounds a guarded
	// call gets after its first failure.
	clockSkewRetries = 2
	// clockSkewDelay is the fixed pause between retry attempts.
	clockSkewDelay = 500 * time.Millisecond
)

// skewKeywords mark venue errors caused by a drifted request timestamp.
// 10002 is the venue's invalid-timestamp return code.
var skewKeywords = []string{"timestamp", "recv_window", "recv window", "10002", "retries exceeded"}

// Classifier decides whether an error warrants a clock resync and retry.
type Classifier func(error) bool

// IsClockSkew reports whether err looks like a request-timestamp rejection.
func IsClockSkew(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrClockSkew) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range skewKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// Guard wraps venue calls with a bounded resync-and-retry loop. Errors the
// classifier attributes to clock skew trigger a time resync and a retry;
// every other error propagates immediately.
type Guard struct {
	timeSync *TimeSync
	classify Classifier
	retries  int
	delay    time.Duration
	logger   *zap.Logger

	// OnResync, when set, is called before each resync attempt. Used to
	// count retries without coupling this package to the metrics registry.
	OnResync func(op string)
}

// NewGuard creates a retry guard around a time synchronizer.
func NewGuard(ts *TimeSync, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		timeSync: ts,
		classify: IsClockSkew,
		retries:  clockSkewRetries,
		delay:    clockSkewDelay,
		logger:   logger,
	}
}

// SetDelay overrides the pause between retry attempts. Tests shorten it.
func (g *Guard) SetDelay(d time.Duration) {
	g.delay = d
}

// Do runs call, resyncing the clock and retrying when the failure is
// classified as clock skew. Exhausting the retry budget surfaces the last
// error wrapped as a clock-skew failure.
func (g *Guard) Do(ctx context.Context, op string, call func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("clock skew suspected, resyncing",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			if g.OnResync != nil {
				g.OnResync(op)
			}
			if err := g.timeSync.Sync(ctx); err != nil {
				g.logger.Warn("time resync failed", zap.String("op", op), zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.delay):
			}
		}

		err := call(ctx)
		if err == nil {
			return nil
		}
		if !g.classify(err) {
			return err
		}
		lastErr = err
	}
	return core.WrapError(core.ErrClockSkew, lastErr)
}

// Call is the typed form of Guard.Do for venue calls that return a value.
func Call[T any](ctx context.Context, g *Guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
