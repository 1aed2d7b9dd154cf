package exchange

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimeSync tracks the offset between local time and the venue's server
// time. Signed requests use the offset-corrected timestamp so that a drifted
// host clock does not fall outside the venue's receive window.
type TimeSync struct {
	serverTime func(ctx context.Context) (time.Time, error)
	logger     *zap.Logger

	mu       sync.RWMutex
	offset   int64 // milliseconds, server minus local
	lastSync time.Time
}

// NewTimeSync creates a time synchronizer around a server-time query.
func NewTimeSync(serverTime func(ctx context.Context) (time.Time, error), logger *zap.Logger) *TimeSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeSync{
		serverTime: serverTime,
		logger:     logger,
	}
}

// Sync queries the venue clock and refreshes the stored offset. Network
// latency is assumed symmetric, so half the round trip is credited to the
// local timestamp before comparing.
func (ts *TimeSync) Sync(ctx context.Context) error {
	localBefore := time.Now().UnixMilli()
	server, err := ts.serverTime(ctx)
	if err != nil {
		return err
	}
	localAfter := time.Now().UnixMilli()

	local := localBefore + (localAfter-localBefore)/2
	offset := server.UnixMilli() - local

	ts.mu.Lock()
	ts.offset = offset
	ts.lastSync = time.Now()
	ts.mu.Unlock()

	ts.logger.Debug("time sync",
		zap.Int64("offset_ms", offset),
		zap.Int64("server_ms", server.UnixMilli()),
		zap.Int64("local_ms", local))
	return nil
}

// NowMilli returns the current epoch milliseconds adjusted by the offset.
func (ts *TimeSync) NowMilli() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return time.Now().UnixMilli() + ts.offset
}

// Offset returns the current offset in milliseconds.
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}

// LastSync returns when the offset was last refreshed; zero if never.
func (ts *TimeSync) LastSync() time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.lastSync
}
