package service

import (
	"context"
	"log/slog"
	"time"
)

// HousekeepingService periodically removes stale connections and expired
// pending authorization states to prevent unbounded growth of either.
type HousekeepingService struct {
	Tokens   *TokenStore
	Flow     *OAuthFlow
	Logger   *slog.Logger
	Interval time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given
// interval for connection cleanup. If interval is 0 or negative, defaults to
// 1 hour. Pending-state sweeps always run on their own fixed cadence.
func NewHousekeepingService(tokens *TokenStore, flow *OAuthFlow, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Tokens:   tokens,
		Flow:     flow,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// This is non-blocking and should be called after the store is ready.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started",
		"cleanup_interval", s.Interval, "state_sweep_interval", StateSweepInterval)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

// run is the main background worker loop.
func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	cleanupTicker := time.NewTicker(s.Interval)
	defer cleanupTicker.Stop()

	sweepTicker := time.NewTicker(StateSweepInterval)
	defer sweepTicker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-cleanupTicker.C:
			s.cleanup()
		case <-sweepTicker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup removes connections idle longer than StaleConnectionAge.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	s.Logger.Info("starting housekeeping cleanup")

	removed, err := s.Tokens.Cleanup(ctx)
	if err != nil {
		s.Logger.Error("failed to clean up stale connections", "error", err)
		return
	}

	s.Logger.Info("housekeeping cleanup completed", "removed_connections", removed)
}

// sweep discards pending authorization states past their validity window.
func (s *HousekeepingService) sweep() {
	swept := s.Flow.SweepExpiredStates()
	if swept > 0 {
		s.Logger.Info("swept expired authorization states", "swept", swept)
	}
}
