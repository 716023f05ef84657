// Package sweepers runs periodic maintenance over persisted sync state
package sweepers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shapeeat/sales-service/internal/storage"
)

// StaleRunReason is recorded on runs found still running after StaleAfter
const StaleRunReason = "sync interrupted before completion"

// Config controls the sync run sweeper
type Config struct {
	Interval time.Duration

	// StaleAfter is how long a run may stay running before it is failed
	StaleAfter time.Duration

	// Retention is how long finished runs are kept; <= 0 keeps them forever
	Retention time.Duration

	// SyncRunning reports a sync in progress in this process. While it
	// returns true no run is failed, however long it has been running.
	SyncRunning func() bool

	Now func() time.Time
}

// SyncRunSweeper fails runs left running by a crashed process and prunes old
// run history
type SyncRunSweeper struct {
	store    storage.Store
	logger   *zerolog.Logger
	cfg      Config
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewSyncRunSweeper creates a new sweeper over store
func NewSyncRunSweeper(store storage.Store, logger *zerolog.Logger, cfg Config) *SyncRunSweeper {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SyncRunSweeper{
		store:    store,
		logger:   logger,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Start sweeps once, then on every interval tick until ctx is done or Stop
// is called. A non-positive interval only runs the initial sweep.
func (s *SyncRunSweeper) Start(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Sync run sweep failed")
	}
	if s.cfg.Interval <= 0 {
		return
	}

	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Dur("stale_after", s.cfg.StaleAfter).
		Dur("retention", s.cfg.Retention).
		Msg("Starting sync run sweeper")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Sync run sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Sync run sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Sync run sweep failed")
			}
		}
	}
}

// Stop signals the sweeper to stop
func (s *SyncRunSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Result counts what one sweep changed
type Result struct {
	Failed int
	Pruned int
}

// Sweep fails stale runs, then prunes finished runs past retention
func (s *SyncRunSweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	now := s.cfg.Now()

	if s.cfg.StaleAfter > 0 && s.cfg.SyncRunning != nil && s.cfg.SyncRunning() {
		s.logger.Debug().Msg("Sync in progress, not failing stale runs")
	} else if s.cfg.StaleAfter > 0 {
		n, err := s.store.FailStaleSyncRuns(ctx, now.Add(-s.cfg.StaleAfter), StaleRunReason)
		if err != nil {
			return res, fmt.Errorf("failed to fail stale sync runs: %w", err)
		}
		res.Failed = n
	}

	if s.cfg.Retention > 0 {
		n, err := s.store.DeleteSyncRunsBefore(ctx, now.Add(-s.cfg.Retention))
		if err != nil {
			return res, fmt.Errorf("failed to prune sync runs: %w", err)
		}
		res.Pruned = n
	}

	if res.Failed > 0 || res.Pruned > 0 {
		s.logger.Info().
			Int("failed", res.Failed).
			Int("pruned", res.Pruned).
			Msg("Swept sync runs")
	}
	return res, nil
}
