// Package scheduler runs incremental syncs on a fixed interval and
// serializes them with manual triggers
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/shapeeat/sales-service/internal/pipeline"
	"github.com/shapeeat/sales-service/internal/types"
	"github.com/shapeeat/sales-service/internal/vendlive"
)

// ErrRunInProgress is returned when a sync is requested while one runs
var ErrRunInProgress = errors.New("sync already in progress")

// RunFunc executes one sync
type RunFunc func(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error)

// Config holds the scheduling parameters
type Config struct {
	// Interval between scheduled syncs, 0 disables the ticker
	Interval time.Duration
	// LookbackDays is how many days before today a scheduled sync covers
	LookbackDays int
	Now          func() time.Time
}

// Scheduler periodically syncs the last LookbackDays days. At most one
// sync runs at a time; a tick that finds one running is skipped.
type Scheduler struct {
	run      RunFunc
	logger   *zerolog.Logger
	cfg      Config
	running  atomic.Bool
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	// done is cancelled by Stop and aborts triggered runs
	done       context.Context
	cancelRuns context.CancelFunc
}

// New creates a scheduler around run
func New(run RunFunc, logger *zerolog.Logger, cfg Config) *Scheduler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LookbackDays < 0 {
		cfg.LookbackDays = 0
	}
	l := logger.With().Str("component", "scheduler").Logger()
	done, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		run:        run,
		logger:     &l,
		cfg:        cfg,
		stopChan:   make(chan struct{}),
		done:       done,
		cancelRuns: cancel,
	}
}

// Start blocks running scheduled syncs until ctx is done or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		s.logger.Info().Msg("Scheduled sync disabled")
		return
	}

	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Int("lookback_days", s.cfg.LookbackDays).
		Msg("Starting sync scheduler")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Sync scheduler stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Sync scheduler stopping (stop signal)")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx, s.ScheduledOptions()); err != nil {
				if errors.Is(err, ErrRunInProgress) {
					s.logger.Info().Msg("Skipping scheduled sync, previous run still in progress")
					continue
				}
				s.logger.Error().Err(err).Msg("Scheduled sync failed")
			}
		}
	}
}

// Stop signals the ticker loop to stop, cancels triggered runs and waits
// for them to record their outcome
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.cancelRuns()
	})
	s.wg.Wait()
}

// Running reports whether a sync is in progress
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// ScheduledOptions returns the incremental window of a scheduled sync
func (s *Scheduler) ScheduledOptions() pipeline.Options {
	today := s.cfg.Now().UTC()
	start := today.AddDate(0, 0, -s.cfg.LookbackDays)
	return pipeline.Options{
		Mode:      types.SyncModeIncremental,
		StartDate: start.Format(vendlive.DateLayout),
		EndDate:   today.Format(vendlive.DateLayout),
	}
}

// RunOnce runs a sync synchronously unless one is already running
func (s *Scheduler) RunOnce(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)
	return s.run(ctx, opts)
}

// Trigger starts a sync in the background unless one is already running.
// The run outlives the caller's context and keeps its values; only Stop
// cancels it.
func (s *Scheduler) Trigger(ctx context.Context, opts pipeline.Options) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	release := context.AfterFunc(s.done, cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		defer cancel()
		defer release()

		result, err := s.run(runCtx, opts)
		if err != nil {
			s.logger.Error().Err(err).Str("mode", string(opts.Mode)).Msg("Triggered sync failed")
			return
		}
		s.logger.Info().
			Str("run_id", result.RunID).
			Int("line_items", result.LineItems).
			Msg("Triggered sync completed")
	}()
	return nil
}
