// Package pipeline syncs VendLive sales into the orders and sales tables
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/shapeeat/sales-service/internal/normalize"
	"github.com/shapeeat/sales-service/internal/storage"
	"github.com/shapeeat/sales-service/internal/types"
	"github.com/shapeeat/sales-service/internal/vendlive"
)

// ErrInvalidOptions is returned for a malformed date range or mode
var ErrInvalidOptions = errors.New("invalid sync options")

// Deps are the collaborators of a sync run
type Deps struct {
	Source SalesSource
	Store  storage.Store
	Logger *zerolog.Logger
	// Now is the clock used for run timestamps and missing sale dates
	Now func() time.Time
}

// Options selects what a sync run covers
type Options struct {
	Mode types.SyncMode
	// StartDate and EndDate are upstream dates (YYYY-MM-DD), both optional
	StartDate string
	EndDate   string
	PageSize  int
	// MaxPages overrides the configured page cap when > 0
	MaxPages int
	// BatchSize is the line item sub-batch size, 0 means DefaultBatchSize
	BatchSize  int
	BatchPause time.Duration
}

// Result summarizes a sync run
type Result struct {
	RunID          string          `json:"runId"`
	Mode           types.SyncMode  `json:"mode"`
	Pages          int             `json:"pages"`
	SalesSeen      int             `json:"salesSeen"`
	LineItems      int             `json:"lineItems"`
	OrderSummaries int             `json:"orderSummaries"`
	Skipped        int             `json:"skipped"`
	Normalizer     normalize.Stats `json:"normalizer"`
	Duration       time.Duration   `json:"duration"`
}

// Validate checks the mode and date range
func (o Options) Validate() error {
	switch o.Mode {
	case types.SyncModeIncremental, types.SyncModeFull:
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidOptions, o.Mode)
	}

	var start, end time.Time
	var err error
	if o.StartDate != "" {
		if start, err = time.Parse(vendlive.DateLayout, o.StartDate); err != nil {
			return fmt.Errorf("%w: start date %q", ErrInvalidOptions, o.StartDate)
		}
	}
	if o.EndDate != "" {
		if end, err = time.Parse(vendlive.DateLayout, o.EndDate); err != nil {
			return fmt.Errorf("%w: end date %q", ErrInvalidOptions, o.EndDate)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("%w: end date %s before start date %s", ErrInvalidOptions, o.EndDate, o.StartDate)
	}
	return nil
}

// Run drives paginator, normalizer and upserter over the requested range.
// In full mode both tables are wiped first; the wipe is not atomic with the
// reload. Any error aborts the run and is recorded on the sync run row.
func Run(ctx context.Context, deps Deps, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := log.Logger
	if deps.Logger != nil {
		logger = *deps.Logger
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	runID := uuid.NewString()
	logger = logger.With().Str("run_id", runID).Str("mode", string(opts.Mode)).Logger()

	ctx, span := otel.Tracer("github.com/shapeeat/sales-service/internal/pipeline").Start(ctx, "pipeline.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("sync.run_id", runID),
		attribute.String("sync.mode", string(opts.Mode)),
		attribute.String("sync.start_date", opts.StartDate),
		attribute.String("sync.end_date", opts.EndDate),
	)

	started := now()
	run := &types.SyncRun{
		ID:        runID,
		Mode:      opts.Mode,
		Status:    types.SyncRunRunning,
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
		StartedAt: started.UTC(),
	}
	if err := deps.Store.CreateSyncRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record sync run: %w", err)
	}

	logger.Info().
		Str("start_date", opts.StartDate).
		Str("end_date", opts.EndDate).
		Msg("Starting sync run")

	result := &Result{RunID: runID, Mode: opts.Mode}
	err := execute(ctx, deps, opts, now, logger, result)
	result.Duration = time.Since(started)

	run.Pages = result.Pages
	run.SalesSeen = result.SalesSeen
	run.LineItems = result.LineItems
	run.OrderSummaries = result.OrderSummaries
	run.Skipped = result.Skipped
	completed := now().UTC()
	run.CompletedAt = &completed

	syncDuration.WithLabelValues(string(opts.Mode)).Observe(result.Duration.Seconds())
	span.SetAttributes(
		attribute.Int("sync.pages", result.Pages),
		attribute.Int("sync.line_items", result.LineItems),
		attribute.Int("sync.order_summaries", result.OrderSummaries),
	)

	if err != nil {
		msg := err.Error()
		run.Status = types.SyncRunFailed
		run.Error = &msg
		syncRuns.WithLabelValues(string(opts.Mode), string(types.SyncRunFailed)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		logger.Error().Err(err).Int("pages", result.Pages).Msg("Sync run failed")
	} else {
		run.Status = types.SyncRunCompleted
		syncRuns.WithLabelValues(string(opts.Mode), string(types.SyncRunCompleted)).Inc()
		lastSuccess.SetToCurrentTime()
		logger.Info().
			Int("pages", result.Pages).
			Int("sales", result.SalesSeen).
			Int("line_items", result.LineItems).
			Int("order_summaries", result.OrderSummaries).
			Int("skipped", result.Skipped).
			Dur("duration", result.Duration).
			Msg("Sync run completed")
	}

	// the run row is written even when ctx was cancelled
	if finishErr := deps.Store.FinishSyncRun(context.WithoutCancel(ctx), run); finishErr != nil {
		logger.Warn().Err(finishErr).Msg("Failed to record sync run outcome")
	}

	return result, err
}

func execute(ctx context.Context, deps Deps, opts Options, now func() time.Time, logger zerolog.Logger, result *Result) error {
	if opts.Mode == types.SyncModeFull {
		logger.Warn().Msg("Full sync: deleting every row of orders and sales")
		for _, table := range []string{storage.TableOrders, storage.TableSales} {
			if err := deps.Store.DeleteAll(ctx, table); err != nil {
				return fmt.Errorf("failed to wipe %s: %w", table, err)
			}
		}
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	lines := NewUpserter(deps.Store, UpserterOptions{
		BatchSize: batchSize,
		Pause:     opts.BatchPause,
		Logger:    &logger,
	})
	// order summaries per page are few, one batch each
	summaries := NewUpserter(deps.Store, UpserterOptions{Logger: &logger})

	norm := normalize.New(normalize.WithClock(now), normalize.WithLogger(logger))

	query := vendlive.SalesQuery{
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
		PageSize:  opts.PageSize,
		MaxPages:  opts.MaxPages,
	}

	undecodable := 0
	pages, err := FetchPhase(ctx, deps.Source, query, logger, func(page *FetchResult) error {
		undecodable += page.Undecodable
		parsed := ParsePhase(norm, page.Sales)
		result.Skipped += page.Undecodable + parsed.Empty + parsed.NoID

		written, err := lines.Upsert(ctx, storage.TableOrders, storage.Records(parsed.LineItems))
		if err != nil {
			return fmt.Errorf("page %d: %w", page.Page, err)
		}
		result.LineItems += written.Rows

		written, err = summaries.Upsert(ctx, storage.TableSales, storage.Records(parsed.Summaries))
		if err != nil {
			return fmt.Errorf("page %d: %w", page.Page, err)
		}
		result.OrderSummaries += written.Rows
		return nil
	})
	result.Pages = pages
	result.Normalizer = norm.Stats()
	// every upstream record counts, including those that failed to decode
	result.SalesSeen = result.Normalizer.SalesSeen + undecodable
	return err
}
