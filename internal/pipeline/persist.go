package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shapeeat/sales-service/internal/http/ratelimit"
	"github.com/shapeeat/sales-service/internal/storage"
)

// ErrDuplicateKey means a key survived deduplication. It is a bug, never
// bad input, and aborts the whole upsert.
var ErrDuplicateKey = errors.New("duplicate key after deduplication")

// Default sub-batch settings
const (
	DefaultBatchSize  = 200
	DefaultBatchPause = 100 * time.Millisecond
)

// PersistResult reports what an upsert wrote
type PersistResult struct {
	Rows       int
	Batches    int
	Duplicates int
}

// UpserterOptions configures an Upserter
type UpserterOptions struct {
	// BatchSize is the sub-batch size; <= 0 sends everything as one batch
	BatchSize int
	// Pause is slept between two sub-batches
	Pause  time.Duration
	Logger *zerolog.Logger
}

// Upserter writes records in bounded sub-batches with overwrite-on-conflict
// semantics. Sub-batches are not wrapped in a common transaction: a failure
// leaves earlier sub-batches applied.
type Upserter struct {
	store     storage.Store
	batchSize int
	pause     time.Duration
	logger    zerolog.Logger
}

// NewUpserter creates an Upserter on store
func NewUpserter(store storage.Store, opts UpserterOptions) *Upserter {
	u := &Upserter{
		store:     store,
		batchSize: opts.BatchSize,
		pause:     opts.Pause,
		logger:    log.Logger,
	}
	if opts.Logger != nil {
		u.logger = *opts.Logger
	}
	return u
}

// Upsert dedupes rows (last write wins), splits them into sub-batches and
// upserts each in order. The first failing sub-batch aborts the rest.
func (u *Upserter) Upsert(ctx context.Context, table string, rows []storage.Record) (*PersistResult, error) {
	deduped, dropped := Dedupe(rows)
	result := &PersistResult{Duplicates: dropped}

	if dropped > 0 {
		u.logger.Debug().
			Str("table", table).
			Int("duplicates", dropped).
			Msg("Dropped duplicate keys before upsert")
	}

	batches := Batches(deduped, u.batchSize)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := checkUnique(batch); err != nil {
			upsertErrors.WithLabelValues(table).Inc()
			return result, fmt.Errorf("%s batch %d: %w", table, i+1, err)
		}

		start := time.Now()
		if err := u.store.Upsert(ctx, table, batch); err != nil {
			upsertErrors.WithLabelValues(table).Inc()
			return result, fmt.Errorf("%s batch %d/%d: %w", table, i+1, len(batches), err)
		}
		batchDuration.WithLabelValues(table).Observe(time.Since(start).Seconds())
		rowsUpserted.WithLabelValues(table).Add(float64(len(batch)))

		result.Rows += len(batch)
		result.Batches++

		if i < len(batches)-1 && u.pause > 0 {
			if err := ratelimit.Sleep(ctx, u.pause); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

// Dedupe keeps one record per key. The last occurrence's value wins and is
// placed at the position of the first occurrence. Returns the number of
// records dropped.
func Dedupe(rows []storage.Record) ([]storage.Record, int) {
	index := make(map[string]int, len(rows))
	out := make([]storage.Record, 0, len(rows))
	for _, row := range rows {
		if i, ok := index[row.Key()]; ok {
			out[i] = row
			continue
		}
		index[row.Key()] = len(out)
		out = append(out, row)
	}
	return out, len(rows) - len(out)
}

// Batches splits rows into consecutive chunks of at most size records.
// size <= 0 yields a single batch.
func Batches(rows []storage.Record, size int) [][]storage.Record {
	if len(rows) == 0 {
		return nil
	}
	if size <= 0 || size >= len(rows) {
		return [][]storage.Record{rows}
	}
	batches := make([][]storage.Record, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		batches = append(batches, rows[start:min(start+size, len(rows))])
	}
	return batches
}

func checkUnique(batch []storage.Record) error {
	seen := make(map[string]struct{}, len(batch))
	for _, row := range batch {
		if _, dup := seen[row.Key()]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, row.Key())
		}
		seen[row.Key()] = struct{}{}
	}
	return nil
}
