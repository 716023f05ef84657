package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shapeeat/sales-service/internal/types"
)

// Table names
const (
	TableOrders   = "orders"
	TableSales    = "sales"
	TableSyncRuns = "sync_runs"
)

// ConflictColumn is the unique key both upsert targets conflict on
const ConflictColumn = "vendlive_id"

var (
	// ErrUnknownTable is returned for a table outside the upsert targets
	ErrUnknownTable = errors.New("unknown table")
	// ErrNotFound is returned when a sync run does not exist
	ErrNotFound = errors.New("not found")
)

// Record is a row that can be upserted on its unique key
type Record interface {
	Key() string
	Columns() []string
	Values() ([]any, error)
}

// Filter selects persisted rows. The range is [Start, End); zero bounds are
// open.
type Filter struct {
	Start    time.Time
	End      time.Time
	VenueID  string
	Category string
	Status   types.Status
	Limit    int
}

// Matches reports whether created falls in the filter's range
func (f Filter) Matches(created time.Time) bool {
	if !f.Start.IsZero() && created.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && !created.Before(f.End) {
		return false
	}
	return true
}

// Store is the persistence boundary of the service. Implementations must
// overwrite rows whose key already exists and reject a batch containing the
// same key twice.
type Store interface {
	// Upsert inserts or overwrites rows in table on ConflictColumn
	Upsert(ctx context.Context, table string, rows []Record) error

	// DeleteAll removes every row of table
	DeleteAll(ctx context.Context, table string) error

	// QueryLineItems returns line items ordered by created_at
	QueryLineItems(ctx context.Context, filter Filter) ([]types.LineItem, error)

	// QueryOrderSummaries returns order summaries ordered by created_at
	QueryOrderSummaries(ctx context.Context, filter Filter) ([]types.OrderSummary, error)

	// CreateSyncRun records the start of a sync run
	CreateSyncRun(ctx context.Context, run *types.SyncRun) error

	// FinishSyncRun stores the final state of a sync run
	FinishSyncRun(ctx context.Context, run *types.SyncRun) error

	// ListSyncRuns returns the most recent runs first
	ListSyncRuns(ctx context.Context, limit int) ([]types.SyncRun, error)

	// FailStaleSyncRuns marks runs still running that started before cutoff
	// as failed with reason. Returns the number of runs updated.
	FailStaleSyncRuns(ctx context.Context, cutoff time.Time, reason string) (int, error)

	// DeleteSyncRunsBefore removes finished runs started before cutoff
	DeleteSyncRunsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Ping checks the store is reachable
	Ping(ctx context.Context) error
}

// IsUpsertTable reports whether table is one of the upsert targets
func IsUpsertTable(table string) bool {
	return table == TableOrders || table == TableSales
}

// Records converts typed rows for Upsert
func Records[T Record](rows []T) []Record {
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
