package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shapeeat/sales-service/internal/types"
)

// MemoryStore implements Store in memory. Used by tests and dry runs.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]Record
	runs   []types.SyncRun
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: map[string]map[string]Record{
			TableOrders: {},
			TableSales:  {},
		},
	}
}

// Upsert inserts or overwrites rows. A batch holding the same key twice is
// rejected as a whole, like Postgres does for ON CONFLICT DO UPDATE.
func (s *MemoryStore) Upsert(ctx context.Context, table string, rows []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsUpsertTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.Key()]; dup {
			return fmt.Errorf("upsert %s: key %q affected twice in one batch", table, row.Key())
		}
		seen[row.Key()] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.tables[table][row.Key()] = row
	}
	return nil
}

// DeleteAll empties table
func (s *MemoryStore) DeleteAll(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsUpsertTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	s.mu.Lock()
	s.tables[table] = map[string]Record{}
	s.mu.Unlock()
	return nil
}

// Count returns the number of rows in table
func (s *MemoryStore) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

// QueryLineItems implements Store
func (s *MemoryStore) QueryLineItems(ctx context.Context, filter Filter) ([]types.LineItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	items := make([]types.LineItem, 0, len(s.tables[TableOrders]))
	for _, row := range s.tables[TableOrders] {
		item, ok := row.(types.LineItem)
		if !ok {
			continue
		}
		if !filter.Matches(item.CreatedAt) {
			continue
		}
		if filter.VenueID != "" && (item.VenueID == nil || *item.VenueID != filter.VenueID) {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(item.ProductCategory, filter.Category) {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		items = append(items, item)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].UniqueID < items[j].UniqueID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

// QueryOrderSummaries implements Store
func (s *MemoryStore) QueryOrderSummaries(ctx context.Context, filter Filter) ([]types.OrderSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	summaries := make([]types.OrderSummary, 0, len(s.tables[TableSales]))
	for _, row := range s.tables[TableSales] {
		summary, ok := row.(types.OrderSummary)
		if !ok {
			continue
		}
		if !filter.Matches(summary.CreatedAt) {
			continue
		}
		if filter.VenueID != "" && (summary.VenueID == nil || *summary.VenueID != filter.VenueID) {
			continue
		}
		if filter.Category != "" && !slices.ContainsFunc(summary.Categories, func(c string) bool {
			return strings.EqualFold(c, filter.Category)
		}) {
			continue
		}
		if filter.Status != "" && summary.Status != filter.Status {
			continue
		}
		summaries = append(summaries, summary)
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].SaleID < summaries[j].SaleID
		}
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	if filter.Limit > 0 && len(summaries) > filter.Limit {
		summaries = summaries[:filter.Limit]
	}
	return summaries, nil
}

// CreateSyncRun implements Store
func (s *MemoryStore) CreateSyncRun(ctx context.Context, run *types.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *run)
	return nil
}

// FinishSyncRun implements Store
func (s *MemoryStore) FinishSyncRun(ctx context.Context, run *types.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i] = *run
			return nil
		}
	}
	return fmt.Errorf("sync run %s: %w", run.ID, ErrNotFound)
}

// ListSyncRuns implements Store
func (s *MemoryStore) ListSyncRuns(ctx context.Context, limit int) ([]types.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]types.SyncRun, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		runs = append(runs, s.runs[i])
		if limit > 0 && len(runs) == limit {
			break
		}
	}
	return runs, nil
}

// FailStaleSyncRuns implements Store
func (s *MemoryStore) FailStaleSyncRuns(ctx context.Context, cutoff time.Time, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.runs {
		run := &s.runs[i]
		if run.Status != types.SyncRunRunning || !run.StartedAt.Before(cutoff) {
			continue
		}
		completed := cutoff
		msg := reason
		run.Status = types.SyncRunFailed
		run.Error = &msg
		run.CompletedAt = &completed
		n++
	}
	return n, nil
}

// DeleteSyncRunsBefore implements Store
func (s *MemoryStore) DeleteSyncRunsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.runs)
	s.runs = slices.DeleteFunc(s.runs, func(run types.SyncRun) bool {
		return run.Status != types.SyncRunRunning && run.StartedAt.Before(cutoff)
	})
	return before - len(s.runs), nil
}

// Ping implements Store
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
