package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shapeeat/sales-service/internal/storage"
	"github.com/shapeeat/sales-service/internal/types"
)

var testDay = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func line(id, amount string) types.LineItem {
	return types.LineItem{
		UniqueID:        id,
		ProductName:     "Salade",
		ProductCategory: "Plats",
		Quantity:        1,
		PriceTTC:        decimal.RequireFromString(amount),
		Status:          types.StatusCompleted,
		CreatedAt:       testDay,
	}
}

func keys(rows []storage.Record) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Key()
	}
	return out
}

// failingStore fails the nth Upsert call (1-based)
type failingStore struct {
	*storage.MemoryStore
	failOn int
	calls  int
}

var errStoreDown = errors.New("store down")

func (s *failingStore) Upsert(ctx context.Context, table string, rows []storage.Record) error {
	s.calls++
	if s.calls == s.failOn {
		return errStoreDown
	}
	return s.MemoryStore.Upsert(ctx, table, rows)
}

func TestDedupeLastWinsAtFirstPosition(t *testing.T) {
	rows := storage.Records([]types.LineItem{
		line("a", "1"), line("b", "2"), line("a", "3"), line("c", "4"), line("b", "5"),
	})

	deduped, dropped := Dedupe(rows)

	assert.Equal(t, 2, dropped)
	assert.Equal(t, []string{"a", "b", "c"}, keys(deduped))
	assert.True(t, decimal.RequireFromString("3").Equal(deduped[0].(types.LineItem).PriceTTC))
	assert.True(t, decimal.RequireFromString("5").Equal(deduped[1].(types.LineItem).PriceTTC))
}

func TestBatches(t *testing.T) {
	rows := make([]types.LineItem, 450)
	for i := range rows {
		rows[i] = line(fmt.Sprintf("k%d", i), "1")
	}

	batches := Batches(storage.Records(rows), 200)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 200)
	assert.Len(t, batches[1], 200)
	assert.Len(t, batches[2], 50)

	assert.Len(t, Batches(storage.Records(rows), 0), 1)
	assert.Nil(t, Batches(nil, 200))
}

func TestCheckUniqueDetectsDuplicates(t *testing.T) {
	err := checkUnique(storage.Records([]types.LineItem{line("a", "1"), line("a", "2")}))
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.NoError(t, checkUnique(storage.Records([]types.LineItem{line("a", "1"), line("b", "2")})))
}

func TestUpserterDeduplicatesBeforeWriting(t *testing.T) {
	store := storage.NewMemoryStore()
	u := NewUpserter(store, UpserterOptions{BatchSize: 2})

	result, err := u.Upsert(context.Background(), storage.TableOrders,
		storage.Records([]types.LineItem{line("a", "1"), line("b", "2"), line("a", "9")}))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, 1, result.Batches)
	assert.Equal(t, 1, result.Duplicates)

	items, err := store.QueryLineItems(context.Background(), storage.Filter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, decimal.RequireFromString("9").Equal(items[0].PriceTTC))
}

func TestUpserterIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	u := NewUpserter(store, UpserterOptions{BatchSize: 2})
	rows := storage.Records([]types.LineItem{line("a", "1"), line("b", "2"), line("c", "3")})

	_, err := u.Upsert(context.Background(), storage.TableOrders, rows)
	require.NoError(t, err)
	first, err := store.QueryLineItems(context.Background(), storage.Filter{})
	require.NoError(t, err)

	_, err = u.Upsert(context.Background(), storage.TableOrders, rows)
	require.NoError(t, err)
	second, err := store.QueryLineItems(context.Background(), storage.Filter{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestUpserterAbortsRemainingBatches(t *testing.T) {
	store := &failingStore{MemoryStore: storage.NewMemoryStore(), failOn: 2}
	u := NewUpserter(store, UpserterOptions{BatchSize: 1})

	result, err := u.Upsert(context.Background(), storage.TableOrders,
		storage.Records([]types.LineItem{line("a", "1"), line("b", "2"), line("c", "3")}))

	require.ErrorIs(t, err, errStoreDown)
	assert.Contains(t, err.Error(), "orders batch 2/3")
	assert.Equal(t, 1, result.Rows)
	assert.Equal(t, 2, store.calls)
	// earlier sub-batches stay applied
	assert.Equal(t, 1, store.Count(storage.TableOrders))
}

func TestUpserterHonoursCancellation(t *testing.T) {
	store := storage.NewMemoryStore()
	u := NewUpserter(store, UpserterOptions{BatchSize: 1, Pause: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := u.Upsert(ctx, storage.TableOrders,
		storage.Records([]types.LineItem{line("a", "1"), line("b", "2")}))

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Rows)
}
