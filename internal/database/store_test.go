package database

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shapeeat/sales-service/internal/storage"
	"github.com/shapeeat/sales-service/internal/types"
)

func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start postgres container")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err, "Failed to create connection pool")

	require.NoError(t, Migrate(ctx, pool), "Failed to run migrations")

	cleanup := func() {
		pool.Close()
		testcontainers.TerminateContainer(container)
	}
	return pool, cleanup
}

func strPtr(s string) *string { return &s }

func testLine(id, venue string, created time.Time, ttc string) types.LineItem {
	return types.LineItem{
		UniqueID:        id,
		SaleID:          strPtr("s-" + id),
		VenueID:         strPtr(venue),
		VenueName:       strPtr("Venue " + venue),
		ProductName:     "Salade",
		ProductCategory: "Plats",
		Quantity:        1,
		PriceHT:         decimal.RequireFromString(ttc).Div(decimal.RequireFromString("1.2")).Round(2),
		PriceTTC:        decimal.RequireFromString(ttc),
		DiscountAmount:  decimal.Zero,
		Status:          types.StatusCompleted,
		CreatedAt:       created,
		RawData:         []byte(`{"line_index":0}`),
	}
}

func TestPostgresStoreUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)
	day := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	rows := []storage.Record{
		testLine("a", "v1", day, "5.00"),
		testLine("b", "v2", day.Add(time.Hour), "3.50"),
	}

	require.NoError(t, store.Upsert(ctx, storage.TableOrders, rows))
	first, err := store.QueryLineItems(ctx, storage.Filter{})
	require.NoError(t, err)

	require.NoError(t, store.Upsert(ctx, storage.TableOrders, rows))
	second, err := store.QueryLineItems(ctx, storage.Filter{})
	require.NoError(t, err)

	require.Len(t, second, 2)
	assert.Equal(t, first, second)
	assert.True(t, decimal.RequireFromString("5").Equal(second[0].PriceTTC))
	assert.Equal(t, day, second[0].CreatedAt)
	assert.Equal(t, "Venue v1", *second[0].VenueName)
	assert.JSONEq(t, `{"line_index":0}`, string(second[0].RawData))
}

func TestPostgresStoreUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)
	day := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, storage.TableOrders, []storage.Record{testLine("a", "v1", day, "5.00")}))
	updated := testLine("a", "v1", day, "7.25")
	updated.Status = types.StatusRefunded
	updated.IsRefunded = true
	require.NoError(t, store.Upsert(ctx, storage.TableOrders, []storage.Record{updated}))

	items, err := store.QueryLineItems(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, decimal.RequireFromString("7.25").Equal(items[0].PriceTTC))
	assert.Equal(t, types.StatusRefunded, items[0].Status)
}

func TestPostgresStoreRejectsDuplicateKeyInBatch(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)
	day := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	err := store.Upsert(ctx, storage.TableOrders, []storage.Record{
		testLine("a", "v1", day, "1"),
		testLine("a", "v1", day, "2"),
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "upsert into orders failed"))
}

func TestPostgresStoreFilters(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)
	require.NoError(t, store.Upsert(ctx, storage.TableOrders, []storage.Record{
		testLine("inside", "v1", time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC), "1"),
		testLine("outside", "v1", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), "1"),
		testLine("other", "v2", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "1"),
	}))

	filter := storage.Filter{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	items, err := store.QueryLineItems(ctx, filter)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "other", items[0].UniqueID)
	assert.Equal(t, "inside", items[1].UniqueID)

	filter.VenueID = "v1"
	filter.Category = "plats"
	items, err = store.QueryLineItems(ctx, filter)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "inside", items[0].UniqueID)
}

func TestPostgresStoreOrderSummaries(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)
	summary := types.OrderSummary{
		SaleID:        "9001",
		VenueID:       strPtr("v1"),
		TotalTTC:      decimal.RequireFromString("8.00"),
		TotalHT:       decimal.RequireFromString("6.67"),
		DiscountTotal: decimal.Zero,
		ProductCount:  2,
		Products: []types.SummaryProduct{
			{Name: "Salade", Category: "Plats", Quantity: 1, PriceTTC: decimal.RequireFromString("5")},
			{Name: "Café", Category: "Boissons", Quantity: 1, PriceTTC: decimal.RequireFromString("3"), IsRefunded: true},
		},
		Categories: []string{"Plats", "Boissons"},
		Status:     types.StatusCompleted,
		HasRefund:  true,
		CreatedAt:  time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Upsert(ctx, storage.TableSales, []storage.Record{summary}))

	got, err := store.QueryOrderSummaries(ctx, storage.Filter{Category: "boissons"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "9001", got[0].SaleID)
	assert.True(t, summary.TotalTTC.Equal(got[0].TotalTTC))
	assert.Equal(t, summary.Categories, got[0].Categories)
	require.Len(t, got[0].Products, 2)
	assert.True(t, got[0].Products[1].IsRefunded)
	assert.True(t, got[0].HasRefund)

	require.NoError(t, store.DeleteAll(ctx, storage.TableSales))
	got, err = store.QueryOrderSummaries(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPostgresStoreSyncRuns(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)
	run := &types.SyncRun{
		ID:        uuid.NewString(),
		Mode:      types.SyncModeIncremental,
		Status:    types.SyncRunRunning,
		StartDate: "2024-01-01",
		EndDate:   "2024-01-31",
		StartedAt: time.Date(2024, 2, 1, 3, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.CreateSyncRun(ctx, run))

	completed := run.StartedAt.Add(time.Minute)
	run.Status = types.SyncRunCompleted
	run.Pages = 3
	run.LineItems = 250
	run.CompletedAt = &completed
	require.NoError(t, store.FinishSyncRun(ctx, run))

	missing := &types.SyncRun{ID: uuid.NewString(), Status: types.SyncRunFailed}
	assert.ErrorIs(t, store.FinishSyncRun(ctx, missing), storage.ErrNotFound)

	runs, err := store.ListSyncRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, types.SyncRunCompleted, runs[0].Status)
	assert.Equal(t, 250, runs[0].LineItems)
	require.NotNil(t, runs[0].CompletedAt)
	assert.True(t, completed.Equal(*runs[0].CompletedAt))
}

func TestPostgresStoreSweepsSyncRuns(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	stuck := &types.SyncRun{ID: uuid.NewString(), Mode: types.SyncModeFull, Status: types.SyncRunRunning, StartedAt: base}
	fresh := &types.SyncRun{ID: uuid.NewString(), Mode: types.SyncModeIncremental, Status: types.SyncRunRunning, StartedAt: base.Add(3 * time.Hour)}
	require.NoError(t, store.CreateSyncRun(ctx, stuck))
	require.NoError(t, store.CreateSyncRun(ctx, fresh))

	n, err := store.FailStaleSyncRuns(ctx, base.Add(time.Hour), "interrupted")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	runs, err := store.ListSyncRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, types.SyncRunRunning, runs[0].Status)
	assert.Equal(t, types.SyncRunFailed, runs[1].Status)
	require.NotNil(t, runs[1].Error)
	assert.Equal(t, "interrupted", *runs[1].Error)

	// running rows are never pruned
	n, err = store.DeleteSyncRunsBefore(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	runs, err = store.ListSyncRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, fresh.ID, runs[0].ID)
}

func TestBuildUpsert(t *testing.T) {
	day := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	query, args, err := buildUpsert(storage.TableOrders, types.LineItem{}.Columns(), []storage.Record{
		testLine("a", "v1", day, "1"),
		testLine("b", "v1", day, "2"),
	})
	require.NoError(t, err)

	columns := len(types.LineItem{}.Columns())
	assert.Len(t, args, 2*columns)
	assert.True(t, strings.HasPrefix(query, `INSERT INTO "orders" ("vendlive_id", `))
	assert.Contains(t, query, `ON CONFLICT ("vendlive_id") DO UPDATE SET "sale_id" = EXCLUDED."sale_id"`)
	assert.NotContains(t, query, `"vendlive_id" = EXCLUDED`)
	assert.Contains(t, query, "$38)")
}
