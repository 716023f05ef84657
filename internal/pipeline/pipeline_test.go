package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpclient "github.com/shapeeat/sales-service/internal/http"
	"github.com/shapeeat/sales-service/internal/http/ratelimit"
	"github.com/shapeeat/sales-service/internal/storage"
	"github.com/shapeeat/sales-service/internal/types"
	"github.com/shapeeat/sales-service/internal/vendlive"
)

// upstream serves pages of raw sales; failPage answers 500 for that page
type upstream struct {
	pages    [][]string
	failPage int
	hits     atomic.Int32
	server   *httptest.Server
}

func newUpstream(t *testing.T, pages [][]string) *upstream {
	t.Helper()
	u := &upstream{pages: pages}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		if r.URL.Path != "/"+vendlive.SalesPath {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Token secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			page, _ = strconv.Atoi(p)
		}
		if page == u.failPage {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var results []json.RawMessage
		if page <= len(u.pages) {
			for _, s := range u.pages[page-1] {
				results = append(results, json.RawMessage(s))
			}
		}
		body := map[string]any{"results": results, "count": len(results), "next": nil}
		if page < len(u.pages) {
			body["next"] = fmt.Sprintf("%s/%s?page=%d", u.server.URL, vendlive.SalesPath, page+1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) client(t *testing.T) *vendlive.Client {
	t.Helper()
	hc := httpclient.NewClient(ratelimit.Config{MaxRetries: 0}, httpclient.WithToken("secret"))
	c, err := vendlive.NewClient(hc, vendlive.Options{BaseURL: u.server.URL, PageSize: 2})
	require.NoError(t, err)
	return c
}

func sale(id string, amounts ...string) string {
	lines := make([]string, len(amounts))
	for i, a := range amounts {
		lines[i] = fmt.Sprintf(`{"id": "%s-%d", "totalPaid": "%s", "netAmount": "%s", "vendStatus": "success",
			"product": {"id": %d, "name": "P%d", "category": {"id": 1, "name": "Plats"}}}`, id, i, a, a, i, i)
	}
	return fmt.Sprintf(`{"id": "%s", "createdAt": "2024-01-15T10:00:00Z", "charged": "Yes",
		"machine": {"id": 7, "friendlyName": "Hall"},
		"location": {"id": "loc", "venue": {"id": "v1", "name": "HQ"}},
		"productSales": [%s]}`, id, strings.Join(lines, ","))
}

func fixedClock() time.Time { return time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC) }

func TestRunIncremental(t *testing.T) {
	up := newUpstream(t, [][]string{
		{sale("s1", "5.00", "3.00"), sale("s2", "2.50")},
		{sale("s3", "1.00"), `{"id": "s4", "productSales": []}`, `"not an object"`},
	})
	store := storage.NewMemoryStore()

	result, err := Run(context.Background(), Deps{Source: up.client(t), Store: store, Now: fixedClock}, Options{
		Mode:      types.SyncModeIncremental,
		StartDate: "2024-01-01",
		EndDate:   "2024-01-31",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Pages)
	// the undecodable record is still a record seen upstream
	assert.Equal(t, 5, result.SalesSeen)
	assert.Equal(t, 4, result.LineItems)
	assert.Equal(t, 4, result.OrderSummaries)
	// one undecodable record, one sale without lines
	assert.Equal(t, 2, result.Skipped)
	assert.NotEmpty(t, result.RunID)

	assert.Equal(t, 4, store.Count(storage.TableOrders))
	assert.Equal(t, 4, store.Count(storage.TableSales))

	summaries, err := store.QueryOrderSummaries(context.Background(), storage.Filter{})
	require.NoError(t, err)
	var s1 types.OrderSummary
	for _, s := range summaries {
		if s.SaleID == "s1" {
			s1 = s
		}
	}
	assert.True(t, decimal.RequireFromString("8").Equal(s1.TotalTTC))
	assert.Equal(t, 2, s1.ProductCount)

	runs, err := store.ListSyncRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, result.RunID, runs[0].ID)
	assert.Equal(t, types.SyncRunCompleted, runs[0].Status)
	assert.Equal(t, 4, runs[0].LineItems)
	assert.Equal(t, "2024-01-01", runs[0].StartDate)
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	up := newUpstream(t, [][]string{{sale("s1", "5.00", "3.00")}, {sale("s2", "1.00")}})
	store := storage.NewMemoryStore()
	deps := Deps{Source: up.client(t), Store: store, Now: fixedClock}
	opts := Options{Mode: types.SyncModeIncremental}

	_, err := Run(context.Background(), deps, opts)
	require.NoError(t, err)
	first, err := store.QueryLineItems(context.Background(), storage.Filter{})
	require.NoError(t, err)

	_, err = Run(context.Background(), deps, opts)
	require.NoError(t, err)
	second, err := store.QueryLineItems(context.Background(), storage.Filter{})
	require.NoError(t, err)

	assert.Len(t, second, 3)
	assert.Equal(t, first, second)
}

func TestRunFullWipesFirst(t *testing.T) {
	up := newUpstream(t, [][]string{{sale("s1", "5.00")}})
	store := storage.NewMemoryStore()
	require.NoError(t, store.Upsert(context.Background(), storage.TableOrders,
		storage.Records([]types.LineItem{line("stale", "99")})))

	result, err := Run(context.Background(), Deps{Source: up.client(t), Store: store, Now: fixedClock},
		Options{Mode: types.SyncModeFull})
	require.NoError(t, err)

	assert.Equal(t, 1, result.LineItems)
	items, err := store.QueryLineItems(context.Background(), storage.Filter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.NotEqual(t, "stale", items[0].UniqueID)
}

func TestRunAbortsOnUpstreamFailure(t *testing.T) {
	up := newUpstream(t, [][]string{{sale("s1", "5.00")}, {sale("s2", "1.00")}, {sale("s3", "1.00")}})
	up.failPage = 2
	store := storage.NewMemoryStore()

	result, err := Run(context.Background(), Deps{Source: up.client(t), Store: store, Now: fixedClock},
		Options{Mode: types.SyncModeIncremental})
	require.Error(t, err)

	var fetchErr *ratelimit.FetchRetryError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.LastStatus)
	assert.Equal(t, 1, fetchErr.Attempts)

	// page 1 stays applied, page 3 is never requested
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 1, store.Count(storage.TableOrders))
	assert.Equal(t, int32(2), up.hits.Load())

	runs, err := store.ListSyncRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.SyncRunFailed, runs[0].Status)
	require.NotNil(t, runs[0].Error)
	assert.Contains(t, *runs[0].Error, "failed to fetch page 2")
}

func TestRunAbortsOnStoreFailure(t *testing.T) {
	up := newUpstream(t, [][]string{{sale("s1", "5.00")}, {sale("s2", "1.00")}})
	store := &failingStore{MemoryStore: storage.NewMemoryStore(), failOn: 1}

	_, err := Run(context.Background(), Deps{Source: up.client(t), Store: store, Now: fixedClock},
		Options{Mode: types.SyncModeIncremental})
	require.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, int32(1), up.hits.Load())
}

func TestRunRespectsMaxPages(t *testing.T) {
	up := newUpstream(t, [][]string{{sale("s1", "1")}, {sale("s2", "1")}, {sale("s3", "1")}})
	store := storage.NewMemoryStore()

	result, err := Run(context.Background(), Deps{Source: up.client(t), Store: store, Now: fixedClock},
		Options{Mode: types.SyncModeIncremental, MaxPages: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, int32(2), up.hits.Load())
}

func TestRunRejectsInvalidOptions(t *testing.T) {
	store := storage.NewMemoryStore()
	deps := Deps{Store: store}

	tests := []Options{
		{Mode: "partial"},
		{Mode: types.SyncModeFull, StartDate: "01/02/2024"},
		{Mode: types.SyncModeFull, StartDate: "2024-02-01", EndDate: "2024-01-01"},
	}
	for _, opts := range tests {
		_, err := Run(context.Background(), deps, opts)
		assert.ErrorIs(t, err, ErrInvalidOptions)
	}

	runs, err := store.ListSyncRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
