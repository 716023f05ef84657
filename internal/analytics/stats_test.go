package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shapeeat/sales-service/internal/types"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func entry(order, venue, amount string, at time.Time) Entry {
	return Entry{
		Key:         fmt.Sprintf("%s-%s", order, amount),
		OrderKey:    order,
		VenueID:     venue,
		VenueName:   "Venue " + venue,
		ProductName: "Salade",
		Category:    "Plats",
		Categories:  []string{"Plats"},
		Amount:      dec(amount),
		Quantity:    1,
		Status:      types.StatusCompleted,
		CreatedAt:   at,
	}
}

func TestGrowth(t *testing.T) {
	tests := []struct {
		cur, prev string
		want      float64
	}{
		{"0", "0", 0},
		{"25", "0", 100},
		{"150", "100", 50},
		{"50", "100", -50},
		{"100", "100", 0},
		{"1", "3", -66.67},
	}
	for _, tt := range tests {
		t.Run(tt.cur+"/"+tt.prev, func(t *testing.T) {
			assert.InDelta(t, tt.want, Growth(dec(tt.cur), dec(tt.prev)), 0.001)
		})
	}
}

func TestCountsTowardRevenue(t *testing.T) {
	base := entry("o1", "v1", "5", now)

	tests := []struct {
		name    string
		mutate  func(*Entry)
		exclude bool
		want    bool
	}{
		{"completed", func(*Entry) {}, false, true},
		{"pending", func(e *Entry) { e.Status = types.StatusPending }, false, true},
		{"unknown", func(e *Entry) { e.Status = types.StatusUnknown }, false, true},
		{"failed", func(e *Entry) { e.Status = types.StatusFailed }, false, false},
		{"cancelled", func(e *Entry) { e.Status = types.StatusCancelled }, false, false},
		{"refunded status", func(e *Entry) { e.Status = types.StatusRefunded }, false, false},
		{"refunded flag", func(e *Entry) { e.Refunded = true }, false, false},
		{"zero amount", func(e *Entry) { e.Amount = decimal.Zero }, false, false},
		{"negative amount", func(e *Entry) { e.Amount = dec("-2") }, false, false},
		{"placeholder kept", func(e *Entry) { e.Placeholder = true }, false, true},
		{"placeholder excluded", func(e *Entry) { e.Placeholder = true }, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base
			tt.mutate(&e)
			assert.Equal(t, tt.want, CountsTowardRevenue(e, tt.exclude))
		})
	}
}

func TestComputeCurrentAndPrevious(t *testing.T) {
	rng := Range{Start: date(2024, 3, 8), End: date(2024, 3, 15)}
	entries := []Entry{
		// current week
		entry("o1", "v1", "10", date(2024, 3, 8)),
		entry("o1", "v1", "5", date(2024, 3, 8)),
		entry("o2", "v2", "15", date(2024, 3, 14).Add(23*time.Hour)),
		// previous week
		entry("o3", "v1", "20", date(2024, 3, 1)),
		// outside both
		entry("o4", "v1", "99", date(2024, 3, 15)),
		entry("o5", "v1", "99", date(2024, 2, 29)),
	}

	stats := Compute(entries, Query{Range: rng})

	assert.True(t, dec("30").Equal(stats.Current.Revenue))
	assert.Equal(t, 2, stats.Current.Orders)
	assert.Equal(t, 3, stats.Current.Items)
	assert.Equal(t, 2, stats.Current.ActiveVenues)

	assert.True(t, dec("20").Equal(stats.Previous.Revenue))
	assert.Equal(t, 1, stats.Previous.Orders)
	assert.InDelta(t, 50, stats.RevenueGrowth, 0.001)
	assert.InDelta(t, 100, stats.OrdersGrowth, 0.001)

	require.Len(t, stats.Current.Venues, 2)
	v1 := stats.Current.Venues[0]
	assert.Equal(t, "v1", v1.VenueID)
	assert.True(t, dec("15").Equal(v1.Revenue))
	assert.True(t, dec("20").Equal(v1.PreviousRevenue))
	assert.InDelta(t, -25, v1.Growth, 0.001)
	assert.Equal(t, 1, v1.Orders)

	v2 := stats.Current.Venues[1]
	assert.Equal(t, "v2", v2.VenueID)
	assert.InDelta(t, 100, v2.Growth, 0.001)
}

func TestRefundedLineExcluded(t *testing.T) {
	rng := Range{Start: date(2024, 1, 1), End: date(2024, 2, 1)}
	paid := entry("9001", "v1", "5.00", date(2024, 1, 10))
	refunded := entry("9001", "v1", "3.00", date(2024, 1, 10))
	refunded.Refunded = true

	stats := Compute([]Entry{paid, refunded}, Query{Range: rng})

	assert.True(t, dec("5.00").Equal(stats.Current.Revenue))
	assert.Equal(t, 1, stats.Current.Orders)
	assert.Equal(t, 1, stats.Current.Items)
}

func TestQueryFilters(t *testing.T) {
	rng := Range{Start: date(2024, 1, 1), End: date(2024, 2, 1)}
	drink := entry("o2", "v2", "2", date(2024, 1, 5))
	drink.Category = "Boissons"
	drink.Categories = []string{"Boissons"}
	pending := entry("o3", "v1", "4", date(2024, 1, 6))
	pending.Status = types.StatusPending
	entries := []Entry{entry("o1", "v1", "10", date(2024, 1, 5)), drink, pending}

	byVenue := Summarize(entries, Query{VenueID: "v2"}, rng)
	assert.True(t, dec("2").Equal(byVenue.Revenue))

	byCategory := Summarize(entries, Query{Category: "boissons"}, rng)
	assert.True(t, dec("2").Equal(byCategory.Revenue))

	byStatus := Summarize(entries, Query{Status: types.StatusPending}, rng)
	assert.True(t, dec("4").Equal(byStatus.Revenue))
}

func TestSummaryEntryValidity(t *testing.T) {
	summary := types.OrderSummary{
		SaleID:       "9001",
		TotalTTC:     dec("8"),
		ProductCount: 2,
		Status:       types.StatusCompleted,
		Products: []types.SummaryProduct{
			{Name: "A", PriceTTC: dec("5")},
			{Name: "B", PriceTTC: dec("3"), IsRefunded: true},
		},
		Categories: []string{"Plats"},
	}
	e := FromOrderSummary(summary)
	assert.True(t, e.Refunded)
	assert.False(t, e.Placeholder)
	assert.False(t, CountsTowardRevenue(e, false))

	summary.Products[1].IsRefunded = false
	assert.True(t, CountsTowardRevenue(FromOrderSummary(summary), false))
}

func TestUnknownVenueBucket(t *testing.T) {
	rng := Range{Start: date(2024, 1, 1), End: date(2024, 2, 1)}
	e := entry("o1", "", "3", date(2024, 1, 2))
	e.VenueName = ""

	agg := Summarize([]Entry{e}, Query{}, rng)
	require.Len(t, agg.Venues, 1)
	assert.Equal(t, UnknownVenue, agg.Venues[0].VenueName)
}
