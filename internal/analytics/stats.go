package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/shapeeat/sales-service/internal/normalize"
	"github.com/shapeeat/sales-service/internal/types"
)

var hundred = decimal.NewFromInt(100)

// Query selects the entries an aggregate covers
type Query struct {
	Range    Range
	VenueID  string
	Category string
	// Status keeps only entries with this resolved status when set
	Status              types.Status
	ExcludePlaceholders bool
}

// matches applies the filters and the validity rule for range r
func (q Query) matches(e Entry, r Range) bool {
	if !r.Contains(e.CreatedAt) {
		return false
	}
	if q.VenueID != "" && e.VenueID != q.VenueID {
		return false
	}
	if q.Category != "" && !hasCategory(e, q.Category) {
		return false
	}
	if q.Status != "" && e.Status != q.Status {
		return false
	}
	return CountsTowardRevenue(e, q.ExcludePlaceholders)
}

func hasCategory(e Entry, category string) bool {
	want := normalize.FoldKey(category)
	for _, c := range e.Categories {
		if normalize.FoldKey(c) == want {
			return true
		}
	}
	return false
}

// VenueStat is the revenue of one venue over a range
type VenueStat struct {
	VenueID         string          `json:"venueId"`
	VenueName       string          `json:"venueName"`
	Revenue         decimal.Decimal `json:"revenue"`
	Orders          int             `json:"orders"`
	Items           int             `json:"items"`
	PreviousRevenue decimal.Decimal `json:"previousRevenue"`
	Growth          float64         `json:"growth"`
}

// Aggregate holds the totals of one range
type Aggregate struct {
	Range        Range           `json:"range"`
	Revenue      decimal.Decimal `json:"revenue"`
	Orders       int             `json:"orders"`
	Items        int             `json:"items"`
	ActiveVenues int             `json:"activeVenues"`
	Venues       []VenueStat     `json:"venues"`
}

// PeriodStats compares a range with the range of equal length before it
type PeriodStats struct {
	Current       Aggregate `json:"current"`
	Previous      Aggregate `json:"previous"`
	RevenueGrowth float64   `json:"revenueGrowth"`
	OrdersGrowth  float64   `json:"ordersGrowth"`
}

// Growth returns the percentage change from prev to cur. From zero it is 0
// when cur is zero too and 100 otherwise.
func Growth(cur, prev decimal.Decimal) float64 {
	if prev.IsZero() {
		if cur.IsZero() {
			return 0
		}
		return 100
	}
	g, _ := cur.Sub(prev).Div(prev).Mul(hundred).Round(2).Float64()
	return g
}

// Summarize aggregates the valid entries of q over r
func Summarize(entries []Entry, q Query, r Range) Aggregate {
	agg := Aggregate{Range: r, Revenue: decimal.Zero, Venues: []VenueStat{}}
	orders := make(map[string]struct{})
	venues := make(map[string]*VenueStat)
	venueOrders := make(map[string]map[string]struct{})

	for _, e := range entries {
		if !q.matches(e, r) {
			continue
		}
		agg.Revenue = agg.Revenue.Add(e.Amount)
		agg.Items += e.Quantity
		orders[e.OrderKey] = struct{}{}

		v, ok := venues[e.VenueID]
		if !ok {
			name := e.VenueName
			if name == "" {
				name = UnknownVenue
			}
			v = &VenueStat{VenueID: e.VenueID, VenueName: name, Revenue: decimal.Zero, PreviousRevenue: decimal.Zero}
			venues[e.VenueID] = v
			venueOrders[e.VenueID] = make(map[string]struct{})
		}
		v.Revenue = v.Revenue.Add(e.Amount)
		v.Items += e.Quantity
		venueOrders[e.VenueID][e.OrderKey] = struct{}{}
	}

	agg.Orders = len(orders)
	for id, v := range venues {
		v.Orders = len(venueOrders[id])
		agg.Venues = append(agg.Venues, *v)
	}
	agg.ActiveVenues = len(agg.Venues)
	sortVenues(agg.Venues, true)
	return agg
}

// Compute aggregates q.Range and the previous range and derives growth,
// overall and per venue
func Compute(entries []Entry, q Query) PeriodStats {
	current := Summarize(entries, q, q.Range)
	previous := Summarize(entries, q, q.Range.Previous())

	prevByVenue := make(map[string]decimal.Decimal, len(previous.Venues))
	for _, v := range previous.Venues {
		prevByVenue[v.VenueID] = v.Revenue
	}
	for i := range current.Venues {
		prev, ok := prevByVenue[current.Venues[i].VenueID]
		if !ok {
			prev = decimal.Zero
		}
		current.Venues[i].PreviousRevenue = prev
		current.Venues[i].Growth = Growth(current.Venues[i].Revenue, prev)
	}

	return PeriodStats{
		Current:       current,
		Previous:      previous,
		RevenueGrowth: Growth(current.Revenue, previous.Revenue),
		OrdersGrowth:  Growth(decimal.NewFromInt(int64(current.Orders)), decimal.NewFromInt(int64(previous.Orders))),
	}
}

// sortVenues orders by revenue, then name and id for a stable result
func sortVenues(venues []VenueStat, desc bool) {
	sort.SliceStable(venues, func(i, j int) bool {
		a, b := venues[i], venues[j]
		if c := a.Revenue.Cmp(b.Revenue); c != 0 {
			if desc {
				return c > 0
			}
			return c < 0
		}
		if a.VenueName != b.VenueName {
			return a.VenueName < b.VenueName
		}
		return a.VenueID < b.VenueID
	})
}
