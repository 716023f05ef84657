package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/shapeeat/sales-service/internal/normalize"
)

// Default leaderboard sizes
const (
	DefaultVenueLimit   = 5
	DefaultProductLimit = 20
)

// TopVenues returns the n venues with the highest revenue
func TopVenues(venues []VenueStat, n int) []VenueStat {
	return rankVenues(venues, n, true)
}

// BottomVenues returns the n venues with the lowest revenue
func BottomVenues(venues []VenueStat, n int) []VenueStat {
	return rankVenues(venues, n, false)
}

func rankVenues(venues []VenueStat, n int, desc bool) []VenueStat {
	if n <= 0 {
		n = DefaultVenueLimit
	}
	ranked := make([]VenueStat, len(venues))
	copy(ranked, venues)
	sortVenues(ranked, desc)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// ProductStat is the revenue of one product over a range
type ProductStat struct {
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Quantity    int             `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
	Orders      int             `json:"orders"`
	Placeholder bool            `json:"isPlaceholder,omitempty"`
}

// ProductStats groups the valid line entries of q by product. Names that
// differ only in case or accents are grouped; the first spelling seen is
// kept.
func ProductStats(entries []Entry, q Query) []ProductStat {
	byKey := make(map[string]*ProductStat)
	orders := make(map[string]map[string]struct{})
	var keys []string

	for _, e := range entries {
		if e.ProductName == "" || !q.matches(e, q.Range) {
			continue
		}
		key := normalize.FoldKey(e.ProductName)
		p, ok := byKey[key]
		if !ok {
			p = &ProductStat{Name: e.ProductName, Category: e.Category, Revenue: decimal.Zero, Placeholder: e.Placeholder}
			byKey[key] = p
			orders[key] = make(map[string]struct{})
			keys = append(keys, key)
		}
		p.Quantity += e.Quantity
		p.Revenue = p.Revenue.Add(e.Amount)
		orders[key][e.OrderKey] = struct{}{}
	}

	products := make([]ProductStat, 0, len(keys))
	for _, key := range keys {
		p := byKey[key]
		p.Orders = len(orders[key])
		products = append(products, *p)
	}
	sortProducts(products)
	return products
}

// TopProducts returns the n products with the highest revenue
func TopProducts(products []ProductStat, n int) []ProductStat {
	if n <= 0 {
		n = DefaultProductLimit
	}
	ranked := make([]ProductStat, len(products))
	copy(ranked, products)
	sortProducts(ranked)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func sortProducts(products []ProductStat) {
	sort.SliceStable(products, func(i, j int) bool {
		if c := products[i].Revenue.Cmp(products[j].Revenue); c != 0 {
			return c > 0
		}
		if products[i].Quantity != products[j].Quantity {
			return products[i].Quantity > products[j].Quantity
		}
		return products[i].Name < products[j].Name
	})
}

// CategoryStat is the revenue share of one category
type CategoryStat struct {
	Category string          `json:"category"`
	Revenue  decimal.Decimal `json:"revenue"`
	Items    int             `json:"items"`
	Share    float64         `json:"share"`
}

// CategoryBreakdown groups the valid line entries of q by category. Share
// is the percentage of the total revenue.
func CategoryBreakdown(entries []Entry, q Query) []CategoryStat {
	byKey := make(map[string]*CategoryStat)
	total := decimal.Zero

	for _, e := range entries {
		if e.Category == "" || !q.matches(e, q.Range) {
			continue
		}
		key := normalize.FoldKey(e.Category)
		c, ok := byKey[key]
		if !ok {
			c = &CategoryStat{Category: e.Category, Revenue: decimal.Zero}
			byKey[key] = c
		}
		c.Revenue = c.Revenue.Add(e.Amount)
		c.Items += e.Quantity
		total = total.Add(e.Amount)
	}

	categories := make([]CategoryStat, 0, len(byKey))
	for _, c := range byKey {
		if total.IsPositive() {
			c.Share, _ = c.Revenue.Div(total).Mul(hundred).Round(2).Float64()
		}
		categories = append(categories, *c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if c := categories[i].Revenue.Cmp(categories[j].Revenue); c != 0 {
			return c > 0
		}
		return categories[i].Category < categories[j].Category
	})
	return categories
}

// DailyPoint is the revenue of one UTC day
type DailyPoint struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int             `json:"orders"`
}

// DailySeries returns one point per day of q.Range, zero-filled
func DailySeries(entries []Entry, q Query) []DailyPoint {
	days := q.Range.Days()
	index := make(map[string]int, len(days))
	points := make([]DailyPoint, len(days))
	orders := make([]map[string]struct{}, len(days))
	for i, d := range days {
		date := d.Format(DateLayout)
		index[date] = i
		points[i] = DailyPoint{Date: date, Revenue: decimal.Zero}
		orders[i] = make(map[string]struct{})
	}

	for _, e := range entries {
		if !q.matches(e, q.Range) {
			continue
		}
		i, ok := index[Midnight(e.CreatedAt).Format(DateLayout)]
		if !ok {
			continue
		}
		points[i].Revenue = points[i].Revenue.Add(e.Amount)
		orders[i][e.OrderKey] = struct{}{}
	}
	for i := range points {
		points[i].Orders = len(orders[i])
	}
	return points
}
