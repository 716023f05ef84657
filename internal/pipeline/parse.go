package pipeline

import (
	"github.com/shapeeat/sales-service/internal/normalize"
	"github.com/shapeeat/sales-service/internal/types"
)

// ParseResult holds the rows produced from one page of sales
type ParseResult struct {
	LineItems []types.LineItem
	Summaries []types.OrderSummary
	// Empty is the number of sales without product sales
	Empty int
	// NoID is the number of sales without an id, which get no summary
	NoID int
}

// ParsePhase runs the normalizer twice over the same sales: once for line
// items, once for order summaries.
func ParsePhase(n *normalize.Normalizer, sales []types.RawSale) *ParseResult {
	result := &ParseResult{
		LineItems: make([]types.LineItem, 0, len(sales)),
		Summaries: make([]types.OrderSummary, 0, len(sales)),
	}

	for i := range sales {
		lines := n.LineItems(&sales[i])
		if len(lines) == 0 {
			result.Empty++
		}
		result.LineItems = append(result.LineItems, lines...)
	}

	for i := range sales {
		summary, ok := n.Summary(&sales[i])
		if !ok {
			result.NoID++
			continue
		}
		result.Summaries = append(result.Summaries, summary)
	}

	if result.Empty > 0 {
		recordsSkipped.WithLabelValues("empty").Add(float64(result.Empty))
	}
	if result.NoID > 0 {
		recordsSkipped.WithLabelValues("no_id").Add(float64(result.NoID))
	}
	return result
}
