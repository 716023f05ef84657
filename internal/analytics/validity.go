package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shapeeat/sales-service/internal/types"
)

// UnknownVenue names the bucket of entries without a venue
const UnknownVenue = "Lieu inconnu"

// Entry is the common view of a line item or an order summary
type Entry struct {
	Key         string
	OrderKey    string
	VenueID     string
	VenueName   string
	ProductName string
	Category    string
	Categories  []string
	Amount      decimal.Decimal
	Quantity    int
	Status      types.Status
	Refunded    bool
	Placeholder bool
	CreatedAt   time.Time
}

// FromLineItem builds the entry of a line item
func FromLineItem(l types.LineItem) Entry {
	orderKey := l.UniqueID
	if l.SaleID != nil && *l.SaleID != "" {
		orderKey = *l.SaleID
	}
	return Entry{
		Key:         l.UniqueID,
		OrderKey:    orderKey,
		VenueID:     deref(l.VenueID),
		VenueName:   deref(l.VenueName),
		ProductName: l.ProductName,
		Category:    l.ProductCategory,
		Categories:  []string{l.ProductCategory},
		Amount:      l.PriceTTC,
		Quantity:    l.Quantity,
		Status:      l.Status,
		Refunded:    l.IsRefunded,
		Placeholder: l.IsPlaceholder,
		CreatedAt:   l.CreatedAt,
	}
}

// FromOrderSummary builds the entry of an order summary. A summary counts as
// refunded when any of its lines is.
func FromOrderSummary(o types.OrderSummary) Entry {
	placeholder := len(o.Products) > 0
	refunded := o.HasRefund
	for _, p := range o.Products {
		placeholder = placeholder && p.IsPlaceholder
		refunded = refunded || p.IsRefunded
	}
	return Entry{
		Key:         o.SaleID,
		OrderKey:    o.SaleID,
		VenueID:     deref(o.VenueID),
		VenueName:   deref(o.VenueName),
		Categories:  o.Categories,
		Amount:      o.TotalTTC,
		Quantity:    o.ProductCount,
		Status:      o.Status,
		Refunded:    refunded,
		Placeholder: placeholder,
		CreatedAt:   o.CreatedAt,
	}
}

// LineEntries converts line items
func LineEntries(items []types.LineItem) []Entry {
	entries := make([]Entry, len(items))
	for i, item := range items {
		entries[i] = FromLineItem(item)
	}
	return entries
}

// SummaryEntries converts order summaries
func SummaryEntries(summaries []types.OrderSummary) []Entry {
	entries := make([]Entry, len(summaries))
	for i, s := range summaries {
		entries[i] = FromOrderSummary(s)
	}
	return entries
}

// CountsTowardRevenue is the single rule deciding whether an entry adds to
// revenue and order counts: not failed or cancelled, not refunded and a
// positive amount. Placeholder lines count unless excludePlaceholders.
func CountsTowardRevenue(e Entry, excludePlaceholders bool) bool {
	switch e.Status {
	case types.StatusFailed, types.StatusCancelled, types.StatusRefunded:
		return false
	}
	if e.Refunded {
		return false
	}
	if !e.Amount.IsPositive() {
		return false
	}
	if excludePlaceholders && e.Placeholder {
		return false
	}
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
