// Package normalize flattens VendLive sales into line items and order
// summaries, resolving the field variants the upstream API returns
package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/shapeeat/sales-service/internal/types"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Stats counts what the normalizer saw. Shape problems never fail a run,
// they are only counted here.
type Stats struct {
	SalesSeen         int `json:"salesSeen"`
	LinesEmitted      int `json:"linesEmitted"`
	EmptySales        int `json:"emptySales"`
	Placeholders      int `json:"placeholders"`
	UnparsableAmounts int `json:"unparsableAmounts"`
	MissingTimestamps int `json:"missingTimestamps"`
	SummariesEmitted  int `json:"summariesEmitted"`
	SummariesSkipped  int `json:"summariesSkipped"`
}

// Normalizer converts raw sales. Not safe for concurrent use.
type Normalizer struct {
	now    func() time.Time
	logger zerolog.Logger
	stats  Stats
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithClock overrides the fallback clock used for missing timestamps
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(n *Normalizer) { n.logger = logger.With().Str("component", "normalizer").Logger() }
}

// New creates a Normalizer
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Stats returns a copy of the counters
func (n *Normalizer) Stats() Stats {
	return n.stats
}

// Skipped returns the number of inputs that produced no row
func (n *Normalizer) Skipped() int {
	return n.stats.EmptySales + n.stats.SummariesSkipped
}

// LineItems flattens a sale into one line item per product sale, in
// upstream order. A sale without product sales yields nothing.
func (n *Normalizer) LineItems(sale *types.RawSale) []types.LineItem {
	n.stats.SalesSeen++
	if len(sale.ProductSales) == 0 {
		n.stats.EmptySales++
		n.logger.Debug().Str("sale_id", sale.ID.String()).Msg("Sale has no product sales, skipping")
		return nil
	}

	items := n.lines(sale, true)
	n.stats.LinesEmitted += len(items)
	return items
}

// Summary builds the order summary of a sale. ok is false when the sale has
// no id to key the summary on.
func (n *Normalizer) Summary(sale *types.RawSale) (summary types.OrderSummary, ok bool) {
	if sale.ID == "" {
		n.stats.SummariesSkipped++
		n.logger.Warn().Msg("Sale without id, skipping order summary")
		return types.OrderSummary{}, false
	}

	lines := n.lines(sale, false)

	summary = types.OrderSummary{
		SaleID:        sale.ID.String(),
		TotalTTC:      decimal.Zero,
		TotalHT:       decimal.Zero,
		DiscountTotal: decimal.Zero,
		Products:      make([]types.SummaryProduct, 0, len(lines)),
		Categories:    make([]string, 0),
		PromoCode:     nonEmpty(sale.Voucher()),
	}
	if sale.Machine != nil {
		summary.MachineID = sale.Machine.ID.Ptr()
		summary.MachineName = nonEmpty(sale.Machine.DisplayName())
	}
	if sale.Location != nil {
		summary.VenueID = nonEmpty(sale.Location.VenueID())
		summary.VenueName = nonEmpty(sale.Location.VenueName())
	}
	if sale.Customer != nil {
		summary.CustomerEmail = sale.Customer.Email.Ptr()
	}

	seenCategories := make(map[string]bool)
	anyCompleted := false
	for _, line := range lines {
		summary.TotalTTC = summary.TotalTTC.Add(line.PriceTTC)
		summary.TotalHT = summary.TotalHT.Add(line.PriceHT)
		summary.DiscountTotal = summary.DiscountTotal.Add(line.DiscountAmount)
		summary.ProductCount += line.Quantity
		summary.Products = append(summary.Products, types.SummaryProduct{
			Name:          line.ProductName,
			Category:      line.ProductCategory,
			Quantity:      line.Quantity,
			PriceTTC:      line.PriceTTC,
			IsRefunded:    line.IsRefunded,
			IsPlaceholder: line.IsPlaceholder,
		})
		if key := FoldKey(line.ProductCategory); !seenCategories[key] {
			seenCategories[key] = true
			summary.Categories = append(summary.Categories, line.ProductCategory)
		}
		if line.IsRefunded {
			summary.HasRefund = true
		}
		if line.Status == types.StatusCompleted {
			anyCompleted = true
		}
		if summary.PromoCode == nil {
			summary.PromoCode = line.PromoCode
		}
	}

	switch {
	case sale.Charged != nil && bool(*sale.Charged):
		summary.Status = types.StatusCompleted
	case sale.Charged != nil:
		summary.Status = types.StatusFailed
	case anyCompleted:
		summary.Status = types.StatusCompleted
	default:
		summary.Status = types.StatusFailed
	}

	if t, ok := parseTimestamp(sale.CreatedAt.String()); ok {
		summary.CreatedAt = t
	} else if len(lines) > 0 {
		summary.CreatedAt = lines[0].CreatedAt
	} else {
		summary.CreatedAt = n.now().UTC()
	}

	n.stats.SummariesEmitted++
	return summary, true
}

func (n *Normalizer) lines(sale *types.RawSale, count bool) []types.LineItem {
	saleTime, saleTimeOK := parseTimestamp(sale.CreatedAt.String())
	header := saleHeader(sale.Raw)

	var machineID, machineName, venueID, venueName, email *string
	if sale.Machine != nil {
		machineID = sale.Machine.ID.Ptr()
		machineName = nonEmpty(sale.Machine.DisplayName())
	}
	if sale.Location != nil {
		venueID = nonEmpty(sale.Location.VenueID())
		venueName = nonEmpty(sale.Location.VenueName())
	}
	if sale.Customer != nil {
		email = sale.Customer.Email.Ptr()
	}

	items := make([]types.LineItem, 0, len(sale.ProductSales))
	for i := range sale.ProductSales {
		ps := &sale.ProductSales[i]

		createdAt, ok := parseTimestamp(ps.Timestamp.String())
		if !ok {
			switch {
			case saleTimeOK:
				createdAt = saleTime
			default:
				createdAt = n.now().UTC()
				if count {
					n.stats.MissingTimestamps++
				}
			}
		}

		name, category, placeholder := resolveProduct(ps.Product)
		if placeholder && count {
			n.stats.Placeholders++
			n.logger.Debug().
				Str("sale_id", sale.ID.String()).
				Str("product_sale_id", ps.ID.String()).
				Msg("Product reference missing, using placeholder")
		}

		priceHT, okHT := ParseAmount(ps.NetAmount.String())
		priceTTC, okTTC := ParseAmount(ps.TotalPaid.String())
		discount, okDisc := ParseAmount(ps.DiscountAmount.String())
		if count && !(okHT && okTTC && okDisc) {
			n.stats.UnparsableAmounts++
			n.logger.Debug().
				Str("sale_id", sale.ID.String()).
				Str("net", ps.NetAmount.String()).
				Str("total", ps.TotalPaid.String()).
				Msg("Unparsable amount defaulted to zero")
		}

		promo := nonEmpty(ps.VoucherCode.String())
		if promo == nil {
			promo = nonEmpty(sale.Voucher())
		}

		refunded := bool(ps.IsRefunded)
		key := LineKey{
			SaleID:        sale.ID.String(),
			ProductSaleID: ps.ID.String(),
			MachineID:     derefOr(machineID, ""),
			HistoryID:     sale.HistoryID.String(),
			LineIndex:     i,
		}

		items = append(items, types.LineItem{
			UniqueID:        UniqueID(key, header, ps.Raw),
			SaleID:          sale.ID.Ptr(),
			MachineID:       machineID,
			MachineName:     machineName,
			VenueID:         venueID,
			VenueName:       venueName,
			ProductName:     name,
			ProductCategory: category,
			IsPlaceholder:   placeholder,
			Quantity:        types.LineItemQuantity,
			PriceHT:         priceHT,
			PriceTTC:        priceTTC,
			DiscountAmount:  discount,
			Status:          ResolveStatus(ps.VendStatus.String(), refunded),
			IsRefunded:      refunded,
			PromoCode:       promo,
			CustomerEmail:   email,
			CreatedAt:       createdAt,
			RawData:         auditRecord(header, i, ps.Raw),
		})
	}
	return items
}

func resolveProduct(p *types.ProductRef) (name, category string, placeholder bool) {
	name, category = types.UnknownProductName, types.UncategorizedProduct
	if p == nil {
		return name, category, true
	}
	if p.Name != "" {
		name = p.Name.String()
	} else {
		placeholder = true
	}
	if p.Category != nil && p.Category.Name != "" {
		category = p.Category.Name.String()
	}
	return name, category, placeholder
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// saleHeader returns the raw sale without its product sales
func saleHeader(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	delete(fields, "productSales")
	header, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return header
}

func auditRecord(header []byte, index int, line json.RawMessage) json.RawMessage {
	record := struct {
		Sale      json.RawMessage `json:"sale,omitempty"`
		LineIndex int             `json:"line_index"`
		Line      json.RawMessage `json:"line,omitempty"`
	}{
		Sale:      header,
		LineIndex: index,
		Line:      line,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil
	}
	return data
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
