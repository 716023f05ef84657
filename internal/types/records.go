package types

import (
	"encoding/json"
	"fmt"
)

// lineItemColumns is the column order of the orders table
var lineItemColumns = []string{
	"vendlive_id", "sale_id", "machine_id", "machine_name", "venue_id", "venue_name",
	"product_name", "product_category", "is_placeholder", "quantity",
	"price_ht", "price_ttc", "discount_amount", "status", "is_refunded",
	"promo_code", "customer_email", "created_at", "raw_data",
}

// Key returns the uniqueness key of the line item
func (l LineItem) Key() string {
	return l.UniqueID
}

// Columns returns the persisted column names
func (l LineItem) Columns() []string {
	return lineItemColumns
}

// Values returns the column values in Columns order
func (l LineItem) Values() ([]any, error) {
	var raw any
	if len(l.RawData) > 0 {
		raw = []byte(l.RawData)
	}
	return []any{
		l.UniqueID, l.SaleID, l.MachineID, l.MachineName, l.VenueID, l.VenueName,
		l.ProductName, l.ProductCategory, l.IsPlaceholder, l.Quantity,
		l.PriceHT.String(), l.PriceTTC.String(), l.DiscountAmount.String(), string(l.Status), l.IsRefunded,
		l.PromoCode, l.CustomerEmail, l.CreatedAt, raw,
	}, nil
}

var orderSummaryColumns = []string{
	"vendlive_id", "machine_id", "machine_name", "venue_id", "venue_name",
	"total_ttc", "total_ht", "discount_total", "product_count",
	"products", "categories", "status", "has_refund",
	"promo_code", "customer_email", "created_at",
}

// Key returns the upstream sale id
func (o OrderSummary) Key() string {
	return o.SaleID
}

// Columns returns the persisted column names
func (o OrderSummary) Columns() []string {
	return orderSummaryColumns
}

// Values returns the column values in Columns order
func (o OrderSummary) Values() ([]any, error) {
	products, err := json.Marshal(o.Products)
	if err != nil {
		return nil, fmt.Errorf("failed to encode products of sale %s: %w", o.SaleID, err)
	}
	categories, err := json.Marshal(o.Categories)
	if err != nil {
		return nil, fmt.Errorf("failed to encode categories of sale %s: %w", o.SaleID, err)
	}
	return []any{
		o.SaleID, o.MachineID, o.MachineName, o.VenueID, o.VenueName,
		o.TotalTTC.String(), o.TotalHT.String(), o.DiscountTotal.String(), o.ProductCount,
		products, categories, string(o.Status), o.HasRefund,
		o.PromoCode, o.CustomerEmail, o.CreatedAt,
	}, nil
}
