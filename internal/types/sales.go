package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the closed set of resolved transaction outcomes
type Status string

const (
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusPending   Status = "pending"
	StatusUnknown   Status = "unknown"
)

// Statuses lists every resolved status
var Statuses = []Status{
	StatusCompleted,
	StatusRefunded,
	StatusFailed,
	StatusCancelled,
	StatusPending,
	StatusUnknown,
}

// IsValid reports whether s belongs to the enumeration
func (s Status) IsValid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Placeholders used when upstream omits the product reference
const (
	UnknownProductName   = "Produit inconnu"
	UncategorizedProduct = "Non catégorisé"
	LineItemQuantity     = 1
)

// LineItem is one product within one upstream sale. Persisted in the
// orders table keyed by UniqueID.
type LineItem struct {
	UniqueID        string          `json:"vendlive_id"`
	SaleID          *string         `json:"sale_id"`
	MachineID       *string         `json:"machine_id"`
	MachineName     *string         `json:"machine_name"`
	VenueID         *string         `json:"venue_id"`
	VenueName       *string         `json:"venue_name"`
	ProductName     string          `json:"product_name"`
	ProductCategory string          `json:"product_category"`
	IsPlaceholder   bool            `json:"is_placeholder"`
	Quantity        int             `json:"quantity"`
	PriceHT         decimal.Decimal `json:"price_ht"`
	PriceTTC        decimal.Decimal `json:"price_ttc"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	Status          Status          `json:"status"`
	IsRefunded      bool            `json:"is_refunded"`
	PromoCode       *string         `json:"promo_code"`
	CustomerEmail   *string         `json:"customer_email"`
	CreatedAt       time.Time       `json:"created_at"`
	RawData         json.RawMessage `json:"raw_data,omitempty"`
}

// SummaryProduct is one entry of an order summary's product list
type SummaryProduct struct {
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Quantity      int             `json:"quantity"`
	PriceTTC      decimal.Decimal `json:"price_ttc"`
	IsRefunded    bool            `json:"is_refunded"`
	IsPlaceholder bool            `json:"is_placeholder,omitempty"`
}

// OrderSummary is one row per upstream sale. Persisted in the sales
// table keyed by the upstream sale id.
type OrderSummary struct {
	SaleID        string           `json:"vendlive_id"`
	MachineID     *string          `json:"machine_id"`
	MachineName   *string          `json:"machine_name"`
	VenueID       *string          `json:"venue_id"`
	VenueName     *string          `json:"venue_name"`
	TotalTTC      decimal.Decimal  `json:"total_ttc"`
	TotalHT       decimal.Decimal  `json:"total_ht"`
	DiscountTotal decimal.Decimal  `json:"discount_total"`
	ProductCount  int              `json:"product_count"`
	Products      []SummaryProduct `json:"products"`
	Categories    []string         `json:"categories"`
	Status        Status           `json:"status"`
	HasRefund     bool             `json:"has_refund"`
	PromoCode     *string          `json:"promo_code"`
	CustomerEmail *string          `json:"customer_email"`
	CreatedAt     time.Time        `json:"created_at"`
}

// SyncMode selects between wiping and appending
type SyncMode string

const (
	SyncModeIncremental SyncMode = "incremental"
	SyncModeFull        SyncMode = "full"
)

// SyncRunStatus is the lifecycle of a recorded sync run
type SyncRunStatus string

const (
	SyncRunRunning   SyncRunStatus = "running"
	SyncRunCompleted SyncRunStatus = "completed"
	SyncRunFailed    SyncRunStatus = "failed"
)

// SyncRun records one execution of the sync orchestrator
type SyncRun struct {
	ID             string        `json:"id"`
	Mode           SyncMode      `json:"mode"`
	Status         SyncRunStatus `json:"status"`
	StartDate      string        `json:"startDate"`
	EndDate        string        `json:"endDate"`
	Pages          int           `json:"pages"`
	SalesSeen      int           `json:"salesSeen"`
	LineItems      int           `json:"lineItems"`
	OrderSummaries int           `json:"orderSummaries"`
	Skipped        int           `json:"skipped"`
	Error          *string       `json:"error"`
	StartedAt      time.Time     `json:"startedAt"`
	CompletedAt    *time.Time    `json:"completedAt"`
}
