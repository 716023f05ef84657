package types

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexString decodes a JSON string, number or null into a string.
// VendLive returns ids and amounts as numbers on some endpoints and as
// strings on others.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	// numbers, booleans: keep the literal
	*f = FlexString(string(data))
	return nil
}

// String returns the decoded value
func (f FlexString) String() string {
	return string(f)
}

// Ptr returns nil for an empty value
func (f FlexString) Ptr() *string {
	if f == "" {
		return nil
	}
	s := string(f)
	return &s
}

// FlexBool decodes true/false, "Yes"/"No", "true"/"false", 1/0 and null.
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexBool) UnmarshalJSON(data []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	switch strings.ToLower(string(s)) {
	case "true", "yes", "y", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

// Page is one page of a cursor-paginated VendLive listing
type Page struct {
	Results []json.RawMessage `json:"results"`
	Next    *string           `json:"next"`
	Count   int               `json:"count"`
}

// HasNext reports whether the upstream advertised another page
func (p *Page) HasNext() bool {
	return p.Next != nil && strings.TrimSpace(*p.Next) != ""
}

// MachineRef is the machine reference embedded in a sale
type MachineRef struct {
	ID           FlexString `json:"id"`
	FriendlyName FlexString `json:"friendlyName"`
	Name         FlexString `json:"name"`
}

// DisplayName returns the first non-empty name variant
func (m *MachineRef) DisplayName() string {
	if m.FriendlyName != "" {
		return m.FriendlyName.String()
	}
	return m.Name.String()
}

// VenueRef is a venue as nested under a location
type VenueRef struct {
	ID   FlexString `json:"id"`
	Name FlexString `json:"name"`
}

// LocationRef is the location reference embedded in a sale
type LocationRef struct {
	ID    FlexString `json:"id"`
	Name  FlexString `json:"name"`
	Venue *VenueRef  `json:"venue"`
}

// VenueID resolves the venue id, preferring the nested venue
func (l *LocationRef) VenueID() string {
	if l.Venue != nil && l.Venue.ID != "" {
		return l.Venue.ID.String()
	}
	return l.ID.String()
}

// VenueName resolves the venue name, preferring the nested venue
func (l *LocationRef) VenueName() string {
	if l.Venue != nil && l.Venue.Name != "" {
		return l.Venue.Name.String()
	}
	return l.Name.String()
}

// CustomerRef is the optional customer attached to a sale
type CustomerRef struct {
	Email FlexString `json:"email"`
}

// CategoryRef is a product category
type CategoryRef struct {
	ID   FlexString `json:"id"`
	Name FlexString `json:"name"`
}

// ProductRef is a product as nested under a product sale
type ProductRef struct {
	ID       FlexString   `json:"id"`
	Name     FlexString   `json:"name"`
	Category *CategoryRef `json:"category"`
}

// RawSale is one upstream sale. Every field may be missing.
type RawSale struct {
	ID           FlexString       `json:"id"`
	CreatedAt    FlexString       `json:"createdAt"`
	Charged      *FlexBool        `json:"charged"`
	HistoryID    FlexString       `json:"historyId"`
	Machine      *MachineRef      `json:"machine"`
	Location     *LocationRef     `json:"location"`
	VoucherCode  FlexString       `json:"voucherCode"`
	PromoCode    FlexString       `json:"promoCode"`
	Customer     *CustomerRef     `json:"customer"`
	ProductSales []RawProductSale `json:"productSales"`

	Raw json.RawMessage `json:"-"`
}

// Voucher returns the sale-level voucher, whichever field carries it
func (s *RawSale) Voucher() string {
	if s.VoucherCode != "" {
		return s.VoucherCode.String()
	}
	return s.PromoCode.String()
}

// UnmarshalJSON keeps a copy of the raw record for auditing
func (s *RawSale) UnmarshalJSON(data []byte) error {
	type plain RawSale
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = RawSale(p)
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// RawProductSale is one line of an upstream sale
type RawProductSale struct {
	ID             FlexString  `json:"id"`
	NetAmount      FlexString  `json:"-"`
	TotalPaid      FlexString  `json:"-"`
	DiscountAmount FlexString  `json:"-"`
	IsRefunded     FlexBool    `json:"isRefunded"`
	VendStatus     FlexString  `json:"-"`
	Timestamp      FlexString  `json:"timestamp"`
	VoucherCode    FlexString  `json:"voucherCode"`
	Product        *ProductRef `json:"product"`

	Raw json.RawMessage `json:"-"`
}

// productSaleWire lists every field-name variant seen across API versions
type productSaleWire struct {
	ID             FlexString  `json:"id"`
	NetAmount      FlexString  `json:"netAmount"`
	NetAmountSnake FlexString  `json:"net_amount"`
	PriceHT        FlexString  `json:"priceHT"`
	TotalPaid      FlexString  `json:"totalPaid"`
	TotalPaidSnake FlexString  `json:"total_paid"`
	Price          FlexString  `json:"price"`
	DiscountAmount FlexString  `json:"discountAmount"`
	Discount       FlexString  `json:"discount"`
	IsRefunded     FlexBool    `json:"isRefunded"`
	VendStatus     FlexString  `json:"vendStatus"`
	Status         FlexString  `json:"status"`
	Timestamp      FlexString  `json:"timestamp"`
	VoucherCode    FlexString  `json:"voucherCode"`
	Product        *ProductRef `json:"product"`
}

// UnmarshalJSON coalesces the known field-name variants
func (p *RawProductSale) UnmarshalJSON(data []byte) error {
	var w productSaleWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = RawProductSale{
		ID:             w.ID,
		NetAmount:      firstNonEmpty(w.NetAmount, w.NetAmountSnake, w.PriceHT),
		TotalPaid:      firstNonEmpty(w.TotalPaid, w.TotalPaidSnake, w.Price),
		DiscountAmount: firstNonEmpty(w.DiscountAmount, w.Discount),
		IsRefunded:     w.IsRefunded,
		VendStatus:     firstNonEmpty(w.VendStatus, w.Status),
		Timestamp:      w.Timestamp,
		VoucherCode:    w.VoucherCode,
		Product:        w.Product,
		Raw:            append(json.RawMessage(nil), data...),
	}
	return nil
}

func firstNonEmpty(values ...FlexString) FlexString {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Machine is an upstream machine as returned by the proxy, enriched with
// the device enabled flag.
type Machine struct {
	ID        FlexString      `json:"id"`
	Raw       json.RawMessage `json:"-"`
	IsEnabled bool            `json:"isEnabled"`
}

// MarshalJSON merges isEnabled into the upstream machine object
func (m Machine) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(m.Raw) > 0 {
		if err := json.Unmarshal(m.Raw, &fields); err != nil {
			return nil, err
		}
	}
	enabled, _ := json.Marshal(m.IsEnabled)
	fields["isEnabled"] = enabled
	return json.Marshal(fields)
}

// DeviceInfo is the subset of the device lookup the proxy needs
type DeviceInfo struct {
	IsEnabled *bool `json:"isEnabled"`
	Enabled   *bool `json:"enabled"`
}

// Resolve returns the enabled flag; ok is false when neither field is set
func (d *DeviceInfo) Resolve() (enabled bool, ok bool) {
	if d.IsEnabled != nil {
		return *d.IsEnabled, true
	}
	if d.Enabled != nil {
		return *d.Enabled, true
	}
	return false, false
}
