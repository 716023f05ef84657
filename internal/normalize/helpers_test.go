package normalize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/shapeeat/sales-service/internal/types"
)

func TestResolveStatus(t *testing.T) {
	tests := []struct {
		vend     string
		refunded bool
		want     types.Status
	}{
		{"success", false, types.StatusCompleted},
		{"  Delivered ", false, types.StatusCompleted},
		{"PAID", false, types.StatusCompleted},
		{"refunded", false, types.StatusRefunded},
		{"failure", false, types.StatusFailed},
		{"Declined", false, types.StatusFailed},
		{"canceled", false, types.StatusCancelled},
		{"cancelled", false, types.StatusCancelled},
		{"pending", false, types.StatusPending},
		{"", false, types.StatusUnknown},
		{"out of stock", false, types.StatusUnknown},
		{"success", true, types.StatusRefunded},
		{"failed", true, types.StatusRefunded},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveStatus(tt.vend, tt.refunded), "vend=%q refunded=%v", tt.vend, tt.refunded)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"", "0", true},
		{"4.20", "4.2", true},
		{" 3 ", "3", true},
		{"1,50", "1.5", true},
		{"1,234.50", "1234.5", true},
		{"1.234,50", "1234.5", true},
		{"12,345,678.9", "12345678.9", true},
		{"abc", "0", false},
		{"-2.00", "0", false},
	}

	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		assert.Equal(t, tt.wantOK, ok, "input %q", tt.in)
		assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "input %q: got %s", tt.in, got)
	}
}

func TestUniqueID(t *testing.T) {
	assert.Equal(t, "s1_p1_m1_h1_0", UniqueID(LineKey{SaleID: "s1", ProductSaleID: "p1", MachineID: "m1", HistoryID: "h1"}))
	assert.Equal(t, "s1_na_na_na_2", UniqueID(LineKey{SaleID: "s1", LineIndex: 2}))
	assert.Equal(t, "a-b_p1_na_na_0", UniqueID(LineKey{SaleID: "a_b", ProductSaleID: "p1"}))

	hashed := UniqueID(LineKey{MachineID: "m1"}, []byte(`{"x":1}`))
	assert.Len(t, hashed, len("h_")+40)
	assert.Equal(t, hashed, UniqueID(LineKey{MachineID: "m1"}, []byte(`{"x":1}`)))
	assert.NotEqual(t, hashed, UniqueID(LineKey{MachineID: "m1"}, []byte(`{"x":2}`)))
}

func TestFoldKey(t *testing.T) {
	assert.Equal(t, FoldKey("Café"), FoldKey("cafe"))
	assert.Equal(t, "non categorise", FoldKey("  Non   catégorisé "))
	assert.NotEqual(t, FoldKey("Boissons"), FoldKey("Plats"))
}
