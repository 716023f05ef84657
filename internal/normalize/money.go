package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses an upstream monetary string. Empty, non-numeric and
// negative values resolve to zero; ok reports whether the input was usable.
func ParseAmount(s string) (amount decimal.Decimal, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, true
	}
	s = decimalPoint(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// decimalPoint rewrites a comma decimal separator ("1,50", "1.234,50") to a
// point. When the point comes last the commas group thousands ("1,234.50").
func decimalPoint(s string) string {
	comma := strings.LastIndex(s, ",")
	if comma < 0 {
		return s
	}
	if strings.LastIndex(s, ".") > comma {
		return strings.ReplaceAll(s, ",", "")
	}
	s = strings.ReplaceAll(s, ".", "")
	return strings.ReplaceAll(s, ",", ".")
}
