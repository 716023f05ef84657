package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	keyDelimiter = "_"
	missingPart  = "na"
	hashPrefix   = "h_"
)

// LineKey carries the upstream identifiers of one line
type LineKey struct {
	SaleID        string
	ProductSaleID string
	MachineID     string
	HistoryID     string
	LineIndex     int
}

// UniqueID derives the line's unique id from upstream-stable identifiers
// only, so that syncing the same sale twice yields the same id. When the
// upstream gives neither a sale id nor a product-sale id, the id is a
// content hash of the line.
func UniqueID(k LineKey, content ...[]byte) string {
	if k.SaleID == "" && k.ProductSaleID == "" {
		return ContentHash(append([][]byte{[]byte(k.MachineID), []byte(k.HistoryID), []byte(strconv.Itoa(k.LineIndex))}, content...)...)
	}
	parts := []string{
		orMissing(k.SaleID),
		orMissing(k.ProductSaleID),
		orMissing(k.MachineID),
		orMissing(k.HistoryID),
		strconv.Itoa(k.LineIndex),
	}
	return strings.Join(parts, keyDelimiter)
}

// ContentHash returns a prefixed sha256 of the given parts
func ContentHash(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
		h.Write([]byte{0})
	}
	return hashPrefix + hex.EncodeToString(h.Sum(nil))[:40]
}

func orMissing(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return missingPart
	}
	return strings.ReplaceAll(s, keyDelimiter, "-")
}

// FoldKey returns a grouping key for product and category names: accents
// stripped, case folded, whitespace collapsed.
func FoldKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
