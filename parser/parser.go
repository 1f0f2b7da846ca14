// Package parser holds the pure field extractors applied to listing text.
// Each extractor reports absence explicitly; defaults are chosen by the caller.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

var (
	priceNoise       = regexp.MustCompile(`[^\d,.]`)
	pricePerUnitExpr = regexp.MustCompile(`(\d+[,.]\d+)\s*€?\s*/\s*pcs`)
	packagingExpr    = regexp.MustCompile(`(?i)(\d+)\s*pcs\s*/\s*(carton|boite|box|paquet|pack|package)`)
)

// ValidateRecord ensures a record carries a name. An empty carton price is
// legitimate: the storefront shows "Sur devis" for some products.
func ValidateRecord(r *models.ProductRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("record missing name")
	}
	return nil
}

// NormalizePrice keeps digits and separators and turns the decimal comma
// into a dot: "12,50 €" becomes "12.50".
func NormalizePrice(price string) string {
	price = priceNoise.ReplaceAllString(price, "")
	return strings.ReplaceAll(price, ",", ".")
}

// ParsePricePerUnit finds "<n>,<nn> € / pcs" in a short description.
func ParsePricePerUnit(desc string) (string, bool) {
	m := pricePerUnitExpr.FindStringSubmatch(desc)
	if m == nil {
		return "", false
	}
	return strings.ReplaceAll(m[1], ",", "."), true
}

// ParsePackaging finds "<n> pcs / <packaging>" in a short description and
// returns the unit count and packaging word as written.
func ParsePackaging(desc string) (units, packaging string, ok bool) {
	m := packagingExpr.FindStringSubmatch(desc)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
