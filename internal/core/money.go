// Package core provides the domain records of the tracker and the helpers that
// validate and parse them.
//
// This file contains amount parsing. Amounts are kept as decimals in the base
// currency unit so sums never pick up floating-point drift.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

func init() {
	// Export artifacts and API payloads carry amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// ParseAmount converts a user-entered amount to a decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, ignores
// spaces used as thousands separators ("500 000") and rejects negative or
// malformed values. Zero is accepted.
//
// Examples:
//
//	ParseAmount("500000")  -> 500000, nil
//	ParseAmount("12,5")    -> 12.5, nil
//	ParseAmount("1 250.75") -> 1250.75, nil
//	ParseAmount("-3")      -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, part := range parts {
		for _, r := range part {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	if parts[0] == "" && (len(parts) == 1 || parts[1] == "") {
		return decimal.Zero, ErrInvalidAmount
	}
	if parts[0] == "" {
		parts[0] = "0"
	}
	if len(parts) == 2 && parts[1] == "" {
		parts = parts[:1]
	}
	d, err := decimal.NewFromString(strings.Join(parts, "."))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
