// Package core implements the budget computation engine: catalogs,
// item normalization, schema migration, aggregation and bulk import.
//
// All monetary values are int64 cents. Decimal input is converted once
// at the boundary; every derived figure is integer arithmetic so totals
// are reproducible across runs.
package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var ErrInvalidAmount = errors.New("invalid amount")

// MinUnitCents is the smallest accepted unit amount (one cent, i.e. 0.01).
const MinUnitCents int64 = 1

// ParseDecimalToCents converts a decimal string to cents with half-up
// rounding on the third decimal place. Currency symbols and thousands
// separators are stripped first, so "$5,000.50" parses to 500050.
// Returns an error for malformed, negative or zero amounts.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafe = (1<<63 - 1) / 100
	if iv > maxSafe {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ClampCents raises cents to at least min. The normalizer and the
// legacy migrator repair amounts rather than reject them.
func ClampCents(cents, min int64) int64 {
	if cents < min {
		return min
	}
	return cents
}

// PercentOf applies an integer percentage to a cent amount with half-up
// rounding, matching round2(subtotal * rate/100) on decimals.
func PercentOf(cents, percent int64) int64 {
	if percent <= 0 {
		return 0
	}
	n := cents * percent
	q := n / 100
	if n%100 >= 50 {
		q++
	}
	return q
}

// FormatDecimal renders cents as a plain decimal string ("1500.00").
func FormatDecimal(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := fmt.Sprintf("%d.%02d", cents/100, cents%100)
	if neg {
		return "-" + s
	}
	return s
}
