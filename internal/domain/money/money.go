// Package money converts exact decimal amounts into integer minor currency
// units (tyiyn for KGS) so amounts can be compared without floating point.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MinorPerMajor is the number of minor units in one major unit.
const MinorPerMajor = 100

// MinorUnits returns |d| in minor units, rounding half up.
func MinorUnits(d decimal.Decimal) int64 {
	return d.Abs().Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts minor units back into a decimal amount.
func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -2)
}

// Parse reads a money-like cell such as "1 234,50", "1,234.50", "-350.00" or
// "350.00 сом". The last of ',' and '.' is the decimal separator and every
// other separator is dropped. A '-' or '−' before the first digit makes the
// amount negative. ok is false when the cell holds no digits.
func Parse(s string) (d decimal.Decimal, ok bool) {
	var b strings.Builder
	digits, negative := false, false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits = true
		case (r == '.' || r == ',') && digits:
			b.WriteRune(r)
		case (r == '-' || r == '−') && !digits:
			negative = true
		}
	}
	if !digits {
		return decimal.Zero, false
	}
	cleaned := strings.TrimRight(b.String(), ".,")

	sep := strings.LastIndexAny(cleaned, ".,")
	if sep >= 0 && strings.Count(cleaned, cleaned[sep:sep+1]) > 1 && !strings.ContainsAny(cleaned[:sep], otherSep(cleaned[sep])) {
		// "1,234,567" or "1.234.567": a repeated separator groups thousands.
		sep = -1
	}

	var intPart, fracPart string
	if sep >= 0 {
		intPart, fracPart = cleaned[:sep], cleaned[sep+1:]
	} else {
		intPart = cleaned
	}
	drop := strings.NewReplacer(",", "", ".", "")
	intPart, fracPart = drop.Replace(intPart), drop.Replace(fracPart)

	num := intPart
	if fracPart != "" {
		num += "." + fracPart
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

func otherSep(c byte) string {
	if c == '.' {
		return ","
	}
	return "."
}
