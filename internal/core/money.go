// Package core provides the report pipeline domain types.
//
// This file contains the amount formatting used in report messages.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAmount renders an amount with thousands separators.
//
// Fractional digits are only printed when they are non-zero, trailing zeros
// removed. The sign is kept for negative values.
//
// Examples:
//
//	FormatAmount(72000)    -> "72,000"
//	FormatAmount(-1234.50) -> "-1,234.5"
func FormatAmount(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().String()

	intPart, fracPart, _ := strings.Cut(s, ".")
	fracPart = strings.TrimRight(fracPart, "0")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(groupThousands(intPart))
	if fracPart != "" {
		b.WriteByte('.')
		b.WriteString(fracPart)
	}
	return b.String()
}

// FormatSignedAmount is FormatAmount with an explicit "+" for positive values.
func FormatSignedAmount(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + FormatAmount(d)
	}
	return FormatAmount(d)
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
