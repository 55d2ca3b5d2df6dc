package journal

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Masked replaces every monetary value while privacy mode is on.
const Masked = "****"

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
)

// FormatAmount renders an amount as "$1,234.5" or "-$80", or Masked in privacy mode.
func FormatAmount(amount decimal.Decimal, currency string, privacy bool) string {
	if privacy {
		return Masked
	}
	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	return sign + currency + groupThousands(amount.Abs().String())
}

// FormatCompact renders an amount with K/M suffixes and one decimal, e.g. "$12.5K".
func FormatCompact(amount decimal.Decimal, currency string, privacy bool) string {
	if privacy {
		return Masked
	}
	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	abs := amount.Abs()
	var body string
	switch {
	case abs.GreaterThanOrEqual(million):
		body = trimZero(abs.Div(million).Round(1).StringFixed(1)) + "M"
	case abs.GreaterThanOrEqual(thousand):
		body = trimZero(abs.Div(thousand).Round(1).StringFixed(1)) + "K"
	default:
		body = abs.Round(2).String()
	}
	return sign + currency + body
}

func trimZero(s string) string {
	return strings.TrimSuffix(s, ".0")
}

func groupThousands(s string) string {
	intPart, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
