// Package format converts raw base-unit (wei) amounts into human-readable
// decimal strings. All monetary formatting in the repository goes through
// this package; services never do decimal math inline.
package format

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is assumed when an asset does not declare its own.
const DefaultDecimals = 18

// maxFractionDigits caps the fractional precision of formatted amounts.
const maxFractionDigits = 6

// scorePercentShift converts a Celo fixidity score (1e24 = 100%) into a
// two-decimal percentage: score / 1e22.
const scorePercentShift = 22

// Units renders raw / 10^decimals with at most min(decimals, 6) fractional
// digits, stripping trailing zeros and a trailing decimal point.
func Units(raw *big.Int, decimals int) string {
	if raw == nil {
		return "0"
	}
	if decimals <= 0 {
		return raw.String()
	}

	d := decimal.NewFromBigInt(raw, 0).Shift(int32(-decimals))

	places := decimals
	if places > maxFractionDigits {
		places = maxFractionDigits
	}

	s := d.StringFixed(int32(places))
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// UnitsFromString is Units for amounts carried as decimal strings.
// Invalid input formats as "0".
func UnitsFromString(raw string, decimals int) string {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return "0"
	}
	return Units(n, decimals)
}

// ScorePercent renders a validator score (fixidity fraction, 1e24 = 100%)
// as a percentage string with two decimals, e.g. "99.87%".
func ScorePercent(score *big.Int) string {
	if score == nil {
		return "0.00%"
	}
	d := decimal.NewFromBigInt(score, 0).Shift(-scorePercentShift)
	return d.StringFixed(2) + "%"
}

// ShortAddress renders 0x1234...abcd style abbreviations for display fields.
func ShortAddress(addr string) string {
	if len(addr) <= 13 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
