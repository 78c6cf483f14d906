package domain

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	coinMaxDigits = 8
	coinMinDigits = 6
)

// FormatUSD renders a USD amount with 2 fractional digits.
func FormatUSD(v float64) string {
	if !finite(v) {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// FormatCoin renders a coin amount with up to 8 and at least 6 fractional digits.
func FormatCoin(v float64) string {
	if !finite(v) {
		return ""
	}
	s := decimal.NewFromFloat(v).StringFixed(coinMaxDigits)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return s
	}
	for len(s)-dot-1 > coinMinDigits && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s
}

// FormatPercent renders a signed percentage with 2 fractional digits, e.g. "+1.25%".
func FormatPercent(v float64) string {
	if !finite(v) {
		return ""
	}
	d := decimal.NewFromFloat(v).Round(2)
	s := d.StringFixed(2)
	if d.IsPositive() {
		s = "+" + s
	}
	return s + "%"
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
