package utils

import (
	"math"
	"strconv"
	"strings"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"THB": "฿",
}

// FormatCurrency renders a whole-unit amount with thousands separators, e.g. "$1,250".
// Unknown currency codes are used as a prefix: "CHF 1,250".
func FormatCurrency(amount float64, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	rounded := int64(math.Round(amount))

	sign := ""
	if rounded < 0 {
		sign = "-"
		rounded = -rounded
	}
	digits := groupThousands(strconv.FormatInt(rounded, 10))

	if symbol, ok := currencySymbols[code]; ok {
		return sign + symbol + digits
	}
	if code == "" {
		return sign + digits
	}
	return sign + code + " " + digits
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FormatPercent renders a fraction in [0,1] as a rounded percentage, e.g. "87%".
func FormatPercent(value float64) string {
	return strconv.Itoa(int(math.Round(value*100))) + "%"
}

// Clamp01 bounds value to [0,1]; NaN becomes 0.
func Clamp01(value float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	return math.Min(1, math.Max(0, value))
}
