package web

import (
	"fmt"
	"math"
	"strings"
)

// FormatCurrency formats an amount with commas and no decimal places, e.g. -$1,250,000
func FormatCurrency(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
	}
	formatted := fmt.Sprintf("%.0f", math.Abs(amount))

	parts := []string{}
	for i := len(formatted); i > 0; i -= 3 {
		start := i - 3
		if start < 0 {
			start = 0
		}
		parts = append([]string{formatted[start:i]}, parts...)
	}

	return sign + "$" + strings.Join(parts, ",")
}

// FormatExposure abbreviates large dollar exposures, e.g. $1.25B or -$340.0M
func FormatExposure(amount float64) string {
	abs := math.Abs(amount)
	sign := ""
	if amount < 0 {
		sign = "-"
	}
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%s$%.2fB", sign, abs/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%s$%.1fM", sign, abs/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%s$%.1fK", sign, abs/1e3)
	}
	return FormatCurrency(amount)
}
