package entity

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is an amount in minor currency units (cents)
type Money int64

var moneyPrinter = message.NewPrinter(language.English)

// MoneyFromFloat converts a major-unit amount to Money, rounding half away from zero
func MoneyFromFloat(amount float64) Money {
	return Money(math.Round(amount * 100))
}

// ParseMoney parses a decimal string such as "5000", "5000.5" or "$5,000.00"
func ParseMoney(s string) (Money, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "$")
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return 0, fmt.Errorf("invalid amount %q: empty", s)
	}

	negative := false
	if strings.HasPrefix(raw, "-") {
		negative = true
		raw = raw[1:]
	}

	whole, frac, hasFrac := strings.Cut(raw, ".")
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	var cents int64
	if hasFrac {
		if len(frac) == 0 || len(frac) > 2 {
			return 0, fmt.Errorf("invalid amount %q: expected at most two decimal places", s)
		}
		if len(frac) == 1 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
	}

	total := units*100 + cents
	if negative {
		total = -total
	}
	return Money(total), nil
}

// Cents returns the amount in minor units
func (m Money) Cents() int64 {
	return int64(m)
}

// Float returns the amount in major units. Use for display only.
func (m Money) Float() float64 {
	return float64(m) / 100
}

// String formats the amount as a dollar value with thousands separators, e.g. "$5,000.00"
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%s.%02d", sign, moneyPrinter.Sprintf("%d", v/100), v%100)
}

// Decimal formats the amount without currency symbol or grouping, e.g. "5000.00"
func (m Money) Decimal() string {
	v := int64(m)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
