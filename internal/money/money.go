// Package money holds the arithmetic and formatting rules for receipt amounts.
//
// Review-time arithmetic is float64 display math. Amounts that are persisted go
// through decimal.Decimal and are rounded to the currency's fraction digits.
package money

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

func init() {
	// Persisted totals are rendered as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Currency is an ISO 4217 code supported by the application
type Currency string

const (
	VND Currency = "VND"
	USD Currency = "USD"
	EUR Currency = "EUR"
)

// DefaultCurrency is used when a receipt or note does not name one
const DefaultCurrency = VND

// Currencies lists every supported currency
var Currencies = []Currency{VND, USD, EUR}

// ParseCurrency parses a currency code case-insensitively. An empty code yields DefaultCurrency.
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	for _, c := range Currencies {
		if string(c) == code {
			return c, nil
		}
	}
	return "", fmt.Errorf("unsupported currency: %s", code)
}

// FractionDigits returns the number of minor-unit digits for the currency
func (c Currency) FractionDigits() int32 {
	if c == VND {
		return 0
	}
	return 2
}

// Symbol returns the display symbol for the currency
func (c Currency) Symbol() string {
	switch c {
	case VND:
		return "₫"
	case USD:
		return "$"
	case EUR:
		return "€"
	default:
		return string(c)
	}
}

// NormalizeQuantity clamps a quantity to be non-negative. NaN becomes 0.
func NormalizeQuantity(q float64) float64 {
	if math.IsNaN(q) || q < 0 {
		return 0
	}
	return q
}

// LineTotal is the display total for a line: quantity * unit price
func LineTotal(quantity, unitPrice float64) float64 {
	return NormalizeQuantity(quantity) * unitPrice
}

// Round rounds an amount half away from zero to the currency's fraction digits
func Round(amount decimal.Decimal, c Currency) decimal.Decimal {
	return amount.Round(c.FractionDigits())
}

// LineTotalExact is the authoritative line total used when persisting items
func LineTotalExact(quantity, unitPrice decimal.Decimal, c Currency) decimal.Decimal {
	if quantity.IsNegative() {
		quantity = decimal.Zero
	}
	return Round(quantity.Mul(unitPrice), c)
}

// Sum adds amounts. It returns zero for an empty list.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// FromFloat converts a display amount to a decimal rounded for the currency
func FromFloat(amount float64, c Currency) decimal.Decimal {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return decimal.Zero
	}
	return Round(decimal.NewFromFloat(amount), c)
}

// Format renders an amount the way the currency is usually written:
// 70.000 ₫, $12.50, €12,50.
func Format(amount float64, c Currency) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	var s string
	switch c {
	case VND:
		s = humanize.FormatFloat("#.###,", amount) + " " + c.Symbol()
	case EUR:
		s = c.Symbol() + humanize.FormatFloat("#.###,##", amount)
	case USD:
		s = c.Symbol() + humanize.FormatFloat("#,###.##", amount)
	default:
		s = humanize.FormatFloat("#,###.##", amount) + " " + string(c)
	}

	if negative {
		return "-" + s
	}
	return s
}

// FormatDecimal is Format for persisted amounts
func FormatDecimal(amount decimal.Decimal, c Currency) string {
	return Format(amount.InexactFloat64(), c)
}
