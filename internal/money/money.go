// Package money parses and displays decimal amounts.
//
// Amounts are github.com/shopspring/decimal values end to end: stored as
// canonical decimal text, summed exactly, and rounded only when formatted for
// display.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Parse reads a decimal amount such as "10", "10.50" or "0.333".
// Negative amounts are rejected; no price or total in the store is negative.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q must not be negative", s)
	}
	return d, nil
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Fixed renders d with two decimals, for exports and plain text.
func Fixed(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Formatter renders amounts for a locale, with grouping and two decimals.
type Formatter struct {
	printer *message.Printer
	symbol  string
}

// NewFormatter builds a formatter for a BCP 47 locale tag ("en", "es-MX")
// and a currency symbol placed before the number.
func NewFormatter(locale, symbol string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	return &Formatter{printer: message.NewPrinter(tag), symbol: symbol}, nil
}

// Format rounds d half away from zero to cents and renders it.
func (f *Formatter) Format(d decimal.Decimal) string {
	// Conversion to float happens after rounding, at the display boundary only.
	v := d.Round(2).InexactFloat64()
	return f.symbol + f.printer.Sprint(number.Decimal(v, number.Scale(2)))
}
