// Package preferences stores per-academy display preferences.
package preferences

import (
	"errors"
	"fmt"
	"strings"
)

// Currency is a display currency for fees and payments
type Currency string

const (
	USD Currency = "USD"
	INR Currency = "INR"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	AED Currency = "AED"
)

// DefaultCurrency is used when no valid preference is stored
const DefaultCurrency = INR

// CurrencyKey is the key the currency preference is stored under
const CurrencyKey = "academy.currency"

// ErrInvalidCurrency is returned for values outside the supported set
var ErrInvalidCurrency = errors.New("invalid currency")

// Currencies returns every supported currency
func Currencies() []Currency {
	return []Currency{USD, INR, EUR, GBP, AED}
}

// ParseCurrency converts a raw value into a Currency. Matching is exact;
// surrounding whitespace is ignored.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.TrimSpace(s))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
	}
	return c, nil
}

// CurrencyOrDefault parses s, falling back to DefaultCurrency
func CurrencyOrDefault(s string) Currency {
	c, err := ParseCurrency(s)
	if err != nil {
		return DefaultCurrency
	}
	return c
}

// IsValid reports whether c is a supported currency
func (c Currency) IsValid() bool {
	switch c {
	case USD, INR, EUR, GBP, AED:
		return true
	}
	return false
}

// Symbol returns the display symbol of c
func (c Currency) Symbol() string {
	switch c {
	case USD:
		return "$"
	case INR:
		return "₹"
	case EUR:
		return "€"
	case GBP:
		return "£"
	case AED:
		return "د.إ"
	}
	return ""
}

func (c Currency) String() string {
	return string(c)
}
