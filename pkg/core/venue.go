package core

import (
	"fmt"
	"strings"
)

// currencyCodeLen is the length of the currency suffix in a venue identifier.
const currencyCodeLen = 3

// Venue is an exchange together with the currency its market is quoted in.
type Venue struct {
	Exchange string
	Currency string
}

// ParseVenue splits a venue identifier such as "KrakenUSD" into its
// exchange name and 3-letter currency code.
func ParseVenue(id string) (Venue, error) {
	runes := []rune(id)
	if len(runes) <= currencyCodeLen {
		return Venue{}, fmt.Errorf("%w: %q", ErrInvalidVenue, id)
	}
	cut := len(runes) - currencyCodeLen
	return Venue{
		Exchange: string(runes[:cut]),
		Currency: string(runes[cut:]),
	}, nil
}

// String returns the venue in its identifier form.
func (v Venue) String() string {
	return v.Exchange + v.Currency
}

// UpperExchange returns the exchange name as order messages carry it.
func (v Venue) UpperExchange() string {
	return strings.ToUpper(v.Exchange)
}

// NormalizeCurrency maps ticker aliases onto their canonical code.
func NormalizeCurrency(code string) string {
	if code == aliasDSH {
		return CurrencyDASH
	}
	return code
}

// IsFiat reports whether the watched currency is priced against a BTC base.
func IsFiat(code string) bool {
	return code == CurrencyUSD || code == CurrencyEUR
}
