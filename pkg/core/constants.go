package core

import "errors"

// Errors
var (
	ErrInvalidVenue      = errors.New("invalid venue identifier")
	ErrCurrencyMismatch  = errors.New("buy and sell currencies differ")
	ErrInvestorCurrency  = errors.New("investor currency not represented in opportunity")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrMalformedResponse = errors.New("malformed account lookup response")
	ErrDuplicateSignal   = errors.New("duplicate opportunity signal")
)

// Currency codes and defaults used by the sizing engine.
const (
	CurrencyBTC  = "BTC"
	CurrencyUSD  = "USD"
	CurrencyEUR  = "EUR"
	CurrencyDASH = "DASH"

	// aliasDSH is how some venues spell DASH in their market names.
	aliasDSH = "DSH"

	// OrderTypeInterExchangeArb tags every order message produced by the engine.
	OrderTypeInterExchangeArb = "inter_exchange_arb"

	DefaultInvestorCurrency = CurrencyBTC
	DefaultMaxTxVolume      = 0.005
)
