// Package sizing turns a cross-venue price discrepancy into trade
// parameters and fans the resulting orders out to eligible accounts.
package sizing

import (
	"fmt"

	"github.com/erain9/arbsignal/pkg/core"
)

// Params bounds the trades the engine proposes. Zero fields take the
// package defaults.
type Params struct {
	// InvestorCurrency is the currency the investor's capital is held in.
	InvestorCurrency string
	// MaxTxVolume caps a single trade, in the investor currency.
	MaxTxVolume float64
}

// DefaultParams returns the default sizing parameters.
func DefaultParams() Params {
	return Params{
		InvestorCurrency: core.DefaultInvestorCurrency,
		MaxTxVolume:      core.DefaultMaxTxVolume,
	}
}

func (p Params) withDefaults() Params {
	if p.InvestorCurrency == "" {
		p.InvestorCurrency = core.DefaultInvestorCurrency
	}
	p.InvestorCurrency = core.NormalizeCurrency(p.InvestorCurrency)
	if p.MaxTxVolume <= 0 {
		p.MaxTxVolume = core.DefaultMaxTxVolume
	}
	return p
}

// Size computes the trade parameters for sig. It is pure. A signal the
// engine cannot trade yields a Skipped outcome carrying the reason; the
// result is then only partially filled.
func Size(sig core.OpportunitySignal, p Params) (core.SizingResult, core.Outcome) {
	p = p.withDefaults()

	buy, err := core.ParseVenue(sig.Kask)
	if err != nil {
		return core.SizingResult{}, core.Skipped(err)
	}
	sell, err := core.ParseVenue(sig.Kbid)
	if err != nil {
		return core.SizingResult{}, core.Skipped(err)
	}

	res := core.SizingResult{
		BuyVenue:         buy,
		SellVenue:        sell,
		InvestorCurrency: p.InvestorCurrency,
		BuyPrice:         sig.MaxBuyPrice,
		SellPrice:        sig.MinSellPrice,
	}

	if buy.Currency != sell.Currency {
		return res, core.Skipped(fmt.Errorf("%w: %s vs %s", core.ErrCurrencyMismatch, buy.Currency, sell.Currency))
	}
	if sig.WeightedBuyPrice <= 0 || sig.MaxBuyPrice <= 0 {
		return res, core.Skipped(fmt.Errorf("%w: weighted buy %g, max buy %g",
			core.ErrInvalidPrice, sig.WeightedBuyPrice, sig.MaxBuyPrice))
	}

	// Fiat markets trade BTC against the fiat; anything else trades against BTC.
	watched := core.NormalizeCurrency(sell.Currency)
	base, quote := watched, core.CurrencyBTC
	if core.IsFiat(watched) {
		base, quote = core.CurrencyBTC, watched
	}
	res.BuyBaseCurrency, res.BuyQuoteCurrency = base, quote
	res.SellBaseCurrency, res.SellQuoteCurrency = base, quote

	weightedSpread := sig.WeightedSellPrice - sig.WeightedBuyPrice
	limitSpread := sig.MinSellPrice - sig.MaxBuyPrice

	switch p.InvestorCurrency {
	case base:
		res.BuyVolume = min(sig.Volume, p.MaxTxVolume)
		res.ExpectedProfit = weightedSpread * res.BuyVolume
		res.LimitProfit = limitSpread * res.BuyVolume
		res.ValueAtRisk = res.BuyVolume
	case quote:
		res.BuyVolume = min(sig.Volume, p.MaxTxVolume/sig.MaxBuyPrice)
		res.ExpectedProfit = weightedSpread * res.BuyVolume / sig.WeightedBuyPrice
		res.LimitProfit = limitSpread * res.BuyVolume / sig.MaxBuyPrice
		res.ValueAtRisk = res.BuyVolume * sig.MaxBuyPrice
	default:
		return res, core.Skipped(fmt.Errorf("%w: %s not in %s/%s",
			core.ErrInvestorCurrency, p.InvestorCurrency, base, quote))
	}
	res.SellVolume = res.BuyVolume

	res.ExpectedROI = sig.WeightedSellPrice/sig.WeightedBuyPrice - 1
	res.LimitROI = sig.MinSellPrice/sig.MaxBuyPrice - 1

	return res, core.Sent()
}

// Query returns the account lookup filter for a sized opportunity.
func Query(res core.SizingResult) core.AccountQuery {
	return core.AccountQuery{
		BuyCurrency:  res.BuyBaseCurrency,
		BuyExchange:  res.BuyVenue.Exchange,
		SellCurrency: res.SellBaseCurrency,
		SellExchange: res.SellVenue.Exchange,
	}
}
