package core

import "context"

// OpportunitySignal is a price discrepancy between two venues as reported
// by the market watcher. Kask is the venue to buy on, Kbid the venue to
// sell on.
type OpportunitySignal struct {
	Profit            float64 `json:"profit"`
	Volume            float64 `json:"volume"`
	BuyPrice          float64 `json:"buyprice"`
	SellPrice         float64 `json:"sellprice"`
	Perc              float64 `json:"perc"`
	WeightedBuyPrice  float64 `json:"weighted_buyprice"`
	WeightedSellPrice float64 `json:"weighted_sellprice"`
	MaxBuyPrice       float64 `json:"max_buy_price"`
	MinSellPrice      float64 `json:"min_sell_price"`
	Kask              string  `json:"kask"`
	Kbid              string  `json:"kbid"`
}

// SizingResult holds the trade parameters derived from a signal.
type SizingResult struct {
	BuyVenue  Venue
	SellVenue Venue

	BuyBaseCurrency   string
	BuyQuoteCurrency  string
	SellBaseCurrency  string
	SellQuoteCurrency string
	InvestorCurrency  string

	BuyVolume  float64
	SellVolume float64
	BuyPrice   float64
	SellPrice  float64

	ExpectedProfit float64
	LimitProfit    float64
	ExpectedROI    float64
	LimitROI       float64
	ValueAtRisk    float64
}

// AccountCandidate is an account eligible to take part in an opportunity,
// as returned by the account lookup service.
type AccountCandidate struct {
	UserID                 int64   `json:"user_id"`
	InvestmentStrategyID   int64   `json:"investment_strategy_id"`
	BuyBalance             float64 `json:"buy_balance"`
	SellBalance            float64 `json:"sell_balance"`
	BuyExchangeKey         string  `json:"buy_exchange_key"`
	BuyExchangeSecret      string  `json:"buy_exchange_secret"`
	BuyExchangePassphrase  string  `json:"buy_exchange_passphrase"`
	SellExchangeKey        string  `json:"sell_exchange_key"`
	SellExchangeSecret     string  `json:"sell_exchange_secret"`
	SellExchangePassphrase string  `json:"sell_exchange_passphrase"`
}

// AccountQuery is the filter sent to the account lookup service.
type AccountQuery struct {
	BuyCurrency  string
	BuyExchange  string
	SellCurrency string
	SellExchange string
}

// AccountLookup returns the accounts eligible for an opportunity.
type AccountLookup interface {
	LookupAccounts(ctx context.Context, q AccountQuery) ([]AccountCandidate, error)
}

// OrderPublisher delivers order messages downstream.
type OrderPublisher interface {
	Push(ctx context.Context, msg OrderMessage) Outcome
}
