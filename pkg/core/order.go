package core

// OrderMessage is the instruction handed to the execution side for one
// account. It is the plaintext of every encrypted envelope.
type OrderMessage struct {
	OrderType  string    `json:"order_type"`
	OrderSpecs OrderSpec `json:"order_specs"`
	UserSpecs  UserSpec  `json:"user_specs"`
}

// OrderSpec describes both legs of the arbitrage trade.
type OrderSpec struct {
	BuyBaseCurrency   string  `json:"buy_base_currency"`
	BuyQuoteCurrency  string  `json:"buy_quote_currency"`
	BuyVolume         float64 `json:"buy_volume"`
	BuyPrice          float64 `json:"buy_price"`
	BuyExchange       string  `json:"buy_exchange"`
	SellBaseCurrency  string  `json:"sell_base_currency"`
	SellQuoteCurrency string  `json:"sell_quote_currency"`
	SellVolume        float64 `json:"sell_volume"`
	SellPrice         float64 `json:"sell_price"`
	SellExchange      string  `json:"sell_exchange"`
}

// UserSpec identifies the account and carries its venue credentials.
type UserSpec struct {
	UserID                 int64  `json:"user_id"`
	InvestmentStrategyID   int64  `json:"investment_strategy_id"`
	SellExchangeKey        string `json:"sell_exchange_key"`
	SellExchangeSecret     string `json:"sell_exchange_secret"`
	SellExchangePassphrase string `json:"sell_exchange_passphrase"`
	BuyExchangeKey         string `json:"buy_exchange_key"`
	BuyExchangeSecret      string `json:"buy_exchange_secret"`
	BuyExchangePassphrase  string `json:"buy_exchange_passphrase"`
}

// NewOrderMessage builds the order for one account. Volumes come from the
// account's balances; prices, currencies and venues from the sizing.
func NewOrderMessage(res SizingResult, acct AccountCandidate) OrderMessage {
	return OrderMessage{
		OrderType: OrderTypeInterExchangeArb,
		OrderSpecs: OrderSpec{
			BuyBaseCurrency:   res.BuyBaseCurrency,
			BuyQuoteCurrency:  res.BuyQuoteCurrency,
			BuyVolume:         acct.BuyBalance,
			BuyPrice:          res.BuyPrice,
			BuyExchange:       res.BuyVenue.UpperExchange(),
			SellBaseCurrency:  res.SellBaseCurrency,
			SellQuoteCurrency: res.SellQuoteCurrency,
			SellVolume:        acct.SellBalance,
			SellPrice:         res.SellPrice,
			SellExchange:      res.SellVenue.UpperExchange(),
		},
		UserSpecs: UserSpec{
			UserID:                 acct.UserID,
			InvestmentStrategyID:   acct.InvestmentStrategyID,
			SellExchangeKey:        acct.SellExchangeKey,
			SellExchangeSecret:     acct.SellExchangeSecret,
			SellExchangePassphrase: acct.SellExchangePassphrase,
			BuyExchangeKey:         acct.BuyExchangeKey,
			BuyExchangeSecret:      acct.BuyExchangeSecret,
			BuyExchangePassphrase:  acct.BuyExchangePassphrase,
		},
	}
}
