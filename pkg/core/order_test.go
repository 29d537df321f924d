package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderMessage(t *testing.T) {
	res := SizingResult{
		BuyVenue:          Venue{Exchange: "Kraken", Currency: "USD"},
		SellVenue:         Venue{Exchange: "Gdax", Currency: "USD"},
		BuyBaseCurrency:   "BTC",
		BuyQuoteCurrency:  "USD",
		SellBaseCurrency:  "BTC",
		SellQuoteCurrency: "USD",
		BuyVolume:         0.005,
		SellVolume:        0.005,
		BuyPrice:          101,
		SellPrice:         104,
	}
	acct := AccountCandidate{
		UserID:                 9,
		InvestmentStrategyID:   2,
		BuyBalance:             0.002,
		SellBalance:            0.003,
		BuyExchangeKey:         "bk",
		BuyExchangeSecret:      "bs",
		BuyExchangePassphrase:  "bp",
		SellExchangeKey:        "sk",
		SellExchangeSecret:     "ss",
		SellExchangePassphrase: "sp",
	}

	msg := NewOrderMessage(res, acct)

	assert.Equal(t, OrderTypeInterExchangeArb, msg.OrderType)
	// Volumes come from the account, not from the sizing.
	assert.Equal(t, 0.002, msg.OrderSpecs.BuyVolume)
	assert.Equal(t, 0.003, msg.OrderSpecs.SellVolume)
	assert.Equal(t, 101.0, msg.OrderSpecs.BuyPrice)
	assert.Equal(t, 104.0, msg.OrderSpecs.SellPrice)
	assert.Equal(t, "KRAKEN", msg.OrderSpecs.BuyExchange)
	assert.Equal(t, "GDAX", msg.OrderSpecs.SellExchange)
	assert.Equal(t, int64(9), msg.UserSpecs.UserID)
	assert.Equal(t, "sp", msg.UserSpecs.SellExchangePassphrase)
	assert.Equal(t, "bk", msg.UserSpecs.BuyExchangeKey)
}

func TestOrderMessage_JSONFieldNames(t *testing.T) {
	msg := NewOrderMessage(SizingResult{}, AccountCandidate{})
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]map[string]any
	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &top))
	assert.Contains(t, top, "order_type")

	delete(top, "order_type")
	rest, err := json.Marshal(top)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(rest, &raw))

	for _, key := range []string{
		"buy_base_currency", "buy_quote_currency", "buy_volume", "buy_price", "buy_exchange",
		"sell_base_currency", "sell_quote_currency", "sell_volume", "sell_price", "sell_exchange",
	} {
		assert.Contains(t, raw["order_specs"], key)
	}
	for _, key := range []string{
		"user_id", "investment_strategy_id",
		"sell_exchange_key", "sell_exchange_secret", "sell_exchange_passphrase",
		"buy_exchange_key", "buy_exchange_secret", "buy_exchange_passphrase",
	} {
		assert.Contains(t, raw["user_specs"], key)
	}
}

func TestOutcome(t *testing.T) {
	assert.True(t, Sent().OK())
	assert.Equal(t, "SENT", Sent().String())

	skipped := Skipped(ErrCurrencyMismatch)
	assert.False(t, skipped.OK())
	assert.Equal(t, StatusSkipped, skipped.Status)
	assert.True(t, errors.Is(skipped.Reason, ErrCurrencyMismatch))
	assert.Equal(t, "SKIPPED: buy and sell currencies differ", skipped.String())

	failed := Failed(errors.New("boom"))
	assert.Equal(t, StatusFailed, failed.Status)
	assert.False(t, failed.OK())
}

func TestDedupeKey(t *testing.T) {
	a := OpportunitySignal{Kask: "KrakenUSD", Kbid: "GdaxUSD", WeightedBuyPrice: 100, WeightedSellPrice: 105, MaxBuyPrice: 101, MinSellPrice: 104}
	b := a
	b.Volume = 3 // volume does not identify a signal
	assert.Equal(t, DedupeKey(a), DedupeKey(b))

	c := a
	c.MinSellPrice = 103
	assert.NotEqual(t, DedupeKey(a), DedupeKey(c))
}
