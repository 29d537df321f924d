// Package accounts is the client of the account lookup service, which
// returns the accounts eligible to trade a given opportunity.
package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erain9/arbsignal/pkg/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the lookup endpoint settings.
type Config struct {
	Endpoint    string
	APIKey      string
	HTTPTimeout time.Duration
	MaxRetries  int
	// RetryDelay is multiplied by the attempt number between retries.
	RetryDelay time.Duration
}

// requiredFields lists the keys every candidate must carry.
var requiredFields = []string{
	"user_id",
	"investment_strategy_id",
	"buy_balance",
	"sell_balance",
	"buy_exchange_key",
	"buy_exchange_secret",
	"buy_exchange_passphrase",
	"sell_exchange_key",
	"sell_exchange_secret",
	"sell_exchange_passphrase",
}

// Client implements core.AccountLookup over HTTP.
type Client struct {
	client *http.Client
	cfg    Config
	logger zerolog.Logger
}

// NewClient creates a lookup client.
func NewClient(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &Client{
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		cfg:    cfg,
		logger: log.With().Str("component", "accounts").Logger(),
	}
}

// WithLogger returns c with a different logger.
func (c *Client) WithLogger(l zerolog.Logger) *Client {
	c.logger = l
	return c
}

// LookupAccounts posts q to the lookup endpoint and returns the eligible
// accounts. Transport failures and 5xx answers are retried; any other
// status, or a candidate missing a field, fails immediately.
func (c *Client) LookupAccounts(ctx context.Context, q core.AccountQuery) ([]core.AccountCandidate, error) {
	form := url.Values{}
	form.Set("api_key", c.cfg.APIKey)
	form.Set("buy_currency", q.BuyCurrency)
	form.Set("buy_exchange", q.BuyExchange)
	form.Set("sell_currency", q.SellCurrency)
	form.Set("sell_exchange", q.SellExchange)
	body := form.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("account lookup aborted: %w", ctx.Err())
			case <-time.After(time.Duration(attempt-1) * c.cfg.RetryDelay):
			}
		}

		candidates, retry, err := c.post(ctx, body)
		if err == nil {
			c.logger.Debug().
				Int("accounts", len(candidates)).
				Int("attempt", attempt).
				Msg("Fetched eligible accounts")
			return candidates, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = fmt.Errorf("attempt %d/%d: %w", attempt, c.cfg.MaxRetries, err)
		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_retries", c.cfg.MaxRetries).
			Msg("Account lookup failed")
	}
	return nil, fmt.Errorf("account lookup failed after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

// post performs one request. The bool reports whether the failure is worth
// retrying.
func (c *Client) post(ctx context.Context, body string) ([]core.AccountCandidate, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("account lookup aborted: %w", ctx.Err())
		}
		return nil, true, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("lookup service returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("lookup service returned status %d", resp.StatusCode)
	}

	candidates, err := decodeCandidates(resp.Body)
	if err != nil {
		return nil, false, err
	}
	return candidates, false, nil
}

func decodeCandidates(r io.Reader) ([]core.AccountCandidate, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}
	data, ok := raw["data"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"data\"", core.ErrMalformedResponse)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: \"data\" is not a list: %v", core.ErrMalformedResponse, err)
	}
	if items == nil {
		return nil, fmt.Errorf("%w: \"data\" is null", core.ErrMalformedResponse)
	}

	candidates := make([]core.AccountCandidate, 0, len(items))
	for i, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil {
			return nil, fmt.Errorf("%w: candidate %d: %v", core.ErrMalformedResponse, i, err)
		}
		for _, name := range requiredFields {
			if v, ok := fields[name]; !ok || string(v) == "null" {
				return nil, fmt.Errorf("%w: candidate %d: missing %q", core.ErrMalformedResponse, i, name)
			}
		}
		var cand core.AccountCandidate
		if err := json.Unmarshal(item, &cand); err != nil {
			return nil, fmt.Errorf("%w: candidate %d: %v", core.ErrMalformedResponse, i, err)
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// Ensure Client implements core.AccountLookup
var _ core.AccountLookup = (*Client)(nil)
