package sizing

import (
	"context"
	"fmt"
	"time"

	"github.com/erain9/arbsignal/pkg/core"
	"github.com/erain9/arbsignal/pkg/logging"
	"github.com/erain9/arbsignal/pkg/otel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Report summarises one Opportunity call.
type Report struct {
	Sizing   core.SizingResult
	Outcome  core.Outcome
	Accounts int
	Sent     int
	Failed   int
}

// Engine sizes opportunities and publishes one order per eligible account.
// Calls are synchronous; callers that process signals concurrently must
// serialise them or use one Engine each.
type Engine struct {
	params    Params
	lookup    core.AccountLookup
	publisher core.OrderPublisher
	deduper   core.Deduper
	dedupeTTL time.Duration
	metrics   *otel.Metrics
	logger    zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithDeduper suppresses signals already seen within ttl.
func WithDeduper(d core.Deduper, ttl time.Duration) Option {
	return func(e *Engine) {
		e.deduper = d
		e.dedupeTTL = ttl
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *otel.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an Engine.
func NewEngine(p Params, lookup core.AccountLookup, publisher core.OrderPublisher, opts ...Option) *Engine {
	e := &Engine{
		params:    p.withDefaults(),
		lookup:    lookup,
		publisher: publisher,
		logger:    log.With().Str("component", "sizing").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Params returns the effective sizing parameters.
func (e *Engine) Params() Params {
	return e.params
}

// Opportunity sizes sig, looks up the eligible accounts and pushes one
// order per account. Signals the engine cannot trade are reported as a
// Skipped outcome with a nil error. Lookup failures are returned. Publish
// failures are counted in the report and never returned.
func (e *Engine) Opportunity(ctx context.Context, sig core.OpportunitySignal) (report Report, err error) {
	ctx, span := otel.StartSpan(ctx, otel.SpanOpportunity,
		attribute.String(otel.AttributeBuyVenue, sig.Kask),
		attribute.String(otel.AttributeSellVenue, sig.Kbid),
	)
	defer func() {
		otel.EndSpan(span, err)
		e.metrics.RecordOpportunity(ctx, string(report.Outcome.Status))
	}()

	logger := logging.FromContext(ctx, e.logger).With().
		Str("kask", sig.Kask).
		Str("kbid", sig.Kbid).
		Logger()

	res, outcome := Size(sig, e.params)
	report.Sizing = res
	if !outcome.OK() {
		logger.Info().Err(outcome.Reason).Msg("Opportunity skipped")
		report.Outcome = outcome
		return report, nil
	}
	logSizing(logger, res)

	recorded := false
	if e.deduper != nil {
		seen, err := e.deduper.Seen(ctx, core.DedupeKey(sig), e.dedupeTTL)
		switch {
		case err != nil:
			// Fail open.
			logger.Warn().Err(err).Msg("De-duplication unavailable, continuing")
		case seen:
			logger.Info().Msg("Opportunity already published, skipped")
			report.Outcome = core.Skipped(core.ErrDuplicateSignal)
			return report, nil
		default:
			recorded = true
		}
	}

	candidates, err := e.lookupAccounts(ctx, Query(res))
	if err != nil {
		if recorded {
			e.forget(ctx, logger, sig)
		}
		report.Outcome = core.Failed(err)
		logger.Error().Err(err).Msg("Account lookup failed")
		return report, fmt.Errorf("account lookup: %w", err)
	}
	report.Accounts = len(candidates)
	otel.AddAttributes(span, attribute.Int(otel.AttributeAccounts, len(candidates)))

	for _, acct := range candidates {
		logger.Info().
			Int64("user_id", acct.UserID).
			Int64("investment_strategy_id", acct.InvestmentStrategyID).
			Msg("Sending message")
		if e.publisher.Push(ctx, core.NewOrderMessage(res, acct)).OK() {
			report.Sent++
		} else {
			report.Failed++
		}
	}

	// Nothing reached the broker. Let a resend through.
	if recorded && report.Failed > 0 && report.Sent == 0 {
		e.forget(ctx, logger, sig)
	}

	report.Outcome = core.Sent()
	logger.Debug().
		Int("accounts", report.Accounts).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("Opportunity processed")
	return report, nil
}

func (e *Engine) forget(ctx context.Context, logger zerolog.Logger, sig core.OpportunitySignal) {
	if err := e.deduper.Forget(ctx, core.DedupeKey(sig)); err != nil {
		logger.Warn().Err(err).Msg("Failed to clear de-duplication record")
	}
}

func (e *Engine) lookupAccounts(ctx context.Context, q core.AccountQuery) ([]core.AccountCandidate, error) {
	ctx, span := otel.StartSpan(ctx, otel.SpanAccountLookup)
	candidates, err := e.lookup.LookupAccounts(ctx, q)
	otel.EndSpan(span, err)
	return candidates, err
}

func percent(ratio float64) string {
	return decimal.NewFromFloat(ratio).Shift(2).StringFixed(2)
}

func logSizing(logger zerolog.Logger, res core.SizingResult) {
	logger.Info().
		Float64("expected_profit", res.ExpectedProfit).
		Float64("limit_profit", res.LimitProfit).
		Str("currency", res.InvestorCurrency).
		Msgf("Expected Profit (Limit Profit): %g (%g) %s",
			res.ExpectedProfit, res.LimitProfit, res.InvestorCurrency)
	logger.Info().
		Str("expected_roi", percent(res.ExpectedROI)).
		Str("limit_roi", percent(res.LimitROI)).
		Msgf("Expected ROI (Limit ROI): %s (%s) %%", percent(res.ExpectedROI), percent(res.LimitROI))
	logger.Info().
		Float64("value_at_risk", res.ValueAtRisk).
		Msgf("Value at Risk: %g %s", res.ValueAtRisk, res.InvestorCurrency)
	logger.Info().Msgf("BUY (BID) %g %s @ %g %s/%s on %s",
		res.BuyVolume, res.BuyBaseCurrency, res.BuyPrice,
		res.BuyQuoteCurrency, res.BuyBaseCurrency, res.BuyVenue.UpperExchange())
	logger.Info().Msgf("SELL (ASK) %g %s @ %g %s/%s on %s",
		res.SellVolume, res.SellBaseCurrency, res.SellPrice,
		res.SellQuoteCurrency, res.SellBaseCurrency, res.SellVenue.UpperExchange())
}
