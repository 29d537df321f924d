package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const (
	AttributeOutcome   = "arb.outcome"
	AttributeQueue     = "messaging.destination.name"
	AttributeBuyVenue  = "arb.buy_venue"
	AttributeSellVenue = "arb.sell_venue"
	AttributeUserID    = "arb.user_id"
	AttributeAccounts  = "arb.accounts"
)

var (
	publisherMetrics     *Metrics
	publisherMetricsOnce sync.Once
)

// Metrics holds the instruments recorded by the publishing pipeline. A nil
// *Metrics records nothing.
type Metrics struct {
	publishTotal      metric.Int64Counter
	publishDuration   metric.Float64Histogram
	connectionRetries metric.Int64Counter
	opportunityTotal  metric.Int64Counter
}

// NewMetrics creates the publisher instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	publishTotal, err := meter.Int64Counter(
		"arb.publish.total",
		metric.WithDescription("Order messages handed to the broker, by outcome"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	publishDuration, err := meter.Float64Histogram(
		"arb.publish.duration",
		metric.WithDescription("Time spent encrypting and publishing one order message"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	connectionRetries, err := meter.Int64Counter(
		"arb.connection.retries",
		metric.WithDescription("Broker reconnection attempts that failed and were retried"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	opportunityTotal, err := meter.Int64Counter(
		"arb.opportunity.total",
		metric.WithDescription("Opportunity signals processed, by outcome"),
		metric.WithUnit("{signal}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		publishTotal:      publishTotal,
		publishDuration:   publishDuration,
		connectionRetries: connectionRetries,
		opportunityTotal:  opportunityTotal,
	}, nil
}

// GetMetrics returns the process-wide instruments backed by the global
// meter provider.
func GetMetrics() *Metrics {
	publisherMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider().Meter(instrumentationName))
		if err != nil {
			return
		}
		publisherMetrics = m
	})
	return publisherMetrics
}

// RecordPublish counts one publish attempt and its latency.
func (m *Metrics) RecordPublish(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttributeOutcome, outcome))
	m.publishTotal.Add(ctx, 1, attrs)
	m.publishDuration.Record(ctx, d.Seconds(), attrs)
}

// IncConnectionRetries counts one failed connection attempt.
func (m *Metrics) IncConnectionRetries(ctx context.Context) {
	if m == nil {
		return
	}
	m.connectionRetries.Add(ctx, 1)
}

// RecordOpportunity counts one processed signal.
func (m *Metrics) RecordOpportunity(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.opportunityTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(AttributeOutcome, outcome)))
}
