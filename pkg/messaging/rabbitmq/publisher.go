package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/erain9/arbsignal/pkg/codec"
	"github.com/erain9/arbsignal/pkg/core"
	"github.com/erain9/arbsignal/pkg/messaging"
	"github.com/erain9/arbsignal/pkg/otel"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// ContentTypeJSON is the content type of every published envelope.
const ContentTypeJSON = "application/json"

// ChannelProvider hands out a live channel. *ConnectionManager implements it.
type ChannelProvider interface {
	Channel(ctx context.Context) (Channel, error)
}

// Publisher encrypts order messages and publishes them to the report
// queue through the default exchange. Publishing is fire-and-forget: there
// is no confirm wait, and a failed message is logged and dropped.
type Publisher struct {
	conns   ChannelProvider
	codec   *codec.Codec
	queue   string
	ttl     string
	now     func() time.Time
	newID   func() string
	mirrors []messaging.EnvelopeSink
	metrics *otel.Metrics
	logger  zerolog.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithNow sets the clock used for the message timestamp.
func WithNow(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		p.now = now
	}
}

// WithMessageID sets the message id generator.
func WithMessageID(newID func() string) PublisherOption {
	return func(p *Publisher) {
		p.newID = newID
	}
}

// WithMirrors adds sinks that receive every published envelope.
func WithMirrors(sinks ...messaging.EnvelopeSink) PublisherOption {
	return func(p *Publisher) {
		p.mirrors = append(p.mirrors, sinks...)
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *otel.Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger(l zerolog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = l
	}
}

// NewPublisher creates a Publisher for the queue and TTL in cfg.
func NewPublisher(conns ChannelProvider, c *codec.Codec, cfg Config, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		conns:  conns,
		codec:  c,
		queue:  cfg.Queue,
		ttl:    cfg.MessageTTL(),
		now:    time.Now,
		newID:  uuid.NewString,
		logger: log.With().Str("component", "publisher").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Push encrypts msg and publishes it. It never fails the caller: any error
// is logged and reported as a Failed outcome, and the message is dropped.
func (p *Publisher) Push(ctx context.Context, msg core.OrderMessage) core.Outcome {
	start := time.Now()
	ctx, span := otel.StartSpan(ctx, otel.SpanPublish,
		attribute.String(otel.AttributeQueue, p.queue),
		attribute.Int64(otel.AttributeUserID, msg.UserSpecs.UserID),
	)

	outcome := p.push(ctx, msg)

	otel.EndSpan(span, outcome.Reason)
	p.metrics.RecordPublish(ctx, string(outcome.Status), time.Since(start))

	if !outcome.OK() {
		p.logger.Error().
			Err(outcome.Reason).
			Str("order_type", msg.OrderType).
			Interface("order_specs", msg.OrderSpecs).
			Int64("user_id", msg.UserSpecs.UserID).
			Int64("investment_strategy_id", msg.UserSpecs.InvestmentStrategyID).
			Msg("Failed to push a message. Skipped.")
	}
	return outcome
}

func (p *Publisher) push(ctx context.Context, msg core.OrderMessage) core.Outcome {
	env, err := p.codec.Encrypt(msg)
	if err != nil {
		return core.Failed(fmt.Errorf("encrypt order: %w", err))
	}
	body, err := env.Marshal()
	if err != nil {
		return core.Failed(fmt.Errorf("marshal envelope: %w", err))
	}

	ch, err := p.conns.Channel(ctx)
	if err != nil {
		return core.Failed(fmt.Errorf("get channel: %w", err))
	}

	id := p.newID()
	err = ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType: ContentTypeJSON,
			Expiration:  p.ttl,
			Timestamp:   p.now(),
			MessageId:   id,
			Body:        body,
		},
	)
	if err != nil {
		return core.Failed(fmt.Errorf("publish to %q: %w", p.queue, err))
	}

	for _, sink := range p.mirrors {
		if err := sink.SendEnvelope(ctx, id, env); err != nil {
			p.logger.Warn().Err(err).Str("message_id", id).Msg("Failed to mirror envelope")
		}
	}

	p.logger.Debug().Str("message_id", id).Int64("user_id", msg.UserSpecs.UserID).Msg("Published order")
	return core.Sent()
}

// Ensure Publisher implements core.OrderPublisher
var _ core.OrderPublisher = (*Publisher)(nil)
