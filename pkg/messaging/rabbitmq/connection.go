package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Retry schedule for reconnecting to the broker.
const (
	InitialRetryInterval = time.Second
	MaxRetryInterval     = 5 * time.Second
	RetryMultiplier      = 2
)

// Config describes the broker endpoint and the report queue.
type Config struct {
	URL              string
	Queue            string
	QueueArgs        amqp.Table
	Durable          bool
	MarketExpiration time.Duration
}

// MessageTTL is the per-message expiration, in milliseconds, as AMQP
// expects it.
func (c Config) MessageTTL() string {
	return strconv.FormatInt(c.MarketExpiration.Milliseconds(), 10)
}

// Connection is the part of *amqp.Connection the manager uses.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Channel is the part of *amqp.Channel the manager and publisher use.
type Channel interface {
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(url string) (Connection, error)

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// DialAMQP is the Dialer backed by amqp091-go.
func DialAMQP(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// ConnectionManager owns at most one broker connection and one channel,
// reopens them when they die, and makes sure the report queue exists.
type ConnectionManager struct {
	cfg      Config
	dial     Dialer
	clock    backoff.Clock
	newTimer func() backoff.Timer
	onRetry  func(err error, next time.Duration)
	logger   zerolog.Logger

	mu   sync.Mutex
	conn Connection
	ch   Channel

	// up is the last link Connect completed, readable without mu.
	up atomic.Pointer[link]
}

type link struct {
	conn Connection
	ch   Channel
}

// Option configures a ConnectionManager.
type Option func(*ConnectionManager)

// WithDialer replaces the broker dialer.
func WithDialer(d Dialer) Option {
	return func(m *ConnectionManager) {
		m.dial = d
	}
}

// WithClock sets the clock used to measure the retry deadline.
func WithClock(c backoff.Clock) Option {
	return func(m *ConnectionManager) {
		m.clock = c
	}
}

// WithTimer sets the timer factory used to wait between retries.
func WithTimer(f func() backoff.Timer) Option {
	return func(m *ConnectionManager) {
		m.newTimer = f
	}
}

// WithRetryNotify registers a callback run before every retry wait.
func WithRetryNotify(f func(err error, next time.Duration)) Option {
	return func(m *ConnectionManager) {
		m.onRetry = f
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *ConnectionManager) {
		m.logger = l
	}
}

// NewConnectionManager creates a manager. Nothing is dialed until Connect
// or Channel is called.
func NewConnectionManager(cfg Config, opts ...Option) *ConnectionManager {
	m := &ConnectionManager{
		cfg:    cfg,
		dial:   DialAMQP,
		clock:  backoff.SystemClock,
		logger: log.With().Str("component", "rabbitmq").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect makes sure a connection and a channel are open and that the
// report queue exists. The queue is checked passively first and declared
// with the configured arguments only when the broker reports it missing.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx)
}

func (m *ConnectionManager) connectLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if m.conn == nil || m.conn.IsClosed() {
		conn, err := m.dial(m.cfg.URL)
		if err != nil {
			m.logger.Error().Err(err).Msg("Failed to establish connection")
			return &ConnectionError{Op: "dial", Err: err}
		}
		m.conn = conn
		m.ch = nil
	}

	if m.ch == nil || m.ch.IsClosed() {
		ch, err := m.conn.Channel()
		if err != nil {
			return &ConnectionError{Op: "open channel", Err: err}
		}
		m.ch = ch

		exists, err := m.queueExists()
		if err != nil {
			return err
		}
		if !exists {
			if err := m.declareQueue(); err != nil {
				return err
			}
		}
	}

	m.up.Store(&link{conn: m.conn, ch: m.ch})
	m.logger.Debug().Str("queue", m.cfg.Queue).Msg("AMQP connection established")
	return nil
}

func (m *ConnectionManager) queueExists() (bool, error) {
	_, err := m.ch.QueueDeclarePassive(m.cfg.Queue, m.cfg.Durable, false, false, false, nil)
	if err == nil {
		return true, nil
	}

	// A failed passive declare closes the channel on the broker side.
	m.dropChannel()

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && amqpErr.Code == amqp.NotFound {
		ch, err := m.conn.Channel()
		if err != nil {
			return false, &ConnectionError{Op: "reopen channel", Err: err}
		}
		m.ch = ch
		return false, nil
	}
	if errors.Is(err, amqp.ErrClosed) {
		return false, &ConnectionError{Op: "check queue", Err: err}
	}
	return false, &QueueError{Queue: m.cfg.Queue, Err: err}
}

func (m *ConnectionManager) declareQueue() error {
	_, err := m.ch.QueueDeclare(m.cfg.Queue, m.cfg.Durable, false, false, false, m.cfg.QueueArgs)
	if err == nil {
		m.logger.Info().Str("queue", m.cfg.Queue).Msg("Declared report queue")
		return nil
	}
	m.dropChannel()
	if errors.Is(err, amqp.ErrClosed) {
		return &ConnectionError{Op: "declare queue", Err: err}
	}
	return &QueueError{Queue: m.cfg.Queue, Err: err}
}

func (m *ConnectionManager) dropChannel() {
	if m.ch != nil && !m.ch.IsClosed() {
		_ = m.ch.Close()
	}
	m.ch = nil
}

func (m *ConnectionManager) live() bool {
	return m.conn != nil && !m.conn.IsClosed() && m.ch != nil && !m.ch.IsClosed()
}

func (m *ConnectionManager) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     InitialRetryInterval,
		RandomizationFactor: 0,
		Multiplier:          RetryMultiplier,
		MaxInterval:         MaxRetryInterval,
		MaxElapsedTime:      m.cfg.MarketExpiration,
		Stop:                backoff.Stop,
		Clock:               m.clock,
	}
	b.Reset()
	return b
}

// Channel returns a live channel. When the connection or channel is gone it
// reconnects with exponential backoff until the market expiration deadline,
// then fails with ErrDeadlineExceeded. Queue errors other than "not found"
// are returned immediately without retrying.
func (m *ConnectionManager) Channel(ctx context.Context) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live() {
		return m.ch, nil
	}

	attempts := 0
	operation := func() error {
		attempts++
		err := m.connectLocked(ctx)
		var queueErr *QueueError
		if errors.As(err, &queueErr) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		m.logger.Warn().Err(err).
			Int("attempt", attempts).
			Dur("retry_in", next).
			Msg("Failed to establish connection, retrying")
		if m.onRetry != nil {
			m.onRetry(err, next)
		}
	}

	var timer backoff.Timer
	if m.newTimer != nil {
		timer = m.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, backoff.WithContext(m.newBackOff(), ctx), notify, timer)
	if err != nil {
		var queueErr *QueueError
		switch {
		case errors.As(err, &queueErr):
			return nil, err
		case ctx.Err() != nil:
			return nil, fmt.Errorf("broker connection aborted: %w", ctx.Err())
		default:
			m.logger.Error().Err(err).Int("attempts", attempts).Msg("Giving up on broker connection")
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrDeadlineExceeded, attempts, err)
		}
	}
	return m.ch, nil
}

// Close closes the channel and the connection. The manager can be reused;
// the next Channel call reconnects.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.ch != nil && !m.ch.IsClosed() {
		if err := m.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if m.conn != nil && !m.conn.IsClosed() {
		if err := m.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	m.ch = nil
	m.conn = nil
	m.up.Store(nil)
	return errors.Join(errs...)
}

// Healthy reports whether the last established connection and channel are
// still open. It never dials and does not wait for a reconnect in progress.
func (m *ConnectionManager) Healthy() error {
	l := m.up.Load()
	if l == nil || l.conn.IsClosed() || l.ch.IsClosed() {
		return ErrNotConnected
	}
	return nil
}
