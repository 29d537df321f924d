package rabbitmq

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeBroker is an in-memory stand-in for a RabbitMQ node.
type fakeBroker struct {
	mu sync.Mutex

	queues map[string]amqp.Table

	dialErrs     []error // consumed one per dial; the last one sticks
	channelErr   error
	passiveErr   error
	declareErr   error
	publishErr   error
	dials        int
	channels     int
	passiveCalls int
	declares     []amqp.Table
	published    []amqp.Publishing
	routingKeys  []string
	conns        []*fakeConn
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{queues: make(map[string]amqp.Table)}
}

func (b *fakeBroker) dial(url string) (Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if len(b.dialErrs) > 0 {
		err := b.dialErrs[0]
		if len(b.dialErrs) > 1 {
			b.dialErrs = b.dialErrs[1:]
		}
		if err != nil {
			return nil, err
		}
	}
	conn := &fakeConn{b: b}
	b.conns = append(b.conns, conn)
	return conn, nil
}

func (b *fakeBroker) lastConn() *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conns[len(b.conns)-1]
}

type fakeConn struct {
	b      *fakeBroker
	closed bool
	chans  []*fakeChannel
}

func (c *fakeConn) Channel() (Channel, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	if c.b.channelErr != nil {
		return nil, c.b.channelErr
	}
	c.b.channels++
	ch := &fakeChannel{b: c.b, conn: c}
	c.chans = append(c.chans, ch)
	return ch, nil
}

func (c *fakeConn) IsClosed() bool {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.closed = true
	return nil
}

// drop simulates the broker going away.
func (c *fakeConn) drop() {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.closed = true
}

type fakeChannel struct {
	b      *fakeBroker
	conn   *fakeConn
	closed bool
}

func (ch *fakeChannel) QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	ch.b.passiveCalls++
	if ch.b.passiveErr != nil {
		ch.closed = true
		return amqp.Queue{}, ch.b.passiveErr
	}
	if _, ok := ch.b.queues[name]; !ok {
		ch.closed = true
		return amqp.Queue{}, &amqp.Error{Code: amqp.NotFound, Reason: "NOT_FOUND - no queue '" + name + "'"}
	}
	return amqp.Queue{Name: name}, nil
}

func (ch *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	ch.b.declares = append(ch.b.declares, args)
	if ch.b.declareErr != nil {
		ch.closed = true
		return amqp.Queue{}, ch.b.declareErr
	}
	ch.b.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (ch *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed || ch.conn.closed {
		return amqp.ErrClosed
	}
	if ch.b.publishErr != nil {
		return ch.b.publishErr
	}
	ch.b.published = append(ch.b.published, msg)
	ch.b.routingKeys = append(ch.b.routingKeys, key)
	return nil
}

func (ch *fakeChannel) IsClosed() bool {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	return ch.closed || ch.conn.closed
}

func (ch *fakeChannel) Close() error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	ch.closed = true
	return nil
}

// fakeClock only moves when a fakeTimer fires.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeTimer fires immediately after advancing the clock by the requested
// wait, and records every wait.
type fakeTimer struct {
	clock *fakeClock
	c     chan time.Time
	waits *[]time.Duration
}

func (t *fakeTimer) Start(d time.Duration) {
	t.clock.advance(d)
	*t.waits = append(*t.waits, d)
	t.c <- t.clock.Now()
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time {
	return t.c
}

// instantRetries wires a fake clock and timer into a manager.
func instantRetries(clock *fakeClock, waits *[]time.Duration) []Option {
	return []Option{
		WithClock(clock),
		WithTimer(func() backoff.Timer {
			return &fakeTimer{clock: clock, c: make(chan time.Time, 1), waits: waits}
		}),
	}
}
