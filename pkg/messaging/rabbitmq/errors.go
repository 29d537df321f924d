package rabbitmq

import (
	"errors"
	"fmt"
)

// ErrDeadlineExceeded is returned when the broker stays unreachable for the
// whole market expiration window.
var ErrDeadlineExceeded = errors.New("broker connection deadline exceeded")

// ErrNotConnected is reported by Healthy when no live channel is open.
var ErrNotConnected = errors.New("broker not connected")

// ConnectionError is a failure to reach the broker or open a channel. It is
// retried.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("amqp %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// QueueError is a broker refusal concerning the report queue itself, other
// than the queue not existing yet. It is not retried.
type QueueError struct {
	Queue string
	Err   error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue %q: %v", e.Queue, e.Err)
}

func (e *QueueError) Unwrap() error {
	return e.Err
}
