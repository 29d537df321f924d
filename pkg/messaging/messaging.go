package messaging

import (
	"context"

	"github.com/erain9/arbsignal/pkg/codec"
)

// EnvelopeSink receives every envelope the publisher delivers to the
// broker. It decouples the publisher from secondary transports such as the
// Kafka audit mirror.
type EnvelopeSink interface {
	SendEnvelope(ctx context.Context, messageID string, env codec.Envelope) error
	Close() error
}
