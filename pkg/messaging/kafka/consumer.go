package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erain9/arbsignal/pkg/codec"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// EnvelopeHandler processes one envelope read back from the audit topic.
type EnvelopeHandler func(messageID string, env codec.Envelope) error

// messageReader is the part of *kafka.Reader the audit reader uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// AuditReader replays envelopes from the audit topic.
type AuditReader struct {
	reader messageReader
	logger zerolog.Logger
}

// NewAuditReader creates a reader for topic starting at the oldest offset.
func NewAuditReader(brokerAddr, topic, groupID string, logger zerolog.Logger) *AuditReader {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{brokerAddr},
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})
	return &AuditReader{reader: reader, logger: logger}
}

// Consume reads envelopes until ctx is done. Undecodable records are logged
// and skipped; a handler error stops consumption.
func (a *AuditReader) Consume(ctx context.Context, handle EnvelopeHandler) error {
	for {
		msg, err := a.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to read audit record: %w", err)
		}

		env, err := codec.ParseEnvelope(msg.Value)
		if err != nil {
			a.logger.Warn().
				Err(err).
				Int64("offset", msg.Offset).
				Msg("Skipping undecodable audit record")
			continue
		}
		if err := handle(string(msg.Key), env); err != nil {
			return err
		}
	}
}

// Close closes the underlying reader.
func (a *AuditReader) Close() error {
	return a.reader.Close()
}
