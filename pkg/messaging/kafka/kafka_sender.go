package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/erain9/arbsignal/pkg/codec"
	"github.com/erain9/arbsignal/pkg/messaging"
	"github.com/segmentio/kafka-go"
)

// writeTimeout bounds one mirror write.
const writeTimeout = 5 * time.Second

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEnvelopeSink appends published envelopes to an audit topic, keyed
// by message id. Only cipher text ever reaches the topic.
type KafkaEnvelopeSink struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewKafkaEnvelopeSink creates a sink writing to topic on brokerAddr.
func NewKafkaEnvelopeSink(brokerAddr, topic string) *KafkaEnvelopeSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerAddr),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return newSink(writer, topic)
}

func newSink(w messageWriter, topic string) *KafkaEnvelopeSink {
	return &KafkaEnvelopeSink{writer: w, topic: topic, now: time.Now}
}

// SendEnvelope writes env to the audit topic.
func (k *KafkaEnvelopeSink) SendEnvelope(ctx context.Context, messageID string, env codec.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(messageID),
		Value: data,
		Time:  k.now(),
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to send envelope to Kafka topic %s: %w", k.topic, err)
	}
	return nil
}

// Close closes the Kafka writer
func (k *KafkaEnvelopeSink) Close() error {
	return k.writer.Close()
}

// Ensure KafkaEnvelopeSink implements messaging.EnvelopeSink
var _ messaging.EnvelopeSink = (*KafkaEnvelopeSink)(nil)
