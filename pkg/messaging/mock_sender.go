package messaging

import (
	"context"
	"sync"

	"github.com/erain9/arbsignal/pkg/codec"
)

// SentEnvelope is one envelope recorded by MockEnvelopeSink.
type SentEnvelope struct {
	MessageID string
	Envelope  codec.Envelope
}

// MockEnvelopeSink records envelopes in memory for tests.
type MockEnvelopeSink struct {
	mu   sync.Mutex
	sent []SentEnvelope
	Err  error
}

// NewMockEnvelopeSink creates a new MockEnvelopeSink.
func NewMockEnvelopeSink() *MockEnvelopeSink {
	return &MockEnvelopeSink{}
}

// SendEnvelope records env, or returns Err when set.
func (m *MockEnvelopeSink) SendEnvelope(ctx context.Context, messageID string, env codec.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentEnvelope{MessageID: messageID, Envelope: env})
	return nil
}

// Sent returns a copy of the recorded envelopes.
func (m *MockEnvelopeSink) Sent() []SentEnvelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEnvelope(nil), m.sent...)
}

// Close does nothing.
func (m *MockEnvelopeSink) Close() error {
	return nil
}

// Ensure MockEnvelopeSink implements EnvelopeSink
var _ EnvelopeSink = (*MockEnvelopeSink)(nil)
