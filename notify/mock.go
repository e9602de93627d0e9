package notify

import (
	"context"
	"sync"

	"craiseek/models"
)

// SentMessage records one successful mock delivery.
type SentMessage struct {
	Address string
	Message string
}

// MockSender records sends instead of delivering them. Used by tests and
// by deployments running with MOCK_SENDERS=true.
type MockSender struct {
	channel models.Channel

	mu   sync.Mutex
	sent []SentMessage

	// FailWith, when set, is consulted per send; a non-nil return is
	// surfaced as the send error without recording the message.
	FailWith func(address string) error
}

func NewMockSender(ch models.Channel) *MockSender {
	return &MockSender{channel: ch}
}

func (m *MockSender) Channel() models.Channel {
	return m.channel
}

func (m *MockSender) Send(ctx context.Context, address, message string) error {
	if address == "" {
		return &DeliveryError{Kind: KindInvalidAddress}
	}
	if m.FailWith != nil {
		if err := m.FailWith(address); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{Address: address, Message: message})
	return nil
}

// Sent returns a copy of everything delivered so far.
func (m *MockSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
