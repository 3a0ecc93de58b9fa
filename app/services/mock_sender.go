package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"github.com/google/uuid"
)

// MockSentMessage is a message captured by MockChannelSender
type MockSentMessage struct {
	Message    OutboundMessage
	ExternalID string
	SentAt     time.Time
}

// MockChannelSender accepts every message without calling a provider. It is used
// for local development and as the sender in tests.
type MockChannelSender struct {
	channel models.MessageChannel
	logger  *slog.Logger

	mu       sync.Mutex
	sent     []MockSentMessage
	failures []error
}

// NewMockChannelSender creates a mock sender for one channel
func NewMockChannelSender(channel models.MessageChannel, logger *slog.Logger) *MockChannelSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockChannelSender{channel: channel, logger: logger}
}

func (m *MockChannelSender) Channel() models.MessageChannel { return m.channel }

func (m *MockChannelSender) Provider() string { return "mock" }

// FailNext queues errors returned by the next Send calls, in order
func (m *MockChannelSender) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Send records the message and returns a synthetic external id
func (m *MockChannelSender) Send(ctx context.Context, msg OutboundMessage) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == "" {
		return nil, Permanent(ErrMissingAddress)
	}

	m.mu.Lock()
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		m.mu.Unlock()
		return nil, err
	}
	externalID := fmt.Sprintf("mock-%s", uuid.NewString())
	m.sent = append(m.sent, MockSentMessage{Message: msg, ExternalID: externalID, SentAt: utils.UTCNow()})
	m.mu.Unlock()

	m.logger.Info("Mock message sent", "channel", m.channel, "to", msg.To, "external_id", externalID)
	return &SendResult{ExternalID: externalID, Provider: m.Provider()}, nil
}

// GetSentMessages returns a copy of the captured messages
func (m *MockChannelSender) GetSentMessages() []MockSentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// ClearSentMessages clears the captured messages
func (m *MockChannelSender) ClearSentMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
