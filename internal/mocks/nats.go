package mocks

import (
	"github.com/Billy-Davies-2/draftkit/internal/logger"
	"github.com/Billy-Davies-2/draftkit/internal/pubsub"
)

// MockNATSPubSub stands in for NATS/JetStream with the in-memory bus.
type MockNATSPubSub struct {
	*pubsub.PubSub
}

// NewMockNATSPubSub creates a mock NATS pub/sub using the in-memory implementation
func NewMockNATSPubSub() *MockNATSPubSub {
	logger.Info("Using MOCK NATS/JetStream (in-memory pub/sub)")

	return &MockNATSPubSub{
		PubSub: pubsub.New(),
	}
}
