package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/veriflow/veriflow/internal/events"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	args := m.Called(ctx, topic, message)
	return args.Error(0)
}

func TestEventNotifierPublishesPush(t *testing.T) {
	pub := &mockPublisher{}
	expires := time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)
	pub.On("Publish", mock.Anything, events.TopicApprovalPush, mock.MatchedBy(func(evt events.PushEvent) bool {
		return evt.TransactionID == "tx-1" && evt.Recipient == "sub-1" && evt.ExpiresAt.Equal(expires)
	})).Return(nil).Once()

	n := NewEventNotifier(pub)
	err := n.Send(context.Background(), Message{
		Kind:        KindApprovalRequested,
		Destination: "sub-1",
		Reference:   "tx-1",
		Body:        "Approve 750 at VeriFlow?",
		ExpiresAt:   expires,
	})

	require.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestLoggerNotifierNilSafe(t *testing.T) {
	var n *LoggerNotifier
	assert.NoError(t, n.Send(context.Background(), Message{}))
}
