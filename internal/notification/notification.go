package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/veriflow/veriflow/internal/events"
)

const (
	// KindApprovalRequested asks the linked device to approve a purchase.
	KindApprovalRequested = "approval_requested"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Reference   string
	Body        string
	ExpiresAt   time.Time
}

// Notifier delivers notifications through the out-of-band channel.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination,
		"reference", message.Reference, "body", message.Body)
	return nil
}

// EventNotifier hands approval prompts to the push gateway over the event bus.
type EventNotifier struct {
	publisher events.Publisher
}

// NewEventNotifier constructs a notifier publishing to events.TopicApprovalPush.
func NewEventNotifier(publisher events.Publisher) *EventNotifier {
	return &EventNotifier{publisher: publisher}
}

// Send publishes a push event for the message.
func (n *EventNotifier) Send(ctx context.Context, message Message) error {
	return n.publisher.Publish(ctx, events.TopicApprovalPush, events.PushEvent{
		TransactionID: message.Reference,
		Recipient:     message.Destination,
		Body:          message.Body,
		ExpiresAt:     message.ExpiresAt,
	})
}
