// Package events publishes verification events to downstream consumers.
package events

import (
	"context"
	"log/slog"
	"time"
)

const (
	// TopicPurchaseDecided carries one DecisionEvent per purchase attempt.
	TopicPurchaseDecided = "purchase.decided"
	// TopicApprovalPush carries push requests for the out-of-band approval channel.
	TopicApprovalPush = "approvals.push"
)

// Publisher defines the interface for publishing events to topics.
type Publisher interface {
	Publish(ctx context.Context, topic string, message interface{}) error
}

// DecisionEvent records the directive issued for a purchase attempt.
type DecisionEvent struct {
	DeviceID      string    `json:"device_id"`
	InstrumentKey string    `json:"instrument_key"`
	Amount        string    `json:"amount"`
	Tier          string    `json:"tier"`
	Directive     string    `json:"directive"`
	TransactionID string    `json:"transaction_id,omitempty"`
	DecidedAt     time.Time `json:"decided_at"`
}

// PushEvent asks the push gateway to deliver an approval prompt.
type PushEvent struct {
	TransactionID string    `json:"transaction_id"`
	Recipient     string    `json:"recipient"`
	Body          string    `json:"body"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
}

// LogPublisher writes events to the structured logger. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a logging publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(_ context.Context, topic string, message interface{}) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("event", slog.String("topic", topic), slog.Any("message", message))
	return nil
}
