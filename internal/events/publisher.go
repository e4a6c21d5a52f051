package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

// RetryConfig bounds the publish retry loop.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher keeps one writer per topic and retries failed writes with
// exponential backoff.
type KafkaPublisher struct {
	writers map[string]messageWriter
	retry   RetryConfig
	logger  *slog.Logger
}

// NewKafkaPublisher creates writers for topics on the given brokers.
// Zero retry fields fall back to 5 attempts, 100ms base and 10s max delay.
func NewKafkaPublisher(brokers []string, topics []string, retry RetryConfig, logger *slog.Logger) *KafkaPublisher {
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 5
	}
	if retry.BaseDelay == 0 {
		retry.BaseDelay = 100 * time.Millisecond
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 10 * time.Second
	}

	writers := make(map[string]messageWriter, len(topics))
	for _, t := range topics {
		writers[t] = &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  t,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		}
	}
	return &KafkaPublisher{writers: writers, retry: retry, logger: logger}
}

// Publish marshals message to JSON and writes it to topic.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	writer, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("no writer configured for topic %s", topic)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.publishWithRetry(ctx, writer, kafka.Message{Value: data}, topic)
}

// Close flushes and closes every writer.
func (p *KafkaPublisher) Close() error {
	var errs []error
	for _, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *KafkaPublisher) publishWithRetry(ctx context.Context, writer messageWriter, msg kafka.Message, topic string) error {
	var lastErr error

	for attempt := 0; attempt < p.retry.MaxAttempts; attempt++ {
		err := writer.WriteMessages(ctx, msg)
		if err == nil {
			if attempt > 0 && p.logger != nil {
				p.logger.Info("event published after retry", slog.String("topic", topic), slog.Int("attempts", attempt+1))
			}
			return nil
		}
		lastErr = err

		if attempt == p.retry.MaxAttempts-1 {
			break
		}

		delay := p.backoff(attempt)
		if p.logger != nil {
			p.logger.Warn("event publish failed, retrying",
				slog.String("topic", topic), slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay), slog.Any("error", err))
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	return fmt.Errorf("publish to topic %s failed after %d attempts: %w", topic, p.retry.MaxAttempts, lastErr)
}

// backoff returns 2^attempt * BaseDelay capped at MaxDelay, with ±15% jitter when enabled.
func (p *KafkaPublisher) backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * p.retry.BaseDelay
	if delay > p.retry.MaxDelay {
		delay = p.retry.MaxDelay
	}
	if p.retry.Jitter {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
		delay = delay + jitter - time.Duration(float64(delay)*0.15)
	}
	return delay
}
