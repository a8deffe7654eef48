package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/logger"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/models"
)

type Consumer struct {
	reader        *kafka.Reader
	retryDelay    time.Duration
	maxRetryDelay time.Duration
}

type EventHandler func(ctx context.Context, event models.Event) error

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1e6, // 1MB, events carry no prescription text
	})

	return &Consumer{reader: reader, retryDelay: 200 * time.Millisecond, maxRetryDelay: 10 * time.Second}
}

// Consume blocks until ctx is cancelled. A message whose handler fails is
// retried in place until it succeeds, since committing any later offset on
// the partition would acknowledge it as well.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			logger.Log.WithError(err).Error("Failed to fetch message")
			continue
		}

		var event models.Event
		if err := json.Unmarshal(message.Value, &event); err != nil {
			logger.Log.WithError(err).Error("Failed to unmarshal event")
			_ = c.reader.CommitMessages(ctx, message)
			continue
		}

		if err := c.deliver(ctx, handler, event); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			logger.Log.WithError(err).Error("Failed to commit message")
		}
	}
}

// deliver runs handler until it succeeds, backing off between failures. It
// only gives up when ctx ends.
func (c *Consumer) deliver(ctx context.Context, handler EventHandler, event models.Event) error {
	delay := c.retryDelay
	for {
		err := handler(ctx, event)
		if err == nil {
			return nil
		}
		logger.Log.WithError(err).WithField("event_id", event.ID).Error("Failed to process event")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if delay > c.maxRetryDelay {
			delay = c.maxRetryDelay
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
