package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-boxoffice/internal/changefeed"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader MessageReader
	topic  string
	log    *logger.Logger
}

// NewConsumer creates a Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, topic: topic, log: log}
}

// commitTimeout bounds the offset commit after a handled message, which
// runs even when shutdown has begun.
const commitTimeout = 5 * time.Second

// Start consumes order changes until ctx is cancelled. Each change is
// handled before its offset is committed, so a crash mid-handling means
// redelivery, never loss. The handler runs on a context that outlives
// cancellation: a change already fetched is finished and committed before
// Start returns. Undecodable messages are logged and skipped so they cannot
// wedge the partition.
func (c *Consumer) Start(ctx context.Context, handler changefeed.Handler) error {
	c.log.LogKafka("START", c.topic, "consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.log.LogKafka("STOP", c.topic, "consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch from %s: %w", c.topic, err)
		}

		var change models.OrderChange
		if err := json.Unmarshal(msg.Value, &change); err != nil || change.After == nil {
			c.log.Warn("KAFKA", fmt.Sprintf("Skipping malformed message at %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err))
		} else {
			c.log.LogKafka("RECEIVE", c.topic, fmt.Sprintf("%s %s v%d", change.Type, change.OrderID, change.Version))
			handler(context.WithoutCancel(ctx), change)
		}

		if err := c.commit(ctx, msg); err != nil {
			return err
		}
		if ctx.Err() != nil {
			c.log.LogKafka("STOP", c.topic, "consumer stopped")
			return nil
		}
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) error {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
		return fmt.Errorf("commit offset %d on %s: %w", msg.Offset, c.topic, err)
	}
	return nil
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
