package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes order changes keyed by order id, so every change of one
// order lands on the same partition in commit order.
type Producer struct {
	Writer MessageWriter
	topic  string
	log    *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.Hash{},
	})
	return &Producer{Writer: writer, topic: topic, log: log}
}

// Notify streams one committed order write to Kafka.
func (p *Producer) Notify(ctx context.Context, change models.OrderChange) error {
	msgBytes, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change for order %s: %w", change.OrderID, err)
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(change.OrderID),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(change.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish change for order %s: %w", change.OrderID, err)
	}
	p.log.LogKafka("PUBLISH", p.topic, fmt.Sprintf("%s %s v%d", change.Type, change.OrderID, change.Version))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
