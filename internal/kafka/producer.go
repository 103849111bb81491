package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nesavent/internal/logger"

	"github.com/segmentio/kafka-go"
)

// Publisher is what services depend on; Producer is the Kafka-backed one.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

type Producer struct {
	Writer *kafka.Writer
	Logger *logger.Logger
}

// NewProducer returns a writer that is not bound to a topic; every message
// names its own.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Logger: log}
}

func newMessage(topic, key string, payload interface{}) (kafka.Message, error) {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	}, nil
}

// Publish writes payload as JSON keyed by key, so all messages of one order
// land on the same partition.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	msg, err := newMessage(topic, key, payload)
	if err != nil {
		return err
	}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		p.Logger.LogKafka("PUBLISH_FAILED", topic, fmt.Sprintf("key=%s: %v", key, err))
		return err
	}
	p.Logger.LogKafka("PUBLISHED", topic, fmt.Sprintf("key=%s", key))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
