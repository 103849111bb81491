package kafka

import (
	"context"
	"errors"
	"fmt"

	"nesavent/internal/logger"

	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
	topic  string
}

// NewConsumer creates a consumer-group reader for one topic.
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log, topic: topic}
}

// Start consumes until ctx is done. A message is committed after handler
// returns, including when it fails, so a poison message cannot stall the
// group; failures are logged.
func (c *Consumer) Start(ctx context.Context, handler func(ctx context.Context, msg kafka.Message) error) {
	c.logger.LogKafka("CONSUMER_STARTED", c.topic, "")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				c.logger.LogKafka("CONSUMER_STOPPED", c.topic, "")
				return
			}
			c.logger.LogKafka("READ_FAILED", c.topic, err.Error())
			continue
		}

		if err := handler(ctx, msg); err != nil {
			c.logger.LogKafka("HANDLE_FAILED", c.topic, fmt.Sprintf("offset=%d: %v", msg.Offset, err))
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.LogKafka("COMMIT_FAILED", c.topic, err.Error())
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
