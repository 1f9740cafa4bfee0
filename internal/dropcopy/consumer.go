package dropcopy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Consumer reads drop-copy events off Kafka and hands them to a
// handler, committing offsets only after the handler succeeds.
type Consumer struct {
	client *kgo.Client
	logger *zap.Logger
	topic  string
	group  string

	consumeCount atomic.Int64
	errorCount   atomic.Int64
}

// NewConsumer creates a consumer-group member for the drop-copy
// topic.
func NewConsumer(brokers []string, group, topic string, logger *zap.Logger) (*Consumer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}

	c := &Consumer{
		client: client,
		logger: logger,
		topic:  topic,
		group:  group,
	}
	logger.Info("drop-copy consumer initialized",
		zap.Strings("brokers", brokers),
		zap.String("group", group),
		zap.String("topic", topic),
	)
	return c, nil
}

// Run polls until the context is canceled, decoding each record and
// calling handler.
func (c *Consumer) Run(ctx context.Context, handler func(context.Context, Event) error) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("drop-copy consumer stopping",
				zap.Int64("consumed", c.consumeCount.Load()),
				zap.Int64("errors", c.errorCount.Load()),
			)
			return ctx.Err()
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return fmt.Errorf("kafka client closed")
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()

			var event Event
			if err := json.Unmarshal(record.Value, &event); err != nil {
				c.errorCount.Add(1)
				c.logger.Error("undecodable drop-copy record, skipping",
					zap.Int64("offset", record.Offset),
					zap.Error(err),
				)
				c.client.CommitRecords(ctx, record)
				continue
			}

			if err := c.handleWithRetry(ctx, event, handler); err != nil {
				c.errorCount.Add(1)
				c.logger.Error("handler failed after retries",
					zap.String("event_id", event.EventID),
					zap.Error(err),
				)
				continue
			}

			c.client.CommitRecords(ctx, record)
			c.consumeCount.Add(1)
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, event Event, handler func(context.Context, Event) error) error {
	maxRetries := 3
	backoff := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := handler(ctx, event)
		if err == nil {
			return nil
		}

		if attempt < maxRetries-1 {
			c.logger.Warn("handler failed, retrying",
				zap.String("event_id", event.EventID),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return fmt.Errorf("handler failed after %d attempts", maxRetries)
}

// Close closes the Kafka client.
func (c *Consumer) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
