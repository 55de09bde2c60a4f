package queue

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaDispatcher publishes matching triggers to a Kafka topic. Keying by
// order id keeps redeliveries of the same order on one partition.
type KafkaDispatcher struct {
	writer *kafka.Writer
}

// NewKafkaDispatcher creates a producer with full acknowledgement, so a
// returned nil error means the trigger is durable.
func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Enqueue publishes one trigger for the order.
func (d *KafkaDispatcher) Enqueue(ctx context.Context, orderID int64) error {
	key := []byte(strconv.FormatInt(orderID, 10))
	return d.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: key,
	})
}

// Close flushes and closes the producer.
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

// KafkaConsumer drains matching triggers. Offsets are committed after an
// attempt completes, giving at-least-once delivery; an attempt that
// errors or times out is logged and committed anyway, since the order
// remains open and the next trigger on its symbol retries it.
type KafkaConsumer struct {
	reader  *kafka.Reader
	handler Handler
	timeout time.Duration
	log     *slog.Logger
}

// NewKafkaConsumer creates a consumer in the given group. timeout bounds
// each matching attempt.
func NewKafkaConsumer(brokers []string, topic, group string, handler Handler, timeout time.Duration, logger *slog.Logger) *KafkaConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: group,
		}),
		handler: handler,
		timeout: timeout,
		log:     logger,
	}
}

// Run consumes triggers until ctx is cancelled.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		orderID, err := strconv.ParseInt(string(msg.Value), 10, 64)
		if err != nil {
			c.log.Error("malformed match trigger", slog.String("value", string(msg.Value)))
		} else {
			attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
			if err := c.handler(attemptCtx, orderID); err != nil {
				c.log.Error("match attempt failed",
					slog.Int64("order_id", orderID), slog.String("error", err.Error()))
			}
			cancel()
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

// Close closes the underlying reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
