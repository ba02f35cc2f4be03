package messaging

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var consumerTracer = otel.Tracer("messaging/consumer")

type HandlerFunc func(ctx context.Context, payload []byte) error

// Consumer reads a topic as part of a consumer group. A message whose
// handler keeps failing is retried a bounded number of times and then
// committed, so one bad event cannot stall the partition.
type Consumer struct {
	reader      *kafka.Reader
	topic       string
	groupID     string
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

type ConsumerOption func(*Consumer, *kafka.ReaderConfig)

func WithStartOffset(offset int64) ConsumerOption {
	return func(_ *Consumer, cfg *kafka.ReaderConfig) {
		cfg.StartOffset = offset
	}
}

func WithRetry(maxAttempts int, backoff time.Duration) ConsumerOption {
	return func(c *Consumer, _ *kafka.ReaderConfig) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		c.backoff = backoff
	}
}

func WithLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer, _ *kafka.ReaderConfig) {
		c.logger = logger
	}
}

func NewConsumer(brokers []string, topic, groupID string, opts ...ConsumerOption) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	}
	c := &Consumer{
		topic:       topic,
		groupID:     groupID,
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(c, &cfg)
	}

	c.reader = kafka.NewReader(cfg)
	return c
}

// Consume blocks until ctx is done or the reader fails.
func (c *Consumer) Consume(ctx context.Context, handler HandlerFunc) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		if err := c.deliver(ctx, msg, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("dropping message after retries",
				"error", err, "topic", c.topic, "partition", msg.Partition, "offset", msg.Offset)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, msg kafka.Message, handler HandlerFunc) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = c.processMessage(ctx, msg, attempt, handler); err == nil {
			return nil
		}
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return err
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message, attempt int, handler HandlerFunc) error {
	parentCtx := otel.GetTextMapPropagator().Extract(ctx, NewHeaderCarrier(&msg))

	spanCtx, span := consumerTracer.Start(parentCtx, "process "+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("process"),
			semconv.MessagingOperationTypeDeliver,
			semconv.MessagingDestinationName(c.topic),
			semconv.MessagingKafkaConsumerGroup(c.groupID),
			semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
			semconv.MessagingDestinationPartitionID(strconv.Itoa(msg.Partition)),
			semconv.MessagingKafkaMessageKey(string(msg.Key)),
			attribute.Int("messaging.delivery.attempt", attempt),
		),
	)
	defer span.End()

	if err := handler(spanCtx, msg.Value); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
