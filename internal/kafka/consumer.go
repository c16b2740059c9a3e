package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	apperrors "github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

// MessageHandler is a function that processes Kafka messages
type MessageHandler func(ctx context.Context, msg *Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer wraps a group reader. Every fetched message is committed exactly
// once, after the handler succeeds or after it is dropped.
type Consumer struct {
	reader       messageReader
	topic        string
	metrics      MessageRecorder
	log          *logger.Logger
	maxAttempts  int
	retryBackoff time.Duration
	wg           sync.WaitGroup
	cancel       context.CancelFunc
	mu           sync.Mutex
}

func newConsumer(reader messageReader, topic string, metrics MessageRecorder, log *logger.Logger) *Consumer {
	return &Consumer{
		reader:       reader,
		topic:        topic,
		metrics:      metrics,
		log:          log.WithField("topic", topic),
		maxAttempts:  1,
	}
}

// SetRetry makes the consumer call a failing handler up to attempts times,
// sleeping backoff times the attempt number in between
func (c *Consumer) SetRetry(attempts int, backoff time.Duration) {
	c.maxAttempts = max(attempts, 1)
	c.retryBackoff = max(backoff, 0)
}

// ConsumeMessage fetches a single message without committing it
func (c *Consumer) ConsumeMessage(ctx context.Context) (*Message, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	return fromKafkaMessage(m), nil
}

// Run consumes messages until ctx is cancelled or the reader fails. A message
// whose handler still fails after the retry budget is logged as dropped and
// its offset committed, so it is not redelivered. Malformed input is dropped
// without retrying.
func (c *Consumer) Run(ctx context.Context, handler MessageHandler) error {
	c.log.Infof("Starting consumer for topic: %s", c.topic)
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.log.Infof("Context cancelled, stopping consumer for topic: %s", c.topic)
				return nil
			}
			c.log.Errorf("Kafka error: %v", err)
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		err = c.handle(ctx, handler, m)
		if ctx.Err() != nil && err != nil {
			// Left uncommitted for the next group member
			continue
		}
		if c.metrics != nil {
			c.metrics.RecordKafkaMessage(c.topic, "in", err)
		}
		if err != nil {
			c.log.Errorf("Dropping message at offset %d: %v", m.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.log.Errorf("Error committing offset %d: %v", m.Offset, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler MessageHandler, m kafka.Message) error {
	msg := fromKafkaMessage(m)
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = handler(ctx, msg); err == nil || !retryable(err) || attempt == c.maxAttempts {
			return err
		}
		c.log.Warnf("Attempt %d for offset %d failed: %v", attempt, m.Offset, err)

		timer := time.NewTimer(c.retryBackoff * time.Duration(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return err
		}
	}
	return err
}

func retryable(err error) bool {
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeInvalidParameter, apperrors.ErrorTypeDimensionMismatch,
		apperrors.ErrorTypeEmptyInput, apperrors.ErrorTypeNotFound:
		return false
	}
	return true
}

// Start runs the consumer in the background until Stop is called
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Run(ctx, handler); err != nil {
			c.log.Errorf("Consumer stopped: %v", err)
		}
	}()
}

// Stop stops a started consumer and waits for it to finish
func (c *Consumer) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// Close stops the consumer and closes the reader
func (c *Consumer) Close() error {
	c.Stop()
	c.log.Info("Closing Kafka consumer")
	return c.reader.Close()
}
