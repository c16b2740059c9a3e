package kafka

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

// Client configuration options
type Config struct {
	Brokers        []string
	ClientID       string
	GroupID        string
	StartOffset    string // "earliest" or "latest"
	SessionTimeout time.Duration
	BatchTimeout   time.Duration
	WriteTimeout   time.Duration
	RequiredAcks   int // -1 all, 0 none, 1 leader
	MaxAttempts    int // handler attempts per consumed message
	RetryBackoff   time.Duration
}

// Message represents a Kafka message
type Message struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Headers   []MessageHeader
}

// MessageHeader represents a Kafka message header
type MessageHeader struct {
	Key   string
	Value []byte
}

// Header returns the value of the first header called key
func (m *Message) Header(key string) (string, bool) {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}

// MessageRecorder counts produced and consumed messages
type MessageRecorder interface {
	RecordKafkaMessage(topic, direction string, err error)
}

// Client creates producers and consumers sharing one configuration
type Client struct {
	config  *Config
	metrics MessageRecorder
	log     *logger.Logger
}

// NewClient creates a new Kafka client
func NewClient(config *Config, metrics MessageRecorder) (*Client, error) {
	// Initialize default config if nil
	if config == nil {
		config = DefaultConfig()
	}
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}

	return &Client{
		config:  config,
		metrics: metrics,
		log:     logger.GetLogger("kafka.client"),
	}, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Brokers:        []string{"localhost:9092"},
		ClientID:       "portfolio-risk-sim",
		GroupID:        "portfolio-risk-sim",
		StartOffset:    "earliest",
		SessionTimeout: 30 * time.Second,
		BatchTimeout:   50 * time.Millisecond,
		WriteTimeout:   10 * time.Second,
		RequiredAcks:   -1,
		MaxAttempts:    3,
		RetryBackoff:   time.Second,
	}
}

// NewProducer creates a producer writing to topic
func (c *Client) NewProducer(topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(c.config.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           c.config.BatchTimeout,
		WriteTimeout:           c.config.WriteTimeout,
		RequiredAcks:           kafka.RequiredAcks(c.config.RequiredAcks),
		AllowAutoTopicCreation: true,
	}
	return newProducer(writer, topic, c.metrics, c.log)
}

// NewConsumer creates a group consumer reading from topic
func (c *Client) NewConsumer(topic string) *Consumer {
	startOffset := kafka.FirstOffset
	if c.config.StartOffset == "latest" {
		startOffset = kafka.LastOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.config.Brokers,
		GroupID:        c.config.GroupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		StartOffset:    startOffset,
		SessionTimeout: c.config.SessionTimeout,
	})
	consumer := newConsumer(reader, topic, c.metrics, c.log)
	consumer.SetRetry(c.config.MaxAttempts, c.config.RetryBackoff)
	return consumer
}

// ListTopics lists all Kafka topics
func (c *Client) ListTopics(ctx context.Context) ([]string, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("failed to read partitions: %w", err)
	}

	seen := make(map[string]struct{})
	topics := make([]string, 0)
	for _, p := range partitions {
		if _, ok := seen[p.Topic]; ok {
			continue
		}
		seen[p.Topic] = struct{}{}
		topics = append(topics, p.Topic)
	}
	sort.Strings(topics)
	return topics, nil
}

// EnsureTopicExists creates topic on the controller if it is missing
func (c *Client) EnsureTopicExists(ctx context.Context, topic string, partitions int, replicationFactor int) error {
	topics, err := c.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("failed to list topics: %w", err)
	}
	for _, t := range topics {
		if t == topic {
			c.log.Infof("Topic %s already exists", topic)
			return nil
		}
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to find controller: %w", err)
	}
	var dialer kafka.Dialer
	controllerConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial controller: %w", err)
	}
	defer controllerConn.Close()

	c.log.Infof("Creating topic %s with %d partitions and replication factor %d", topic, partitions, replicationFactor)
	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: replicationFactor,
	})
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*kafka.Conn, error) {
	var lastErr error
	dialer := &kafka.Dialer{ClientID: c.config.ClientID, Timeout: 10 * time.Second}
	for _, broker := range c.config.Brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to connect to any broker: %w", lastErr)
}

func fromKafkaMessage(m kafka.Message) *Message {
	msg := &Message{
		Key:       m.Key,
		Value:     m.Value,
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Timestamp: m.Time,
	}
	if len(m.Headers) > 0 {
		msg.Headers = make([]MessageHeader, len(m.Headers))
		for i, h := range m.Headers {
			msg.Headers[i] = MessageHeader{Key: h.Key, Value: h.Value}
		}
	}
	return msg
}

func toKafkaHeaders(headers []MessageHeader) []kafka.Header {
	if len(headers) == 0 {
		return nil
	}
	out := make([]kafka.Header, len(headers))
	for i, h := range headers {
		out[i] = kafka.Header{Key: h.Key, Value: h.Value}
	}
	return out
}
