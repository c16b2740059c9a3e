package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

// HeaderMessageType names the payload carried by a message
const HeaderMessageType = "message-type"

const messageTypeRunRecord = "run_record"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer is a wrapper around the Kafka writer
type Producer struct {
	writer  messageWriter
	topic   string
	metrics MessageRecorder
	log     *logger.Logger
}

func newProducer(writer messageWriter, topic string, metrics MessageRecorder, log *logger.Logger) *Producer {
	return &Producer{
		writer:  writer,
		topic:   topic,
		metrics: metrics,
		log:     log.WithField("topic", topic),
	}
}

// ProduceMessage writes a message and waits for the configured acks
func (p *Producer) ProduceMessage(ctx context.Context, key []byte, value []byte, headers []MessageHeader) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     key,
		Value:   value,
		Headers: toKafkaHeaders(headers),
	})
	if p.metrics != nil {
		p.metrics.RecordKafkaMessage(p.topic, "out", err)
	}
	if err != nil {
		p.log.Errorf("Failed to produce message: %v", err)
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

// ProduceJSON marshals value and produces it under key
func (p *Producer) ProduceJSON(ctx context.Context, key string, value interface{}, headers ...MessageHeader) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.ProduceMessage(ctx, []byte(key), data, headers)
}

// SaveRun publishes a run record keyed by portfolio, so runs of one portfolio
// stay ordered on one partition
func (p *Producer) SaveRun(ctx context.Context, record models.RunRecord) error {
	return p.ProduceJSON(ctx, record.PortfolioID, record, MessageHeader{Key: HeaderMessageType, Value: []byte(messageTypeRunRecord)})
}

// Topic returns the topic the producer writes to
func (p *Producer) Topic() string {
	return p.topic
}

// Close flushes pending messages and closes the writer
func (p *Producer) Close() error {
	p.log.Info("Closing Kafka producer")
	return p.writer.Close()
}
