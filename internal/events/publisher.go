// Package events publishes applied document operations to Kafka so other
// services (search indexing, audit) can follow the edit stream. Publishing
// is fire-and-forget; the editing path never waits on the broker.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Aryan-Dev26/TeamFlow-sub000/internal/ot"
)

const DefaultTopic = "doc-ops"

// AppliedOperation is the record written per committed operation.
type AppliedOperation struct {
	DocumentID string       `json:"documentId"`
	Version    int64        `json:"version"`
	Operation  ot.Operation `json:"operation"`
	AppliedAt  time.Time    `json:"appliedAt"`
}

// Publisher emits applied operations. A nil *KafkaPublisher is a valid
// disabled publisher.
type Publisher interface {
	PublishApplied(record AppliedOperation)
	Close() error
}

// KafkaPublisher writes records through an async producer, keyed by document
// id so per-document ordering survives partitioning.
type KafkaPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaPublisher connects to the brokers. An empty broker list returns a
// nil publisher, which disables event publishing.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("events: connect kafka: %w", err)
	}

	publisher := &KafkaPublisher{producer: producer, topic: topic, logger: logger}
	go publisher.drainErrors()
	return publisher, nil
}

func (p *KafkaPublisher) drainErrors() {
	for producerError := range p.producer.Errors() {
		p.logger.Warn("kafka publish failed", zap.Error(producerError.Err))
	}
}

// PublishApplied enqueues the record without blocking the caller beyond the
// producer's input buffer.
func (p *KafkaPublisher) PublishApplied(record AppliedOperation) {
	if p == nil {
		return
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		p.logger.Warn("encode applied operation", zap.Error(err))
		return
	}
	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(record.DocumentID),
		Value: sarama.ByteEncoder(encoded),
	}
}

// Close flushes pending records and shuts the producer down.
func (p *KafkaPublisher) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}
