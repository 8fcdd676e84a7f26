// Package kafka publishes content lifecycle events to the downstream bus.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// ContentEvent represents a content lifecycle event
type ContentEvent struct {
	EventType  string          `json:"event_type"` // anime.published, episode.published, autoupdate.conflict
	EntityID   string          `json:"entity_id"`
	EntityType string          `json:"entity_type"`
	SourceID   int             `json:"source_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// PublishContentEvent publishes a content event to Kafka
func (p *Producer) PublishContentEvent(ctx context.Context, event *ContentEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishContentEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.EntityID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "entity_type", Value: []byte(event.EntityType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error")
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish content event")
		return err
	}

	metrics.RecordKafkaPublish(p.topic, "success")
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":  event.EventType,
		"entity_id":   event.EntityID,
		"entity_type": event.EntityType,
	}).Debug("Published content event")

	return nil
}
