package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
	"github.com/patentsearch/evidence-engine/pkg/errors"
)

// ProducerConfig holds configuration for the Producer.
type ProducerConfig struct {
	Brokers      []string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// writerInterface abstracts kafka.Writer for testing.
type writerInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON-encoded events to a single topic's worth of
// concerns. The ingest orchestrator treats a nil *Producer as "unconfigured"
// and skips publishing entirely.
type Producer struct {
	writer writerInterface
	logger logging.Logger
	closed atomic.Bool
	sent   atomic.Int64
}

// NewProducer dials brokers and returns a Producer. No connectivity check is
// performed here: kafka-go's Writer connects lazily on first write.
func NewProducer(cfg ProducerConfig, logger logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.CodeValidation, "kafka: at least one broker is required")
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 1 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return &Producer{writer: writer, logger: logger}, nil
}

// PublishWeekIngested publishes a WeekIngestedEvent to TopicWeekIngested.
func (p *Producer) PublishWeekIngested(ctx context.Context, event WeekIngestedEvent) error {
	return p.publish(ctx, TopicWeekIngested, []byte(event.Week), event)
}

// PublishBackfillTask publishes an EmbedBackfillTask to TopicEmbedBackfill.
func (p *Producer) PublishBackfillTask(ctx context.Context, task EmbedBackfillTask) error {
	return p.publish(ctx, TopicEmbedBackfill, []byte(task.ChunkID), task)
}

func (p *Producer) publish(ctx context.Context, topic string, key []byte, payload any) error {
	if p.closed.Load() {
		return errors.New(errors.CodeInternal, "kafka producer is closed")
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "failed to marshal kafka payload")
	}

	msg := kafka.Message{Topic: topic, Key: key, Value: value, Time: time.Now()}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, errors.CodeDBConnectionError, "kafka publish failed").WithDetail(topic)
	}

	p.sent.Add(1)
	p.logger.Debug("kafka message published", logging.String("topic", topic))
	return nil
}

// Close flushes and closes the underlying writer. Safe to call more than
// once.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("kafka producer closed", logging.Int64("sent", p.sent.Load()))
	return err
}
