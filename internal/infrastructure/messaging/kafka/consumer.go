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

// ConsumerConfig holds configuration for the Consumer.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
}

// readerInterface abstracts kafka.Reader for testing.
type readerInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer drains TopicEmbedBackfill for the out-of-process embedder.
type Consumer struct {
	reader  readerInterface
	logger  logging.Logger
	running atomic.Bool
}

// NewConsumer returns a Consumer subscribed to TopicEmbedBackfill under
// cfg.GroupID.
func NewConsumer(cfg ConsumerConfig, logger logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.CodeValidation, "kafka: at least one broker is required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New(errors.CodeValidation, "kafka: GroupID is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       TopicEmbedBackfill,
		MinBytes:    1,
		MaxBytes:    10 * 1024 * 1024,
		MaxWait:     1 * time.Second,
		StartOffset: kafka.FirstOffset,
	})

	return &Consumer{reader: reader, logger: logger}, nil
}

// Run fetches tasks one at a time and invokes handle for each, committing
// the offset only after handle returns nil. It blocks until ctx is
// cancelled or handle returns a non-nil error, in which case the message is
// left uncommitted for redelivery.
func (c *Consumer) Run(ctx context.Context, handle func(context.Context, EmbedBackfillTask) error) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New(errors.CodeConflict, "kafka consumer is already running")
	}
	defer c.running.Store(false)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, errors.CodeDBConnectionError, "kafka fetch failed")
		}

		var task EmbedBackfillTask
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			c.logger.Error("dropping malformed backfill task", logging.Err(err))
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return errors.Wrap(err, errors.CodeDBQueryError, "kafka commit failed")
			}
			continue
		}

		if err := handle(ctx, task); err != nil {
			c.logger.Error("backfill task handler failed, leaving uncommitted", logging.String("chunk_id", task.ChunkID), logging.Err(err))
			return errors.Wrap(err, errors.CodeInternal, "backfill task handler failed")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, errors.CodeDBQueryError, "kafka commit failed")
		}
	}
}

// Close stops the reader.
func (c *Consumer) Close() error {
	err := c.reader.Close()
	c.logger.Info("kafka consumer closed")
	return err
}
