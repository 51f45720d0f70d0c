// Command embedder is the optional out-of-process embedding backfill
// worker: it drains kafka.TopicEmbedBackfill and writes vectors back to
// Postgres, so embedding computation can scale independently of the ingest
// orchestrator's own inline backfill loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/patentsearch/evidence-engine/internal/config"
	"github.com/patentsearch/evidence-engine/internal/embedding"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/database/postgres"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/messaging/kafka"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
)

const consumerGroupID = "patentsearch-embedder"

func main() {
	cfg := config.MustLoadFromEnv()

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if !cfg.EmbedQueueEnabled() {
		logger.Error("embedder requires EMBED_QUEUE_BROKERS to be set")
		os.Exit(1)
	}

	pool, err := postgres.NewConnectionPool(cfg.PostgresDSN, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", logging.Err(err))
		os.Exit(1)
	}
	defer postgres.Close(pool)
	store := postgres.NewStore(pool)

	embedder, err := embedding.NewCachedProvider(embedding.NewDeterministicModel(), cfg.DataRoot, logger)
	if err != nil {
		logger.Error("failed to initialize embedding cache", logging.Err(err))
		os.Exit(1)
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.EmbedQueueBroker,
		GroupID: consumerGroupID,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize kafka consumer", logging.Err(err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("embedder worker started")
	err = consumer.Run(ctx, func(ctx context.Context, task kafka.EmbedBackfillTask) error {
		vectors, err := embedder.Embed(ctx, []string{task.Text})
		if err != nil {
			return err
		}
		return store.UpdateEmbeddings(ctx, []postgres.EmbeddingPair{{ChunkID: task.ChunkID, Vector: vectors[0]}})
	})
	if err != nil {
		logger.Error("embedder worker stopped with error", logging.Err(err))
		os.Exit(1)
	}
}
