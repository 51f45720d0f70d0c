// Command patentsearch is the CLI entry point for the evidence engine: it
// wires every infrastructure client from config.Config once and mounts the
// ingest/search command tree on top of them.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/patentsearch/evidence-engine/internal/config"
	"github.com/patentsearch/evidence-engine/internal/embedding"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/database/neo4j"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/database/postgres"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/database/redis"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/messaging/kafka"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/search/opensearch"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/storage/minio"
	"github.com/patentsearch/evidence-engine/internal/ingest"
	"github.com/patentsearch/evidence-engine/internal/ingest/downloader"
	"github.com/patentsearch/evidence-engine/internal/interfaces/cli"
	"github.com/patentsearch/evidence-engine/internal/retrieval"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const ingestLockTTL = 15 * time.Minute

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

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

	pool, err := postgres.NewConnectionPool(cfg.PostgresDSN, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", logging.Err(err))
		os.Exit(1)
	}
	defer postgres.Close(pool)
	store := postgres.NewStore(pool)

	osClient, err := opensearch.NewClient(opensearch.ClientConfig{Addresses: []string{cfg.OpenSearchURL}}, logger)
	if err != nil {
		logger.Error("failed to connect to opensearch", logging.Err(err))
		os.Exit(1)
	}
	defer osClient.Close()
	indexer := opensearch.NewIndexer(osClient, cfg.OpenSearchIndex, logger)
	searcher := opensearch.NewSearcher(osClient, cfg.OpenSearchIndex, logger)

	embedder, err := embedding.NewCachedProvider(embedding.NewDeterministicModel(), cfg.DataRoot, logger)
	if err != nil {
		logger.Error("failed to initialize embedding cache", logging.Err(err))
		os.Exit(1)
	}

	var metrics *prometheus.IngestMetrics
	if cfg.MetricsEnabled() {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "patentsearch"}, logger)
		if err != nil {
			logger.Warn("failed to initialize metrics collector, continuing without metrics", logging.Err(err))
		} else {
			metrics = prometheus.NewIngestMetrics(collector)
		}
	}

	var lock *redis.DistributedLock
	if cfg.RedisEnabled() {
		redisClient, err := redis.NewClient(cfg.RedisAddr, logger)
		if err != nil {
			logger.Warn("failed to connect to redis, ingest runs will not be lock-protected", logging.Err(err))
		} else {
			lock = redis.NewDistributedLock(redisClient, cfg.DataRoot, ingestLockTTL)
		}
	}

	var producer *kafka.Producer
	if cfg.KafkaEnabled() {
		producer, err = kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.KafkaBrokers}, logger)
		if err != nil {
			logger.Warn("failed to initialize kafka producer, week.ingested events will not be published", logging.Err(err))
			producer = nil
		}
	}

	var graphMirror *neo4j.Mirror
	if cfg.Neo4jEnabled() {
		driver, err := neo4j.NewDriver(neo4j.Config{
			URI:      cfg.Neo4jURI,
			Username: cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
		}, logger)
		if err != nil {
			logger.Warn("failed to connect to neo4j, citation/CPC graph mirror disabled", logging.Err(err))
		} else {
			graphMirror = neo4j.NewMirror(driver)
		}
	}

	var objectMirror *minio.Mirror
	if cfg.MinIOEnabled() {
		objectMirror, err = minio.NewMirror(context.Background(), minio.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
		}, logger)
		if err != nil {
			logger.Warn("failed to connect to minio, archive mirroring disabled", logging.Err(err))
			objectMirror = nil
		}
	}

	orchestrator := &ingest.Orchestrator{
		Downloader:     downloader.New(nil, cfg.DataRoot, logger),
		Store:          store,
		Indexer:        indexer,
		Embedder:       embedder,
		Logger:         logger,
		DataRoot:       cfg.DataRoot,
		DatasetPageURL: cfg.ODPPTGRXMLDatasetPageURL,
		SearchAPIURL:   cfg.ODPBulkSearchURL,
		APIKey:         cfg.ODPAPIKey,
		EmbedBatchSize: cfg.EmbedBatchSize,
		Lock:           lock,
		Producer:       producer,
		GraphMirror:    graphMirror,
		ObjectMirror:   objectMirror,
		Metrics:        metrics,
	}

	var mirrorExpander retrieval.MultiHopExpander
	if graphMirror != nil {
		mirrorExpander = graphMirror
	}
	engine := retrieval.New(searcher, store, embedder, store, mirrorExpander)

	cliCtx := &cli.CLIContext{
		Config:       cfg,
		Logger:       logger,
		Orchestrator: orchestrator,
		Engine:       engine,
	}

	if err := cli.Execute(cliCtx); err != nil {
		os.Exit(1)
	}
}
