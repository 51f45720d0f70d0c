// Package config defines the flat environment-variable configuration for the
// evidence engine. There is no process-wide singleton: main constructs one
// *Config and passes it down explicitly to every component that needs it.
package config

import "fmt"

// Config holds every setting the ingest pipeline, retrieval engine, and CLI
// read. Required fields fail Validate when empty (EmbedBatchSize is loaded
// with DefaultEmbedBatchSize when EMBED_BATCH_SIZE is unset; ODPAPIKey may
// stay empty); optional ambient-stack fields gate the corresponding feature
// off when unset.
type Config struct {
	// Required — core pipeline.
	PostgresDSN              string
	OpenSearchURL            string
	OpenSearchIndex          string
	DataRoot                 string
	EmbeddingModel           string
	EmbedBatchSize           int
	ODPBulkSearchURL         string
	ODPPTGRXMLDatasetPageURL string
	ODPAPIKey                string

	// Optional — Redis distributed lock (internal/infrastructure/database/redis).
	RedisAddr string

	// Optional — Kafka side channels (internal/infrastructure/messaging/kafka).
	KafkaBrokers     []string
	EmbedQueueBroker []string

	// Optional — Neo4j citation/CPC graph mirror.
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Optional — MinIO archive mirror.
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string

	// Optional — Prometheus metrics server.
	MetricsAddr string
}

// RedisEnabled reports whether the distributed lock should be wired.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// KafkaEnabled reports whether the week.ingested producer should be wired.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// EmbedQueueEnabled reports whether EMBED_QUEUE_BROKERS is set, which
// cmd/embedder requires before it drains kafka.TopicEmbedBackfill. The
// ingest orchestrator's backfill loop polls Postgres whether or not it is
// set, and the ingest path publishes no tasks to that topic.
func (c *Config) EmbedQueueEnabled() bool { return len(c.EmbedQueueBroker) > 0 }

// Neo4jEnabled reports whether the citation/CPC graph mirror should be
// wired.
func (c *Config) Neo4jEnabled() bool { return c.Neo4jURI != "" }

// MinIOEnabled reports whether the archive mirror should be wired.
func (c *Config) MinIOEnabled() bool { return c.MinIOEndpoint != "" }

// MetricsEnabled reports whether ingest metrics are collected (METRICS_ADDR
// set). The patentsearch command records them in-process; it does not serve
// a scrape endpoint on MetricsAddr.
func (c *Config) MetricsEnabled() bool { return c.MetricsAddr != "" }

// Validate checks that every required field is populated and that optional
// groups are internally consistent (e.g. a MinIO bucket without an
// endpoint is a configuration mistake, not a disabled feature).
func (c *Config) Validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("config: POSTGRES_DSN is required")
	}
	if c.OpenSearchURL == "" {
		return fmt.Errorf("config: OPENSEARCH_URL is required")
	}
	if c.OpenSearchIndex == "" {
		return fmt.Errorf("config: OPENSEARCH_INDEX is required")
	}
	if c.DataRoot == "" {
		return fmt.Errorf("config: DATA_ROOT is required")
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("config: EMBEDDING_MODEL is required")
	}
	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("config: EMBED_BATCH_SIZE must be >= 1, got %d", c.EmbedBatchSize)
	}
	if c.EmbedBatchSize > 500 {
		return fmt.Errorf("config: EMBED_BATCH_SIZE must be <= 500, got %d", c.EmbedBatchSize)
	}
	if c.ODPBulkSearchURL == "" {
		return fmt.Errorf("config: ODP_BULK_SEARCH_URL is required")
	}
	if c.ODPPTGRXMLDatasetPageURL == "" {
		return fmt.Errorf("config: ODP_PTGRXML_DATASET_PAGE_URL is required")
	}

	if c.MinIOBucket != "" && c.MinIOEndpoint == "" {
		return fmt.Errorf("config: MINIO_BUCKET set without MINIO_ENDPOINT")
	}

	return nil
}
