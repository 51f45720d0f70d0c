package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// requiredKeys and optionalKeys are the exact flat environment variable
// names Config binds. Viper is used purely as an env-var reader here — no
// YAML file, no "." → "_" nesting — since every key already matches its
// environment variable name one-to-one.
var requiredKeys = []string{
	"POSTGRES_DSN",
	"OPENSEARCH_URL",
	"OPENSEARCH_INDEX",
	"DATA_ROOT",
	"EMBEDDING_MODEL",
	"EMBED_BATCH_SIZE",
	"ODP_BULK_SEARCH_URL",
	"ODP_PTGRXML_DATASET_PAGE_URL",
}

var optionalKeys = []string{
	"ODP_API_KEY",
	"REDIS_ADDR",
	"KAFKA_BROKERS",
	"EMBED_QUEUE_BROKERS",
	"NEO4J_URI",
	"NEO4J_USER",
	"NEO4J_PASSWORD",
	"MINIO_ENDPOINT",
	"MINIO_ACCESS_KEY",
	"MINIO_SECRET_KEY",
	"MINIO_BUCKET",
	"METRICS_ADDR",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	for _, key := range requiredKeys {
		_ = v.BindEnv(key)
	}
	for _, key := range optionalKeys {
		_ = v.BindEnv(key)
	}
	v.SetDefault("EMBED_BATCH_SIZE", DefaultEmbedBatchSize)
	return v
}

// LoadFromEnv builds a Config entirely from the environment variables named
// in spec, applies defaults, and validates the result. This is the only
// loading path — there is no YAML config file.
func LoadFromEnv() (*Config, error) {
	v := newViper()

	cfg := &Config{
		PostgresDSN:              v.GetString("POSTGRES_DSN"),
		OpenSearchURL:            v.GetString("OPENSEARCH_URL"),
		OpenSearchIndex:          v.GetString("OPENSEARCH_INDEX"),
		DataRoot:                 v.GetString("DATA_ROOT"),
		EmbeddingModel:           v.GetString("EMBEDDING_MODEL"),
		EmbedBatchSize:           v.GetInt("EMBED_BATCH_SIZE"),
		ODPBulkSearchURL:         v.GetString("ODP_BULK_SEARCH_URL"),
		ODPPTGRXMLDatasetPageURL: v.GetString("ODP_PTGRXML_DATASET_PAGE_URL"),
		ODPAPIKey:                v.GetString("ODP_API_KEY"),

		RedisAddr: v.GetString("REDIS_ADDR"),

		KafkaBrokers:     splitCSV(v.GetString("KAFKA_BROKERS")),
		EmbedQueueBroker: splitCSV(v.GetString("EMBED_QUEUE_BROKERS")),

		Neo4jURI:      v.GetString("NEO4J_URI"),
		Neo4jUser:     v.GetString("NEO4J_USER"),
		Neo4jPassword: v.GetString("NEO4J_PASSWORD"),

		MinIOEndpoint:  v.GetString("MINIO_ENDPOINT"),
		MinIOAccessKey: v.GetString("MINIO_ACCESS_KEY"),
		MinIOSecretKey: v.GetString("MINIO_SECRET_KEY"),
		MinIOBucket:    v.GetString("MINIO_BUCKET"),

		MetricsAddr: v.GetString("METRICS_ADDR"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadFromEnv is a convenience wrapper around LoadFromEnv that panics on
// any error. Intended for use in main(), where a config-load failure is
// always fatal.
func MustLoadFromEnv() *Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("config: MustLoadFromEnv failed: %v", err))
	}
	return cfg
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
