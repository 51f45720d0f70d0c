//go:build integration

// Package opensearch_test provides integration tests for the lexical index.
// Tests require Docker and are gated behind the "integration" build tag.
package opensearch_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/patentsearch/evidence-engine/internal/domain/patent"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/search/opensearch"
)

// startOpenSearch launches a single-node OpenSearch container with security
// disabled and returns a connected client.
func startOpenSearch(t *testing.T) *opensearch.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "opensearchproject/opensearch:2.11.0",
		ExposedPorts: []string{"9200/tcp"},
		Env: map[string]string{
			"discovery.type":                   "single-node",
			"plugins.security.disabled":        "true",
			"OPENSEARCH_JAVA_OPTS":             "-Xms512m -Xmx512m",
			"DISABLE_INSTALL_DEMO_CONFIG":      "true",
		},
		WaitingFor: wait.ForHTTP("/").WithPort("9200/tcp").WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9200")
	require.NoError(t, err)

	client, err := opensearch.NewClient(opensearch.ClientConfig{
		Addresses: []string{fmt.Sprintf("http://%s:%s", host, port.Port())},
	}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestIndexer_EnsureIndex_IsIdempotent(t *testing.T) {
	client := startOpenSearch(t)
	indexer := opensearch.NewIndexer(client, "chunks-test-1", logging.NewNopLogger())

	require.NoError(t, indexer.EnsureIndex(context.Background()))
	require.NoError(t, indexer.EnsureIndex(context.Background()))
}

func TestIndexer_IndexChunks_AndBM25Search(t *testing.T) {
	client := startOpenSearch(t)
	indexName := "chunks-test-2"
	indexer := opensearch.NewIndexer(client, indexName, logging.NewNopLogger())
	searcher := opensearch.NewSearcher(client, indexName, logging.NewNopLogger())

	require.NoError(t, indexer.EnsureIndex(context.Background()))

	chunks := []patent.EvidenceChunk{
		{ChunkID: "c1", PublicationNumber: "US1", SectionType: patent.SectionClaim, Text: "a neural network for image classification"},
		{ChunkID: "c2", PublicationNumber: "US2", SectionType: patent.SectionAbstract, Text: "a method for brewing coffee"},
	}
	require.NoError(t, indexer.IndexChunks(context.Background(), chunks))

	hits, err := searcher.BM25Search(context.Background(), "neural network", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "c1", hits[0].ChunkID)
	assert.Equal(t, "US1", hits[0].PublicationNumber)
}

func TestIndexer_IndexChunks_EmptyIsNoop(t *testing.T) {
	client := startOpenSearch(t)
	indexer := opensearch.NewIndexer(client, "chunks-test-3", logging.NewNopLogger())
	require.NoError(t, indexer.IndexChunks(context.Background(), nil))
}
