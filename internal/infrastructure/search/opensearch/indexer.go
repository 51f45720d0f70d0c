package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/patentsearch/evidence-engine/internal/domain/patent"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
	"github.com/patentsearch/evidence-engine/pkg/errors"
)

// chunkDocument is the JSON shape stored per chunk_id: chunk_id,
// publication_number and section_type are exact-match keywords; text is the
// analyzed BM25 field.
type chunkDocument struct {
	ChunkID           string `json:"chunk_id"`
	PublicationNumber string `json:"publication_number"`
	SectionType       string `json:"section_type"`
	Text              string `json:"text"`
}

// Indexer owns index lifecycle and chunk upserts against a single index.
type Indexer struct {
	client    *Client
	indexName string
	logger    logging.Logger
}

// NewIndexer returns an Indexer bound to indexName.
func NewIndexer(client *Client, indexName string, logger logging.Logger) *Indexer {
	return &Indexer{client: client, indexName: indexName, logger: logger}
}

// EnsureIndex creates the index with the chunk mapping if it does not
// already exist. Idempotent: an existing index, including one with a
// different mapping, is left untouched.
func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	existsReq := opensearchapi.IndicesExistsRequest{Index: []string{ix.indexName}}
	existsResp, err := existsReq.Do(ctx, ix.client.Raw())
	if err != nil {
		return errors.Wrap(err, errors.CodeDBConnectionError, "failed to check index existence")
	}
	defer existsResp.Body.Close()

	if existsResp.StatusCode == 200 {
		return nil
	}

	body, err := json.Marshal(chunkIndexMapping())
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "failed to marshal index mapping")
	}

	createReq := opensearchapi.IndicesCreateRequest{
		Index: ix.indexName,
		Body:  bytes.NewReader(body),
	}
	createResp, err := createReq.Do(ctx, ix.client.Raw())
	if err != nil {
		return errors.Wrap(err, errors.CodeDBConnectionError, "failed to create index request")
	}
	defer createResp.Body.Close()

	if createResp.IsError() {
		return decodeOpenSearchError(createResp)
	}

	ix.logger.Info("opensearch index created", logging.String("index", ix.indexName))
	return nil
}

// IndexChunks upserts each chunk by chunk_id with refresh=false, then issues
// a single trailing refresh so the batch becomes searchable as a unit.
func (ix *Indexer) IndexChunks(ctx context.Context, chunks []patent.EvidenceChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, c := range chunks {
		meta := fmt.Sprintf(`{"index":{"_index":%q,"_id":%q}}`, ix.indexName, c.ChunkID)
		buf.WriteString(meta)
		buf.WriteByte('\n')

		doc := chunkDocument{
			ChunkID:           c.ChunkID,
			PublicationNumber: c.PublicationNumber,
			SectionType:       string(c.SectionType),
			Text:              c.Text,
		}
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return errors.Wrap(err, errors.CodeSerialization, "failed to marshal chunk document").WithDetail(c.ChunkID)
		}
		buf.Write(docBytes)
		buf.WriteByte('\n')
	}

	bulkReq := opensearchapi.BulkRequest{
		Body:    bytes.NewReader(buf.Bytes()),
		Refresh: "false",
	}
	resp, err := bulkReq.Do(ctx, ix.client.Raw())
	if err != nil {
		return errors.Wrap(err, errors.CodeDBConnectionError, "bulk index request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return decodeOpenSearchError(resp)
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bulkResp); err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "failed to decode bulk response")
	}

	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for action, info := range item {
				if info.Status >= 200 && info.Status < 300 {
					continue
				}
				return errors.New(errors.CodeDBQueryError, fmt.Sprintf(
					"opensearch bulk %s failed for %s: %s - %s", action, info.ID, info.Error.Type, info.Error.Reason))
			}
		}
	}

	return ix.refresh(ctx)
}

func (ix *Indexer) refresh(ctx context.Context) error {
	req := opensearchapi.IndicesRefreshRequest{Index: []string{ix.indexName}}
	resp, err := req.Do(ctx, ix.client.Raw())
	if err != nil {
		return errors.Wrap(err, errors.CodeDBConnectionError, "index refresh failed")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return decodeOpenSearchError(resp)
	}
	return nil
}

func decodeOpenSearchError(resp *opensearchapi.Response) error {
	var errResp struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error.Reason != "" {
		return errors.New(errors.CodeDBQueryError, fmt.Sprintf("opensearch error: %s - %s", errResp.Error.Type, errResp.Error.Reason))
	}
	return errors.New(errors.CodeDBQueryError, fmt.Sprintf("opensearch error status: %d", resp.StatusCode))
}

func chunkIndexMapping() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"chunk_id":           map[string]any{"type": "keyword"},
				"publication_number": map[string]any{"type": "keyword"},
				"section_type":       map[string]any{"type": "keyword"},
				"text":               map[string]any{"type": "text"},
			},
		},
	}
}
