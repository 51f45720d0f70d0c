package opensearch

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
	"github.com/patentsearch/evidence-engine/pkg/errors"
)

// Hit is one BM25 match, ordered by descending Score.
type Hit struct {
	ChunkID           string
	PublicationNumber string
	SectionType       string
	Text              string
	Score             float64
	Highlights        []string
}

// Searcher runs BM25 match queries against the chunk index.
type Searcher struct {
	client    *Client
	indexName string
	logger    logging.Logger
}

// NewSearcher returns a Searcher bound to indexName.
func NewSearcher(client *Client, indexName string, logger logging.Logger) *Searcher {
	return &Searcher{client: client, indexName: indexName, logger: logger}
}

// BM25Search runs a BM25 match query over the text field and returns the top
// topk hits ordered by score, each carrying any highlighted fragments.
func (s *Searcher) BM25Search(ctx context.Context, query string, topk int) ([]Hit, error) {
	if topk <= 0 {
		topk = 1
	}

	dsl := map[string]any{
		"size": topk,
		"query": map[string]any{
			"match": map[string]any{
				"text": map[string]any{"query": query},
			},
		},
		"highlight": map[string]any{
			"fields": map[string]any{
				"text": map[string]any{},
			},
			"pre_tags":  []string{"<em>"},
			"post_tags": []string{"</em>"},
		},
	}

	body, err := json.Marshal(dsl)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to marshal bm25 query")
	}

	req := opensearchapi.SearchRequest{
		Index: []string{s.indexName},
		Body:  bytes.NewReader(body),
	}

	resp, err := req.Do(ctx, s.client.Raw())
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDBConnectionError, "bm25 search request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, decodeOpenSearchError(resp)
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID         string          `json:"_id"`
				Score      float64         `json:"_score"`
				Source     chunkDocument   `json:"_source"`
				Highlight  map[string][]string `json:"highlight"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to decode bm25 search response")
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, Hit{
			ChunkID:           h.Source.ChunkID,
			PublicationNumber: h.Source.PublicationNumber,
			SectionType:       h.Source.SectionType,
			Text:              h.Source.Text,
			Score:             h.Score,
			Highlights:        h.Highlight["text"],
		})
	}

	s.logger.Debug("bm25 search executed", logging.String("index", s.indexName), logging.Int("hits", len(hits)))
	return hits, nil
}
