// Package retrieval implements the hybrid BM25+vector search engine: fusing
// lexical and vector hits into one ranked list, aggregating chunk hits up to
// the patents that contain them, and the optional citation/CPC graph
// expansion boost.
package retrieval

import (
	"context"
	"sort"

	"github.com/patentsearch/evidence-engine/internal/embedding"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/database/postgres"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/search/opensearch"
	"github.com/patentsearch/evidence-engine/pkg/errors"
)

const graphExpansionSeedWindow = 50
const graphExpansionBoost = 1.05

// BM25Searcher is the lexical half of hybrid retrieval.
type BM25Searcher interface {
	BM25Search(ctx context.Context, query string, topk int) ([]opensearch.Hit, error)
}

// VectorSearcher is the vector half of hybrid retrieval.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, queryEmbedding []float32, topk int) ([]postgres.VectorHit, error)
}

// GraphExpander returns the single-hop neighbors of a set of publications.
type GraphExpander interface {
	GraphNeighbors(ctx context.Context, publications []string, limit int) ([]string, error)
}

// MultiHopExpander returns the Neo4j mirror's multi-hop neighbors of a set
// of publications; used only when search --graph-multi-hop is set and the
// mirror is configured.
type MultiHopExpander interface {
	ExpandMultiHop(ctx context.Context, seeds []string, hops, limit int) ([]string, error)
}

// FusedHit is one chunk-level hybrid search result.
type FusedHit struct {
	ChunkID           string
	PublicationNumber string
	SectionType       string
	Text              string
	Score             float64
	Highlights        []string
}

// PatentAggregate is one patent-level search result.
type PatentAggregate struct {
	PublicationNumber string  `json:"publication_number"`
	Score             float64 `json:"score"`
	SupportingChunks  int     `json:"supporting_chunks"`
}

// Result is run_search's full return value.
type Result struct {
	Chunks  []FusedHit        `json:"chunks"`
	Patents []PatentAggregate `json:"patents"`
}

// Engine wires the lexical, vector, embedding, and graph collaborators
// run_search needs. GraphMirror may be nil when Neo4j is unconfigured.
type Engine struct {
	BM25        BM25Searcher
	Vector      VectorSearcher
	Embedder    embedding.Provider
	Graph       GraphExpander
	GraphMirror MultiHopExpander
	Fuser       Fuser
}

// New returns an Engine using the default weighted-normalized-sum Fuser.
func New(bm25 BM25Searcher, vector VectorSearcher, embedder embedding.Provider, graph GraphExpander, mirror MultiHopExpander) *Engine {
	return &Engine{BM25: bm25, Vector: vector, Embedder: embedder, Graph: graph, GraphMirror: mirror, Fuser: DefaultFuser()}
}

// RunSearch runs bm25 and vector search, fuses them, optionally boosts by
// graph-expanded neighbors, and returns the topk chunk hits plus their
// patent-level aggregation.
func (e *Engine) RunSearch(ctx context.Context, query string, topk, topkBM25, topkVec int, graphExpand, graphMultiHop bool) (Result, error) {
	bm25Hits, err := e.BM25.BM25Search(ctx, query, topkBM25)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CodeInternal, "bm25 search failed")
	}

	vectors, err := e.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CodeInternal, "query embedding failed")
	}
	if len(vectors) != 1 {
		return Result{}, errors.Newf(errors.CodeInternal, "embedding provider returned %d vectors for 1 query", len(vectors))
	}

	vecHits, err := e.Vector.VectorSearch(ctx, vectors[0], topkVec)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CodeInternal, "vector search failed")
	}

	fuseLimit := topk
	if fuseLimit < 200 {
		fuseLimit = 200
	}
	fused := e.Fuser.Fuse(bm25Hits, vecHits, fuseLimit)

	if graphExpand {
		fused, err = e.applyGraphExpansion(ctx, fused, graphMultiHop)
		if err != nil {
			return Result{}, err
		}
	}

	if len(fused) > topk {
		fused = fused[:topk]
	}

	return Result{Chunks: fused, Patents: AggregatePatents(fused)}, nil
}

func (e *Engine) applyGraphExpansion(ctx context.Context, fused []FusedHit, multiHop bool) ([]FusedHit, error) {
	seedWindow := fused
	if len(seedWindow) > graphExpansionSeedWindow {
		seedWindow = seedWindow[:graphExpansionSeedWindow]
	}

	seeds := make([]string, 0, len(seedWindow))
	seenSeed := make(map[string]struct{})
	for _, hit := range seedWindow {
		if _, ok := seenSeed[hit.PublicationNumber]; ok {
			continue
		}
		seenSeed[hit.PublicationNumber] = struct{}{}
		seeds = append(seeds, hit.PublicationNumber)
	}
	if len(seeds) == 0 {
		return fused, nil
	}

	var neighbors []string
	var err error
	if multiHop && e.GraphMirror != nil {
		neighbors, err = e.GraphMirror.ExpandMultiHop(ctx, seeds, 2, len(seeds)*10)
	} else {
		neighbors, err = e.Graph.GraphNeighbors(ctx, seeds, len(seeds)*10)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "graph expansion failed")
	}

	neighborSet := make(map[string]struct{}, len(neighbors))
	for _, n := range neighbors {
		neighborSet[n] = struct{}{}
	}

	boosted := make([]FusedHit, len(fused))
	copy(boosted, fused)
	for i := range boosted {
		if _, ok := neighborSet[boosted[i].PublicationNumber]; ok {
			boosted[i].Score *= graphExpansionBoost
		}
	}
	sortFusedHits(boosted)
	return boosted, nil
}

func sortFusedHits(hits []FusedHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
}

// AggregatePatents groups chunks by publication number; a patent's score is
// the max hybrid score among its chunks, and supporting_chunks is the count.
// Sorted by score descending, ties broken by publication number ascending.
func AggregatePatents(chunks []FusedHit) []PatentAggregate {
	byPub := make(map[string]*PatentAggregate)
	var order []string
	for _, c := range chunks {
		agg, ok := byPub[c.PublicationNumber]
		if !ok {
			agg = &PatentAggregate{PublicationNumber: c.PublicationNumber}
			byPub[c.PublicationNumber] = agg
			order = append(order, c.PublicationNumber)
		}
		agg.SupportingChunks++
		if c.Score > agg.Score {
			agg.Score = c.Score
		}
	}

	out := make([]PatentAggregate, 0, len(order))
	for _, pub := range order {
		out = append(out, *byPub[pub])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PublicationNumber < out[j].PublicationNumber
	})
	return out
}
