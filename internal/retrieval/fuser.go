package retrieval

import (
	"github.com/patentsearch/evidence-engine/internal/infrastructure/database/postgres"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/search/opensearch"
)

const defaultBM25Weight = 0.45
const defaultVectorWeight = 0.55

// Fuser combines a BM25 hit list and a vector hit list into one ranked list
// of chunk-level hits. Implementations decide how to normalize and weight
// each side before merging.
type Fuser interface {
	Fuse(bm25 []opensearch.Hit, vector []postgres.VectorHit, topk int) []FusedHit
}

// WeightedFuser normalizes each side by its own max score, then combines
// them as a weighted sum. It is the only fusion strategy spec.md mandates;
// other Fuser implementations (e.g. reciprocal rank fusion) can be added
// without touching Engine.
type WeightedFuser struct {
	BM25Weight   float64
	VectorWeight float64
}

// DefaultFuser returns the spec-mandated 0.45/0.55 weighted fuser.
func DefaultFuser() *WeightedFuser {
	return &WeightedFuser{BM25Weight: defaultBM25Weight, VectorWeight: defaultVectorWeight}
}

func (f *WeightedFuser) Fuse(bm25 []opensearch.Hit, vector []postgres.VectorHit, topk int) []FusedHit {
	bm25Max := maxBM25Score(bm25)
	vecMax := maxVectorScore(vector)

	byChunk := make(map[string]*FusedHit)
	var order []string

	for _, hit := range bm25 {
		norm := 0.0
		if bm25Max > 0 {
			norm = hit.Score / bm25Max
		}
		fh := ensureHit(byChunk, &order, hit.ChunkID, hit.PublicationNumber, hit.SectionType, hit.Text, hit.Highlights)
		fh.Score += f.BM25Weight * norm
	}

	for _, hit := range vector {
		norm := 0.0
		if vecMax > 0 {
			norm = hit.Score / vecMax
		}
		fh := ensureHit(byChunk, &order, hit.ChunkID, hit.PublicationNumber, hit.SectionType, hit.Text, nil)
		fh.Score += f.VectorWeight * norm
	}

	out := make([]FusedHit, 0, len(order))
	for _, id := range order {
		out = append(out, *byChunk[id])
	}
	sortFusedHits(out)

	if topk > 0 && len(out) > topk {
		out = out[:topk]
	}
	return out
}

func ensureHit(byChunk map[string]*FusedHit, order *[]string, chunkID, pub, section, text string, highlights []string) *FusedHit {
	fh, ok := byChunk[chunkID]
	if !ok {
		fh = &FusedHit{ChunkID: chunkID, PublicationNumber: pub, SectionType: section, Text: text}
		byChunk[chunkID] = fh
		*order = append(*order, chunkID)
	}
	if len(highlights) > 0 {
		fh.Highlights = highlights
	}
	return fh
}

func maxBM25Score(hits []opensearch.Hit) float64 {
	max := 0.0
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	return max
}

func maxVectorScore(hits []postgres.VectorHit) float64 {
	max := 0.0
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	return max
}
