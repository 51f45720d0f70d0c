package embedding

import (
	"context"
	"math"

	"github.com/patentsearch/evidence-engine/internal/identity"
)

// DeterministicModel is a hash-seeded fake Model: the same text always
// produces the same L2-normalized vector, with no external dependency. It
// stands in for a real sentence-transformer model in tests and in
// deployments that have not configured one.
type DeterministicModel struct {
	Dim int
}

// NewDeterministicModel returns a DeterministicModel producing ExpectedDim
// vectors.
func NewDeterministicModel() *DeterministicModel {
	return &DeterministicModel{Dim: ExpectedDim}
}

// Embed derives one vector per text from a SHA-256 seed expanded into Dim
// pseudo-random floats, then L2-normalizes it.
func (m *DeterministicModel) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = vectorFromSeed(text, m.Dim)
	}
	return out, nil
}

func vectorFromSeed(text string, dim int) []float32 {
	seedHex := identity.SHA256Hex(text)
	seedBytes := []byte(seedHex)

	vec := make([]float32, dim)
	state := fnvOffset
	for i := 0; i < dim; i++ {
		for _, b := range seedBytes {
			state ^= uint64(b)
			state *= fnvPrime
		}
		state ^= uint64(i)
		state *= fnvPrime
		vec[i] = float32(int64(state%2001)-1000) / 1000.0
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

const (
	fnvOffset uint64 = 14695981039346656037
	fnvPrime  uint64 = 1099511628211
)
