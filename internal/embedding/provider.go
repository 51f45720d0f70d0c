// Package embedding provides the text-to-vector boundary used by the
// ingest backfill loop and the retrieval engine's query embedding step. The
// package treats the actual model as an opaque collaborator: callers plug in
// any Model and get dimension checking and content-addressed caching for
// free.
package embedding

import "context"

// ExpectedDim is the vector width every Provider must return in the
// canonical configuration. A vector of any other length is a fatal
// configuration error, never silently truncated or padded.
const ExpectedDim = 768

// Provider turns a batch of texts into one vector per input, in order.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Model is the opaque underlying text-to-vector function a Provider wraps.
// A real implementation calls out to a sentence-transformer server or SDK;
// DeterministicModel stands in for one in tests and unconfigured
// deployments.
type Model interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
