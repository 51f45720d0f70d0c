package embedding

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/patentsearch/evidence-engine/internal/identity"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
	"github.com/patentsearch/evidence-engine/pkg/errors"
)

// CachedProvider wraps a Model with a content-addressed cache: key =
// sha256_hex(text), backing store = a single JSON file under dataDir. A
// cache miss submits only the missing texts to the model, then rewrites the
// whole file with the merged contents.
type CachedProvider struct {
	model   Model
	path    string
	logger  logging.Logger
	mu      sync.Mutex
	vectors map[string][]float32
}

// NewCachedProvider loads (or initializes) the cache file at
// {dataDir}/embedding_cache.json.
func NewCachedProvider(model Model, dataDir string, logger logging.Logger) (*CachedProvider, error) {
	path := filepath.Join(dataDir, "embedding_cache.json")
	cp := &CachedProvider{model: model, path: path, logger: logger, vectors: map[string][]float32{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cp, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to read embedding cache").WithDetail(path)
	}
	if err := json.Unmarshal(data, &cp.vectors); err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to decode embedding cache").WithDetail(path)
	}
	for key, vec := range cp.vectors {
		if len(vec) != ExpectedDim {
			return nil, errors.Newf(errors.CodeEmbeddingDimensionMismatch,
				"cached embedding for key %s has dimension %d, expected %d", key, len(vec), ExpectedDim)
		}
	}
	return cp, nil
}

// Embed returns one vector per input text, in order, serving cache hits
// directly and submitting only misses to the underlying model.
func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, len(texts))
	var missTexts []string
	var missKeys []string
	for i, text := range texts {
		key := identity.SHA256Hex(text)
		keys[i] = key
		if _, ok := c.vectors[key]; !ok {
			missTexts = append(missTexts, text)
			missKeys = append(missKeys, key)
		}
	}

	if len(missTexts) > 0 {
		fresh, err := c.model.Embed(ctx, missTexts)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "embedding model call failed")
		}
		if len(fresh) != len(missTexts) {
			return nil, errors.Newf(errors.CodeInternal, "embedding model returned %d vectors for %d inputs", len(fresh), len(missTexts))
		}
		for i, vec := range fresh {
			if len(vec) != ExpectedDim {
				return nil, errors.Newf(errors.CodeEmbeddingDimensionMismatch,
					"embedding model produced dimension %d, expected %d", len(vec), ExpectedDim)
			}
			c.vectors[missKeys[i]] = vec
		}
		if err := c.flush(); err != nil {
			return nil, err
		}
		c.logger.Debug("embedding cache miss", logging.Int("misses", len(missTexts)), logging.Int("total", len(texts)))
	}

	out := make([][]float32, len(texts))
	for i, key := range keys {
		out[i] = c.vectors[key]
	}
	return out, nil
}

// flush rewrites the cache file in full. Callers hold c.mu.
func (c *CachedProvider) flush() error {
	data, err := json.Marshal(c.vectors)
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "failed to encode embedding cache")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create embedding cache directory")
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to write embedding cache").WithDetail(c.path)
	}
	return nil
}
