package embedder

import (
	"context"
	"crypto/sha256"
)

// Local provider constants.
const (
	ProviderLocal  = "local"
	LocalDimension = 384
)

// LocalProvider is a deterministic, offline embedder. Vectors are derived
// from the content hash, so identical text always embeds identically. Used
// as the no-configuration fallback and throughout the tests.
type LocalProvider struct {
	cache *Cache
}

// NewLocalProvider creates a local embedder.
func NewLocalProvider(cache *Cache) *LocalProvider {
	return &LocalProvider{cache: cache}
}

// EmbedBatch returns one deterministic vector per input text.
func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		hash := ComputeHash(text)
		if l.cache != nil {
			if v, ok := l.cache.Get(hash); ok {
				vectors[i] = v
				continue
			}
		}
		vectors[i] = localVector(text)
		if l.cache != nil {
			l.cache.Set(hash, vectors[i])
		}
	}
	return vectors, nil
}

// localVector spreads the content hash across the vector dimensions.
func localVector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, LocalDimension)
	for i := range v {
		b := sum[i%len(sum)]
		// Rotate by position so dimensions beyond 32 stay distinct.
		v[i] = float32(b^byte(i)) / 255.0
	}
	return v
}

// Dimension returns the embedding dimension.
func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

// Name returns the provider name.
func (l *LocalProvider) Name() string {
	return ProviderLocal
}

// Close is a no-op for the local provider.
func (l *LocalProvider) Close() error {
	return nil
}
