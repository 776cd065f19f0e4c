// Package mock provides a deterministic embedder for tests and offline
// runs. It generates embeddings from a text hash, so equal texts always
// map to equal vectors.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// DefaultDimension keeps mock vectors small and cheap.
const DefaultDimension = 64

// Embedder is a hash-based deterministic embedder.
type Embedder struct {
	dimension int
}

// New creates a mock embedder with the given dimension; non-positive
// values fall back to DefaultDimension.
func New(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

// Embed creates a deterministic unit vector from the text hash.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))

	// Use the hash as an LCG seed for pseudo-random components.
	seed := h.Sum64()
	vec := make([]float32, m.dimension)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

// EmbedBatch embeds each text independently.
func (m *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimension returns the vector width.
func (m *Embedder) Dimension() int {
	return m.dimension
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
