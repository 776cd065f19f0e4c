// Package embedding defines the embedding provider contract shared by the
// OpenAI and mock implementations.
package embedding

import "context"

// Embedder converts text into dense vectors. Implementations must return
// vectors of exactly Dimension() entries.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the vector width.
	Dimension() int
}
