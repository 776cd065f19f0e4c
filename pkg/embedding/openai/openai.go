// Package openai implements the embedding contract with direct HTTP calls
// to OpenAI's embeddings endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultModel is OpenAI's small embedding model.
	DefaultModel = "text-embedding-3-small"
	// DefaultDimension is the vector width of text-embedding-3-small.
	DefaultDimension = 1536

	defaultEndpoint = "https://api.openai.com/v1/embeddings"
	defaultTimeout  = 30 * time.Second
)

// Config holds configuration for the OpenAI embedder.
type Config struct {
	APIKey    string
	Model     string
	Dimension int
	// Endpoint overrides the API URL, mainly for tests.
	Endpoint string
	// RequestsPerSecond caps the call rate; 0 disables limiting.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Embedder calls the OpenAI embeddings API.
type Embedder struct {
	config  *Config
	client  *http.Client
	limiter *rate.Limiter
}

// New creates an OpenAI embedder from config, filling in defaults.
func New(config *Config) (*Embedder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Dimension <= 0 {
		config.Dimension = DefaultDimension
	}
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}
	return &Embedder{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: limiter,
	}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

// Embed returns the vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds all texts in one API call, returning vectors in input
// order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(embeddingRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: call embeddings api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("openai: api returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	// The API documents index-ordered data, but order explicitly anyway.
	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
		}
		if len(d.Embedding) != e.config.Dimension {
			return nil, fmt.Errorf("openai: expected dimension %d, got %d", e.config.Dimension, len(d.Embedding))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Dimension returns the configured vector width.
func (e *Embedder) Dimension() int {
	return e.config.Dimension
}
