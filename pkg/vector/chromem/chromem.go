// Package chromem provides a vector index backed by chromem-go, a pure Go
// embedded vector database with optional on-disk persistence.
package chromem

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/temporalmem/temporalmem/pkg/memory"
)

// Config holds configuration for the chromem index.
type Config struct {
	// Path enables on-disk persistence when non-empty.
	Path string
	// Compress gzip-compresses persisted collections.
	Compress bool
	Dimension int
}

// Index implements memory.VectorIndex on chromem-go. Each user gets their
// own collection for namespace isolation.
type Index struct {
	db          *chromemgo.DB
	config      *Config
	mu          sync.RWMutex
	collections map[string]*chromemgo.Collection
}

// New creates a chromem-backed index, persistent when config.Path is set.
func New(config *Config) (*Index, error) {
	var db *chromemgo.DB
	var err error
	if config.Path != "" {
		db, err = chromemgo.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("chromem: open persistent db: %w", err)
		}
	} else {
		db = chromemgo.NewDB()
	}
	return &Index{
		db:          db,
		config:      config,
		collections: make(map[string]*chromemgo.Collection),
	}, nil
}

func collectionName(userID string) string {
	if userID == "" {
		return "global"
	}
	return "user_" + userID
}

func (x *Index) collection(userID string) (*chromemgo.Collection, error) {
	name := collectionName(userID)

	x.mu.RLock()
	col, ok := x.collections[name]
	x.mu.RUnlock()
	if ok {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if col, ok := x.collections[name]; ok {
		return col, nil
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := x.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection %s: %w", name, err)
	}
	x.collections[name] = col
	return col, nil
}

// Upsert adds or replaces a vector with its payload as document metadata.
// The payload must carry user_id so the entry lands in the right
// collection.
func (x *Index) Upsert(ctx context.Context, id string, vector []float32, payload map[string]string) error {
	if x.config.Dimension > 0 && len(vector) != x.config.Dimension {
		return fmt.Errorf("%w: expected %d, got %d", memory.ErrDimensionMismatch, x.config.Dimension, len(vector))
	}
	col, err := x.collection(payload["user_id"])
	if err != nil {
		return err
	}

	doc := chromemgo.Document{
		ID:        id,
		Content:   id,
		Embedding: vector,
		Metadata:  payload,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem: add document: %w", err)
	}
	return nil
}

// Delete removes an entry by id. chromem scopes deletes per collection, so
// every known collection is tried; unknown ids are a no-op.
func (x *Index) Delete(ctx context.Context, id string) error {
	x.mu.RLock()
	cols := make([]*chromemgo.Collection, 0, len(x.collections))
	for _, col := range x.collections {
		cols = append(cols, col)
	}
	x.mu.RUnlock()

	for _, col := range cols {
		if err := col.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("chromem: delete %s: %w", id, err)
		}
	}
	return nil
}

// Search queries the user's collection. Filters match document metadata
// exactly.
func (x *Index) Search(ctx context.Context, userID string, vector []float32, limit int, filters map[string]string) ([]memory.Match, error) {
	if x.config.Dimension > 0 && len(vector) != x.config.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", memory.ErrDimensionMismatch, x.config.Dimension, len(vector))
	}
	col, err := x.collection(userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	// chromem requires nResults <= collection size, so back off until the
	// query fits.
	var results []chromemgo.Result
	for n := limit; n >= 1; n-- {
		results, err = col.QueryEmbedding(ctx, vector, n, filters, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if n == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	matches := make([]memory.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, memory.Match{ID: r.ID, Score: float64(r.Similarity)})
	}
	return matches, nil
}

// Close is a no-op; persistent collections are flushed on every write.
func (x *Index) Close() error {
	return nil
}

func isInsufficientDocsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be <=") ||
		strings.Contains(msg, "fewer than requested")
}
