// Package local provides an in-process vector index using a simple
// brute-force approach with cosine similarity. For workloads with 100K+
// vectors per user, this can be replaced with the chromem backend.
package local

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/temporalmem/temporalmem/pkg/memory"
)

type entry struct {
	vector  []float32
	payload map[string]string
}

// Index implements memory.VectorIndex. Entries are partitioned by the
// user_id payload field so every search stays scoped to one user.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]*entry // record ID -> entry
}

// New creates an empty index with the given dimension.
func New(dimension int) *Index {
	return &Index{
		dimension: dimension,
		entries:   make(map[string]*entry),
	}
}

// Upsert adds or replaces a vector and its payload.
func (x *Index) Upsert(ctx context.Context, id string, vector []float32, payload map[string]string) error {
	if len(vector) != x.dimension {
		return fmt.Errorf("%w: expected %d, got %d", memory.ErrDimensionMismatch, x.dimension, len(vector))
	}
	stored := make(map[string]string, len(payload))
	for k, v := range payload {
		stored[k] = v
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries[id] = &entry{vector: vector, payload: stored}
	return nil
}

// Delete removes a vector from the index. Deleting an unknown id is a
// no-op.
func (x *Index) Delete(ctx context.Context, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.entries, id)
	return nil
}

// Search finds the top-K most similar vectors for the user. Filters match
// payload fields exactly; an empty filter map matches everything.
func (x *Index) Search(ctx context.Context, userID string, vector []float32, limit int, filters map[string]string) ([]memory.Match, error) {
	if len(vector) != x.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", memory.ErrDimensionMismatch, x.dimension, len(vector))
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var results []memory.Match
	for id, e := range x.entries {
		if e.payload["user_id"] != userID {
			continue
		}
		if !matchesFilters(e.payload, filters) {
			continue
		}
		results = append(results, memory.Match{ID: id, Score: cosineSimilarity(vector, e.vector)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// Close is a no-op for the in-process index.
func (x *Index) Close() error {
	return nil
}

// Len returns the number of vectors in the index.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

func matchesFilters(payload, filters map[string]string) bool {
	for k, want := range filters {
		if payload[k] != want {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Save persists the index to a file.
// Format: [dimension:uint32][count:uint32] then for each entry:
// [idLen:uint16][id:bytes][payloadCount:uint16]
// ([keyLen:uint16][key:bytes][valLen:uint16][val:bytes])* [vector:float32*dim]
func (x *Index) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("vector: save failed: %w", err)
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, uint32(x.dimension)); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(x.entries))); err != nil {
		return err
	}

	for id, e := range x.entries {
		if err := writeString(f, id); err != nil {
			return err
		}
		if err := binary.Write(f, binary.LittleEndian, uint16(len(e.payload))); err != nil {
			return err
		}
		keys := make([]string, 0, len(e.payload))
		for k := range e.payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := writeString(f, k); err != nil {
				return err
			}
			if err := writeString(f, e.payload[k]); err != nil {
				return err
			}
		}
		if err := binary.Write(f, binary.LittleEndian, e.vector); err != nil {
			return err
		}
	}
	return nil
}

// Load restores the index from a file, replacing its contents.
func (x *Index) Load(path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("vector: load failed: %w", err)
	}
	defer f.Close()

	var dim, count uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return err
	}
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return err
	}
	if int(dim) != x.dimension {
		return fmt.Errorf("%w: file has %d, index expects %d", memory.ErrDimensionMismatch, dim, x.dimension)
	}

	entries := make(map[string]*entry, count)
	for i := uint32(0); i < count; i++ {
		id, err := readString(f)
		if err != nil {
			return err
		}
		var payloadCount uint16
		if err := binary.Read(f, binary.LittleEndian, &payloadCount); err != nil {
			return err
		}
		payload := make(map[string]string, payloadCount)
		for j := uint16(0); j < payloadCount; j++ {
			k, err := readString(f)
			if err != nil {
				return err
			}
			v, err := readString(f)
			if err != nil {
				return err
			}
			payload[k] = v
		}
		vec := make([]float32, dim)
		if err := binary.Read(f, binary.LittleEndian, vec); err != nil {
			return err
		}
		entries[id] = &entry{vector: vec, payload: payload}
	}

	x.entries = entries
	return nil
}

func writeString(f *os.File, s string) error {
	if err := binary.Write(f, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := f.Write([]byte(s))
	return err
}

func readString(f *os.File) (string, error) {
	var n uint16
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
