package local

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/temporalmem/temporalmem/pkg/memory"
)

func payload(userID, status, slot string) map[string]string {
	return map[string]string{
		"user_id": userID,
		"status":  status,
		"slot":    slot,
	}
}

func TestUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := New(3)

	if err := idx.Upsert(ctx, "a", []float32{1, 0, 0}, payload("user-1", "active", "job")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := idx.Upsert(ctx, "b", []float32{0.9, 0.1, 0}, payload("user-1", "active", "city")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := idx.Upsert(ctx, "c", []float32{0, 1, 0}, payload("user-1", "active", "")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	matches, err := idx.Search(ctx, "user-1", []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "a" || matches[1].ID != "b" {
		t.Errorf("expected [a b], got [%s %s]", matches[0].ID, matches[1].ID)
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("results not sorted by score: %v", matches)
	}
}

func TestSearchScopedToUser(t *testing.T) {
	ctx := context.Background()
	idx := New(3)

	idx.Upsert(ctx, "mine", []float32{1, 0, 0}, payload("user-1", "active", ""))
	idx.Upsert(ctx, "theirs", []float32{1, 0, 0}, payload("user-2", "active", ""))

	matches, err := idx.Search(ctx, "user-1", []float32{1, 0, 0}, 10, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "mine" {
		t.Errorf("expected only user-1 entries, got %v", matches)
	}
}

func TestSearchPayloadFilters(t *testing.T) {
	ctx := context.Background()
	idx := New(3)

	idx.Upsert(ctx, "a", []float32{1, 0, 0}, payload("user-1", "active", "job"))
	idx.Upsert(ctx, "b", []float32{1, 0, 0}, payload("user-1", "archived", "job"))

	matches, err := idx.Search(ctx, "user-1", []float32{1, 0, 0}, 10, map[string]string{"status": "active"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "a" {
		t.Errorf("expected [a], got %v", matches)
	}
}

func TestDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := New(3)

	err := idx.Upsert(ctx, "a", []float32{1, 0}, payload("user-1", "active", ""))
	if !errors.Is(err, memory.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch on upsert, got %v", err)
	}
	_, err = idx.Search(ctx, "user-1", []float32{1, 0}, 10, nil)
	if !errors.Is(err, memory.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch on search, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	idx := New(3)

	idx.Upsert(ctx, "a", []float32{1, 0, 0}, payload("user-1", "active", ""))
	if err := idx.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := idx.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete of missing id should be a no-op: %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("expected empty index, got %d entries", idx.Len())
	}
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.bin")

	idx := New(3)
	idx.Upsert(ctx, "a", []float32{1, 0, 0}, payload("user-1", "active", "job"))
	idx.Upsert(ctx, "b", []float32{0, 1, 0}, payload("user-1", "active", ""))
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored := New(3)
	if err := restored.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if restored.Len() != 2 {
		t.Fatalf("expected 2 entries after load, got %d", restored.Len())
	}

	matches, err := restored.Search(ctx, "user-1", []float32{1, 0, 0}, 1, map[string]string{"slot": "job"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "a" {
		t.Errorf("expected [a] after reload, got %v", matches)
	}

	wrongDim := New(4)
	if err := wrongDim.Load(path); !errors.Is(err, memory.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch on load, got %v", err)
	}
}
