package mock

import (
	"context"
	"math"
	"testing"
)

func TestDeterministic(t *testing.T) {
	ctx := context.Background()
	m := New(64)

	a, err := m.Embed(ctx, "coffee in the morning")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := m.Embed(ctx, "coffee in the morning")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at %d: %v vs %v", i, a[i], b[i])
		}
	}

	c, _ := m.Embed(ctx, "tea in the evening")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical embeddings")
	}
}

func TestUnitNorm(t *testing.T) {
	m := New(32)
	vec, err := m.Embed(context.Background(), "normalize me")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 32 {
		t.Fatalf("expected dimension 32, got %d", len(vec))
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-5 {
		t.Errorf("expected unit vector, got norm %f", math.Sqrt(norm))
	}
}

func TestEmbedBatch(t *testing.T) {
	m := New(0)
	if m.Dimension() != DefaultDimension {
		t.Fatalf("expected default dimension, got %d", m.Dimension())
	}

	vecs, err := m.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}

	single, _ := m.Embed(context.Background(), "b")
	for i := range single {
		if vecs[1][i] != single[i] {
			t.Fatal("batch embedding differs from single embedding")
		}
	}
}
