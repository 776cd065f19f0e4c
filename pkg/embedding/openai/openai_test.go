package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedBatch(t *testing.T) {
	var gotAuth string
	var gotReq embeddingRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		// Return out of order to exercise index-based reassembly.
		json.NewEncoder(w).Encode(embeddingResponse{Data: []embeddingData{
			{Index: 1, Embedding: []float32{0, 1}},
			{Index: 0, Embedding: []float32{1, 0}},
		}})
	})

	e, err := New(&Config{APIKey: "test-key", Dimension: 2, Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	vectors, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotReq.Model != DefaultModel {
		t.Errorf("expected default model, got %q", gotReq.Model)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Errorf("vectors not reassembled in input order: %v", vectors)
	}
}

func TestEmbedSingle(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{Data: []embeddingData{
			{Index: 0, Embedding: []float32{0.5, 0.5}},
		}})
	})

	e, err := New(&Config{APIKey: "test-key", Dimension: 2, Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("expected dimension 2, got %d", len(vec))
	}
}

func TestAPIErrorSurfaced(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	})

	e, err := New(&Config{APIKey: "test-key", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error from non-200 response")
	}
}

func TestDimensionValidation(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{Data: []embeddingData{
			{Index: 0, Embedding: []float32{1, 2, 3}},
		}})
	})

	e, err := New(&Config{APIKey: "test-key", Dimension: 2, Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for wrong-width embedding")
	}
}

func TestMissingAPIKey(t *testing.T) {
	if _, err := New(&Config{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
