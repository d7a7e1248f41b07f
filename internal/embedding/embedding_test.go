package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIProviderEmbed(t *testing.T) {
	// Mock OpenAI-compatible embedding server.
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		resp := apiResponse{
			Data: []apiEmbeddingData{
				{Embedding: []float32{0.1, 0.2, 0.3}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewAPIProvider(Config{
		Endpoint: srv.URL,
		Model:    "test-model",
	})

	vectors, err := p.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("got %d vectors, want 1", len(vectors))
	}
	if len(vectors[0]) != 3 {
		t.Fatalf("got dimension %d, want 3", len(vectors[0]))
	}
	if p.Dimension() != 3 {
		t.Errorf("got dimension %d, want 3", p.Dimension())
	}
}

func TestAPIProviderEmbed_Empty(t *testing.T) {
	p := NewAPIProvider(Config{
		Endpoint:  "http://unused",
		Model:     "test-model",
		Dimension: 128,
	})

	vectors, err := p.Embed(context.Background(), []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil for empty input, got %v", vectors)
	}
}

func TestAPIProviderDimension_Fallback(t *testing.T) {
	p := NewAPIProvider(Config{
		Endpoint:  "http://unused",
		Model:     "test-model",
		Dimension: 256,
	})

	// Before any Embed call, Dimension should return the configured default.
	if d := p.Dimension(); d != 256 {
		t.Errorf("got dimension %d, want configured default 256", d)
	}
}

func TestLocalProviderDeterministic(t *testing.T) {
	p := NewLocalProvider(Config{Dimension: 64})

	a, err := p.Embed(context.Background(), []string{"the brahmin caravan left at dawn"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := p.Embed(context.Background(), []string{"the brahmin caravan left at dawn"})
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatal("same text produced different vectors")
		}
	}
}

func TestLocalProviderNormalized(t *testing.T) {
	p := NewLocalProvider(Config{})

	vecs, err := p.Embed(context.Background(), []string{"rust and radiation"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs[0]) != localDefaultDimension {
		t.Fatalf("got dimension %d, want %d", len(vecs[0]), localDefaultDimension)
	}
	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("vector norm %f, want 1.0", norm)
	}
}

func TestLocalProviderSimilarityOrdering(t *testing.T) {
	p := NewLocalProvider(Config{Dimension: 128})

	vecs, err := p.Embed(context.Background(), []string{
		"the scrap barons control the iron market",
		"the scrap barons run the iron market",
		"rain fell on the empty highway",
	})
	if err != nil {
		t.Fatal(err)
	}
	near := dot(vecs[0], vecs[1])
	far := dot(vecs[0], vecs[2])
	if near <= far {
		t.Errorf("similar texts scored %f, unrelated %f", near, far)
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
