package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const localDefaultDimension = 256

// LocalProvider is a deterministic, in-process embedder. It hashes word
// and bigram features into a fixed-size vector and L2-normalizes it, so
// similar texts land near each other without any model or network. Good
// enough for lore retrieval when no embedding API is configured.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a LocalProvider from the given Config.
func NewLocalProvider(cfg Config) *LocalProvider {
	dim := cfg.Dimension
	if dim <= 0 {
		dim = localDefaultDimension
	}
	return &LocalProvider{dimension: dim}
}

// Embed returns one vector per input text.
func (p *LocalProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = p.embedOne(text)
	}
	return vectors, nil
}

func (p *LocalProvider) embedOne(text string) []float32 {
	vec := make([]float32, p.dimension)
	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		addFeature(vec, w, 1.0)
		if i+1 < len(words) {
			addFeature(vec, w+" "+words[i+1], 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

func addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(len(vec)))
	// Low bit picks the sign so hash collisions tend to cancel rather
	// than pile up.
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// Dimension returns the embedding vector dimension.
func (p *LocalProvider) Dimension() int {
	return p.dimension
}
