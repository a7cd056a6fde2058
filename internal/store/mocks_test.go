package store

import (
	"context"
	"fmt"
	"hash/fnv"
)

// MockEmbeddingEngine is a deterministic in-memory embedding engine for tests.
// Each distinct text hashes to a distinct direction so identical texts are
// maximally similar and different texts are not.
type MockEmbeddingEngine struct {
	EmbedFunc      func(ctx context.Context, text string) ([]float32, error)
	EmbedBatchFunc func(ctx context.Context, texts []string) ([][]float32, error)
	dims           int
}

func NewMockEmbeddingEngine() *MockEmbeddingEngine {
	return &MockEmbeddingEngine{dims: 8}
}

func (m *MockEmbeddingEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return m.hashEmbed(text), nil
}

func (m *MockEmbeddingEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.EmbedBatchFunc != nil {
		return m.EmbedBatchFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.hashEmbed(t)
	}
	return out, nil
}

func (m *MockEmbeddingEngine) Dimensions() int { return m.dims }
func (m *MockEmbeddingEngine) Name() string    { return "mock" }

func (m *MockEmbeddingEngine) hashEmbed(text string) []float32 {
	vec := make([]float32, m.dims)
	h := fnv.New32a()
	fmt.Fprint(h, text)
	seed := h.Sum32()
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000)/1000.0 - 0.5
	}
	return vec
}
