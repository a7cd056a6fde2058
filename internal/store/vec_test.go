//go:build sqlite_vec && cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
)

// fixedVectors maps passage text to a known embedding so KNN ordering is
// predictable.
func fixedVectors() map[string][]float32 {
	return map[string][]float32{
		"standard deduction amounts": {0.9, 0.1, 0.0, 0.0},
		"estimated tax penalties":    {0.0, 1.0, 0.0, 0.0},
		"capital gains rates":        {0.0, 0.0, 1.0, 0.0},
		"deduction":                  {1.0, 0.0, 0.0, 0.0},
	}
}

func newVecStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "vec.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if !s.HasVectorExt() {
		t.Fatal("sqlite-vec extension not detected under sqlite_vec build tag")
	}

	engine := NewMockEmbeddingEngine()
	engine.EmbedFunc = func(ctx context.Context, text string) ([]float32, error) {
		return fixedVectors()[text], nil
	}
	s.SetEmbeddingEngine(engine)
	return s
}

func TestSemanticRecall_UsesVectorIndex(t *testing.T) {
	s := newVecStore(t)
	ctx := context.Background()

	for i, text := range []string{"standard deduction amounts", "estimated tax penalties", "capital gains rates"} {
		if err := s.StorePassage(ctx, "pub17.txt", i, text, nil); err != nil {
			t.Fatalf("StorePassage: %v", err)
		}
	}
	if s.vecDim != 4 {
		t.Fatalf("vecDim = %d, want 4", s.vecDim)
	}

	results, err := s.SemanticRecall(ctx, "deduction", 2)
	if err != nil {
		t.Fatalf("SemanticRecall: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Content != "standard deduction amounts" {
		t.Errorf("nearest passage = %q, want the deduction passage", results[0].Content)
	}
	if results[0].Similarity <= results[1].Similarity {
		t.Errorf("results not ordered by similarity: %f then %f", results[0].Similarity, results[1].Similarity)
	}
}

func TestDeleteSource_ClearsVectorIndex(t *testing.T) {
	s := newVecStore(t)
	ctx := context.Background()

	if err := s.StorePassage(ctx, "pub17.txt", 0, "standard deduction amounts", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.StorePassage(ctx, "pub505.txt", 0, "estimated tax penalties", nil); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteSource("pub17.txt"); err != nil {
		t.Fatalf("DeleteSource: %v", err)
	}

	var indexed int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM vec_passages").Scan(&indexed); err != nil {
		t.Fatal(err)
	}
	if indexed != 1 {
		t.Errorf("vector index has %d rows after delete, want 1", indexed)
	}
}
