// Package retrieval combines vector similarity with knowledge graph
// signals to select context passages for a query.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"taxray/internal/kg"
	"taxray/internal/logging"
	"taxray/internal/store"
)

// ScoredPassage is a retrieved passage with its blended score.
type ScoredPassage struct {
	Content string
	Source  string
	Score   float64
	// Origin is "vector", "graph", or "vector+graph"
	Origin string
}

// Retriever selects context passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]ScoredPassage, error)
}

// HybridRetriever scores passages by cosine similarity and boosts those
// whose source files mention entities found in the query.
type HybridRetriever struct {
	store        *store.LocalStore
	graphEnabled bool
	graphBoost   float64
}

// Config controls hybrid retrieval.
type Config struct {
	GraphEnabled bool
	// GraphBoost is added to a passage's score when its source is linked
	// to a query entity in the knowledge graph.
	GraphBoost float64
}

// New creates a HybridRetriever.
func New(s *store.LocalStore, cfg Config) *HybridRetriever {
	if cfg.GraphBoost <= 0 {
		cfg.GraphBoost = 0.15
	}
	return &HybridRetriever{
		store:        s,
		graphEnabled: cfg.GraphEnabled,
		graphBoost:   cfg.GraphBoost,
	}
}

// Retrieve returns the topK passages for the query, highest score first.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, topK int) ([]ScoredPassage, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Retrieve")
	defer timer.Stop()

	if topK <= 0 {
		topK = 5
	}

	// overfetch so graph boosting can reorder beyond the final cut
	passages, err := r.store.SemanticRecall(ctx, query, topK*3)
	if err != nil {
		return nil, fmt.Errorf("vector recall failed: %w", err)
	}

	results := make([]ScoredPassage, 0, len(passages))
	for _, p := range passages {
		results = append(results, ScoredPassage{
			Content: p.Content,
			Source:  p.Source,
			Score:   p.Similarity,
			Origin:  "vector",
		})
	}

	if r.graphEnabled {
		boosted := r.applyGraphBoost(query, results)
		logging.Retrieval("Graph boost applied to %d of %d passages", boosted, len(results))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	logging.Retrieval("Retrieved %d passages for query (topK=%d)", len(results), topK)
	return results, nil
}

// applyGraphBoost raises the score of passages whose source file is linked
// to an entity mentioned in the query. Returns how many passages were boosted.
func (r *HybridRetriever) applyGraphBoost(query string, results []ScoredPassage) int {
	entities := kg.Extract(query)
	if len(entities) == 0 {
		return 0
	}

	// collect sources the query entities are mentioned in, keeping the
	// strongest edge weight per source
	linkedSources := make(map[string]float64)
	for _, e := range entities {
		links, err := r.store.QueryLinks(e.Name, "outgoing")
		if err != nil {
			logging.Get(logging.CategoryRetrieval).Warn("Graph lookup failed for %q: %v", e.Name, err)
			continue
		}
		for _, l := range links {
			if l.Relation == "mentioned_in" && l.Weight > linkedSources[l.EntityB] {
				linkedSources[l.EntityB] = l.Weight
			}
		}
	}
	if len(linkedSources) == 0 {
		return 0
	}

	boosted := 0
	for i := range results {
		if weight := linkedSources[results[i].Source]; weight > 0 {
			results[i].Score += r.graphBoost * weight
			results[i].Origin = "vector+graph"
			boosted++
		}
	}
	return boosted
}

// FormatContext renders retrieved passages as a context block for a prompt.
func FormatContext(passages []ScoredPassage) string {
	if len(passages) == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] (%s, score %.3f)\n%s\n\n", i+1, p.Source, p.Score, p.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
