package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"taxray/internal/embedding"
	"taxray/internal/logging"
)

// Passage is a stored document chunk.
type Passage struct {
	ID         int64
	Source     string
	ChunkIndex int
	Content    string
	Metadata   map[string]interface{}
	CreatedAt  time.Time
	Similarity float64 // cosine similarity from semantic recall
}

// StorePassage stores a document chunk, embedding it when an engine is set.
// Re-ingesting the same (source, chunk_index) replaces the previous row.
func (s *LocalStore) StorePassage(ctx context.Context, source string, chunkIndex int, content string, metadata map[string]interface{}) error {
	timer := logging.StartTimer(logging.CategoryStore, "StorePassage")
	defer timer.Stop()

	if content == "" {
		return fmt.Errorf("cannot store empty passage for %s[%d]", source, chunkIndex)
	}

	// embed outside the write lock so parallel ingestion workers overlap
	// their embedding calls; only the INSERT needs exclusive access
	s.mu.RLock()
	engine := s.embeddingEngine
	s.mu.RUnlock()

	var embeddingJSON interface{}
	embedDim := 0
	if engine != nil {
		vec, err := engine.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("failed to generate embedding for %s[%d]: %w", source, chunkIndex, err)
		}
		encoded, err := json.Marshal(vec)
		if err != nil {
			return fmt.Errorf("failed to serialize embedding: %w", err)
		}
		embeddingJSON = string(encoded)
		embedDim = len(vec)
	}

	metaJSON, _ := json.Marshal(metadata)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT OR REPLACE INTO passages (source, chunk_index, content, embedding, metadata)
		 VALUES (?, ?, ?, ?, ?)`,
		source, chunkIndex, content, embeddingJSON, string(metaJSON),
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to store passage %s[%d]: %v", source, chunkIndex, err)
		return err
	}

	if s.vectorExt && embedDim > 0 {
		if id, idErr := res.LastInsertId(); idErr == nil {
			if err := s.indexPassageLocked(id, embeddingJSON.(string), embedDim); err != nil {
				logging.StoreDebug("Failed to index passage %s[%d] in vector index: %v", source, chunkIndex, err)
			}
		}
	}

	logging.StoreDebug("Stored passage %s[%d] (%d bytes)", source, chunkIndex, len(content))
	return nil
}

// SemanticRecall returns the passages most similar to the query. With an
// embedding engine it scans stored embeddings with cosine similarity;
// without one it falls back to keyword search.
func (s *LocalStore) SemanticRecall(ctx context.Context, query string, limit int) ([]Passage, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SemanticRecall")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	if s.embeddingEngine == nil {
		return s.keywordRecallLocked(query, limit)
	}

	queryEmbedding, err := s.embeddingEngine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	if s.vectorExt {
		results, vecErr := s.vecRecallLocked(queryEmbedding, limit)
		if vecErr == nil && len(results) > 0 {
			logging.StoreDebug("Vector index recall returned %d passages for %q", len(results), query)
			return results, nil
		}
		if vecErr != nil {
			logging.StoreDebug("Vector index recall failed, falling back to cosine scan: %v", vecErr)
		}
	}

	rows, err := s.db.Query(
		"SELECT id, source, chunk_index, content, embedding, metadata, created_at FROM passages WHERE embedding IS NOT NULL",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []Passage
	for rows.Next() {
		var p Passage
		var embeddingJSON, metaJSON string
		if err := rows.Scan(&p.ID, &p.Source, &p.ChunkIndex, &p.Content, &embeddingJSON, &metaJSON, &p.CreatedAt); err != nil {
			continue
		}

		var vec []float32
		if err := json.Unmarshal([]byte(embeddingJSON), &vec); err != nil {
			continue
		}
		similarity, err := embedding.CosineSimilarity(queryEmbedding, vec)
		if err != nil {
			continue
		}
		p.Similarity = similarity

		if metaJSON != "" {
			json.Unmarshal([]byte(metaJSON), &p.Metadata)
		}
		candidates = append(candidates, p)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	logging.StoreDebug("Semantic recall returned %d passages for %q", len(candidates), query)
	return candidates, nil
}

// KeywordRecall searches passage content by keyword match.
func (s *LocalStore) KeywordRecall(query string, limit int) ([]Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}
	return s.keywordRecallLocked(query, limit)
}

func (s *LocalStore) keywordRecallLocked(query string, limit int) ([]Passage, error) {
	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []interface{}
	for _, kw := range keywords {
		conditions = append(conditions, "LOWER(content) LIKE ?")
		args = append(args, "%"+kw+"%")
	}

	sqlQuery := fmt.Sprintf(
		"SELECT id, source, chunk_index, content, metadata, created_at FROM passages WHERE %s ORDER BY created_at DESC LIMIT ?",
		strings.Join(conditions, " OR "),
	)
	args = append(args, limit)

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Keyword recall query failed: %v", err)
		return nil, err
	}
	defer rows.Close()

	var results []Passage
	for rows.Next() {
		var p Passage
		var metaJSON string
		if err := rows.Scan(&p.ID, &p.Source, &p.ChunkIndex, &p.Content, &metaJSON, &p.CreatedAt); err != nil {
			continue
		}
		if metaJSON != "" {
			json.Unmarshal([]byte(metaJSON), &p.Metadata)
		}
		results = append(results, p)
	}

	logging.StoreDebug("Keyword recall returned %d passages", len(results))
	return results, nil
}

// PassagesBySource returns all chunks stored for a source file, in order.
func (s *LocalStore) PassagesBySource(source string) ([]Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, source, chunk_index, content, metadata, created_at FROM passages WHERE source = ? ORDER BY chunk_index",
		source,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Passage
	for rows.Next() {
		var p Passage
		var metaJSON string
		if err := rows.Scan(&p.ID, &p.Source, &p.ChunkIndex, &p.Content, &metaJSON, &p.CreatedAt); err != nil {
			continue
		}
		if metaJSON != "" {
			json.Unmarshal([]byte(metaJSON), &p.Metadata)
		}
		results = append(results, p)
	}
	return results, nil
}

// DeleteSource removes all passages for a source file.
func (s *LocalStore) DeleteSource(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vectorExt && s.vecDim != 0 {
		if _, err := s.db.Exec(
			"DELETE FROM vec_passages WHERE rowid IN (SELECT id FROM passages WHERE source = ?)", source,
		); err != nil {
			logging.StoreDebug("Failed to clear vector index rows for %s: %v", source, err)
		}
	}

	res, err := s.db.Exec("DELETE FROM passages WHERE source = ?", source)
	if err != nil {
		return fmt.Errorf("failed to delete passages for %s: %w", source, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		logging.StoreDebug("Deleted %d passages for source %s", n, source)
	}
	return nil
}

// ReembedAll regenerates embeddings for passages that are missing them.
// Useful after switching from keyword-only storage to an embedding engine.
func (s *LocalStore) ReembedAll(ctx context.Context) (int, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ReembedAll")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embeddingEngine == nil {
		return 0, fmt.Errorf("no embedding engine configured")
	}

	rows, err := s.db.Query("SELECT id, content FROM passages WHERE embedding IS NULL")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	type pending struct {
		id      int64
		content string
	}
	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.content); err != nil {
			continue
		}
		todo = append(todo, p)
	}
	if len(todo) == 0 {
		return 0, nil
	}

	const batchSize = 32
	updated := 0
	for i := 0; i < len(todo); i += batchSize {
		end := i + batchSize
		if end > len(todo) {
			end = len(todo)
		}
		batch := todo[i:end]

		texts := make([]string, len(batch))
		for j, p := range batch {
			texts[j] = p.content
		}
		embeddings, err := s.embeddingEngine.EmbedBatch(ctx, texts)
		if err != nil {
			return updated, fmt.Errorf("failed to generate batch embeddings: %w", err)
		}

		for j, p := range batch {
			encoded, _ := json.Marshal(embeddings[j])
			if _, err := s.db.Exec("UPDATE passages SET embedding = ? WHERE id = ?", string(encoded), p.id); err != nil {
				return updated, fmt.Errorf("failed to update passage %d: %w", p.id, err)
			}
			if s.vectorExt {
				if err := s.indexPassageLocked(p.id, string(encoded), len(embeddings[j])); err != nil {
					logging.StoreDebug("Failed to index passage %d in vector index: %v", p.id, err)
				}
			}
			updated++
		}
	}

	logging.Store("ReembedAll updated %d passages", updated)
	return updated, nil
}
