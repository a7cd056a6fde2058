package store

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"taxray/internal/logging"
)

var vecDimPattern = regexp.MustCompile(`float\[(\d+)\]`)

// loadVecDim reads the dimension of an existing vec_passages table so a
// reopened store keeps indexing into it.
func (s *LocalStore) loadVecDim() {
	var ddl string
	if err := s.db.QueryRow("SELECT sql FROM sqlite_master WHERE name = 'vec_passages'").Scan(&ddl); err != nil {
		return
	}
	if m := vecDimPattern.FindStringSubmatch(ddl); m != nil {
		s.vecDim, _ = strconv.Atoi(m[1])
	}
}

// ensureVecTableLocked creates the vec0 index for the given embedding
// dimension. A dimension change (new embedding model) drops and recreates
// the index; ReembedAll repopulates it. Caller holds the write lock.
func (s *LocalStore) ensureVecTableLocked(dim int) error {
	if s.vecDim == dim {
		return nil
	}
	if s.vecDim != 0 {
		logging.Store("Embedding dimension changed %d -> %d, rebuilding vector index", s.vecDim, dim)
		if _, err := s.db.Exec("DROP TABLE IF EXISTS vec_passages"); err != nil {
			return fmt.Errorf("failed to drop vector index: %w", err)
		}
	}
	ddl := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS vec_passages USING vec0(embedding float[%d] distance_metric=cosine)", dim,
	)
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	s.vecDim = dim
	return nil
}

// indexPassageLocked mirrors a passage embedding into the vec0 index, keyed
// by the passages rowid. sqlite-vec accepts the JSON array form directly.
// Caller holds the write lock.
func (s *LocalStore) indexPassageLocked(id int64, embeddingJSON string, dim int) error {
	if err := s.ensureVecTableLocked(dim); err != nil {
		return err
	}
	if _, err := s.db.Exec("DELETE FROM vec_passages WHERE rowid = ?", id); err != nil {
		return err
	}
	_, err := s.db.Exec("INSERT INTO vec_passages (rowid, embedding) VALUES (?, ?)", id, embeddingJSON)
	return err
}

// vecRecallLocked runs a KNN query against the vec0 index. Caller holds at
// least a read lock.
func (s *LocalStore) vecRecallLocked(queryEmbedding []float32, limit int) ([]Passage, error) {
	if s.vecDim == 0 || len(queryEmbedding) != s.vecDim {
		return nil, fmt.Errorf("vector index dimension mismatch: index %d, query %d", s.vecDim, len(queryEmbedding))
	}
	encoded, err := json.Marshal(queryEmbedding)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT p.id, p.source, p.chunk_index, p.content, p.metadata, p.created_at, v.distance
		FROM vec_passages v
		JOIN passages p ON p.id = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`,
		string(encoded), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Passage
	for rows.Next() {
		var p Passage
		var metaJSON string
		var distance float64
		if err := rows.Scan(&p.ID, &p.Source, &p.ChunkIndex, &p.Content, &metaJSON, &p.CreatedAt, &distance); err != nil {
			continue
		}
		// cosine distance is 1 - cosine similarity
		p.Similarity = 1 - distance
		if metaJSON != "" {
			json.Unmarshal([]byte(metaJSON), &p.Metadata)
		}
		results = append(results, p)
	}
	return results, rows.Err()
}
