// Package store persists passages and the knowledge graph in SQLite.
// Passages carry optional vector embeddings for semantic recall; the
// knowledge_graph table holds entity links extracted from documents.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"taxray/internal/embedding"
	"taxray/internal/logging"
)

// LocalStore is the SQLite-backed passage and graph store.
type LocalStore struct {
	db              *sql.DB
	mu              sync.RWMutex
	dbPath          string
	embeddingEngine embedding.Engine // optional; keyword fallback when nil
	vectorExt       bool             // sqlite-vec available
	vecDim          int              // dimension of the vec_passages index, 0 until created
}

// NewLocalStore initializes the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("Initializing LocalStore at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// NORMAL is safe with WAL and much faster than the default FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	store := &LocalStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	store.detectVecExtension()
	if store.vectorExt {
		store.loadVecDim()
		logging.Store("sqlite-vec extension detected and enabled")
	} else {
		logging.StoreDebug("sqlite-vec extension not available; using in-process cosine scan")
	}

	logging.Store("LocalStore initialization complete")
	return store, nil
}

// initialize creates the required tables.
func (s *LocalStore) initialize() error {
	passagesTable := `
	CREATE TABLE IF NOT EXISTS passages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		chunk_index INTEGER NOT NULL DEFAULT 0,
		content TEXT NOT NULL,
		embedding TEXT,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source, chunk_index)
	);
	CREATE INDEX IF NOT EXISTS idx_passages_source ON passages(source);
	`

	graphTable := `
	CREATE TABLE IF NOT EXISTS knowledge_graph (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_a TEXT NOT NULL,
		relation TEXT NOT NULL,
		entity_b TEXT NOT NULL,
		weight REAL DEFAULT 1.0,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(entity_a, relation, entity_b)
	);
	CREATE INDEX IF NOT EXISTS idx_kg_entity_a ON knowledge_graph(entity_a);
	CREATE INDEX IF NOT EXISTS idx_kg_entity_b ON knowledge_graph(entity_b);
	CREATE INDEX IF NOT EXISTS idx_kg_relation ON knowledge_graph(relation);
	`

	for _, table := range []string{passagesTable, graphTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// detectVecExtension attempts to create a vec0 virtual table to see if
// sqlite-vec is available.
func (s *LocalStore) detectVecExtension() {
	if s.db == nil {
		return
	}
	if _, err := s.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err == nil {
		s.vectorExt = true
		_, _ = s.db.Exec("DROP TABLE IF EXISTS vec_probe")
		return
	}
	s.vectorExt = false
}

// SetEmbeddingEngine configures the embedding engine for this store.
// Without one, StorePassage stores content keyword-only and SemanticRecall
// falls back to keyword search.
func (s *LocalStore) SetEmbeddingEngine(engine embedding.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddingEngine = engine
}

// HasVectorExt reports whether sqlite-vec was detected.
func (s *LocalStore) HasVectorExt() bool {
	return s.vectorExt
}

// Close closes the database connection.
func (s *LocalStore) Close() error {
	logging.Store("Closing LocalStore database connection")
	return s.db.Close()
}

// Reset deletes all passages and knowledge graph entries.
func (s *LocalStore) Reset() error {
	timer := logging.StartTimer(logging.CategoryStore, "Reset")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	logging.Store("Resetting store: clearing passages and knowledge graph")
	for _, table := range []string{"passages", "knowledge_graph"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if s.vecDim != 0 {
		if _, err := s.db.Exec("DROP TABLE IF EXISTS vec_passages"); err != nil {
			logging.StoreDebug("Failed to drop vector index during reset: %v", err)
		}
		s.vecDim = 0
	}
	if _, err := s.db.Exec("VACUUM"); err != nil {
		logging.StoreDebug("VACUUM after reset failed: %v", err)
	}
	return nil
}

// Stats returns row counts and embedding coverage.
func (s *LocalStore) Stats() (map[string]interface{}, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Stats")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]interface{})

	var totalPassages, withEmbeddings, graphLinks int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM passages").Scan(&totalPassages); err != nil {
		return nil, err
	}
	s.db.QueryRow("SELECT COUNT(*) FROM passages WHERE embedding IS NOT NULL").Scan(&withEmbeddings)
	s.db.QueryRow("SELECT COUNT(*) FROM knowledge_graph").Scan(&graphLinks)

	stats["passages"] = totalPassages
	stats["with_embeddings"] = withEmbeddings
	stats["graph_links"] = graphLinks

	var sources int64
	s.db.QueryRow("SELECT COUNT(DISTINCT source) FROM passages").Scan(&sources)
	stats["sources"] = sources

	if s.embeddingEngine != nil {
		stats["embedding_engine"] = s.embeddingEngine.Name()
	} else {
		stats["embedding_engine"] = "none (keyword search)"
	}
	stats["vector_ext"] = s.vectorExt

	return stats, nil
}
