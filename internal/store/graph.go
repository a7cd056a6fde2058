package store

import (
	"encoding/json"
	"fmt"
	"math"

	"taxray/internal/logging"
)

// KnowledgeLink represents a graph edge.
type KnowledgeLink struct {
	EntityA  string
	Relation string
	EntityB  string
	Weight   float64
	Metadata map[string]interface{}
}

func validateLink(entityA, relation, entityB string, weight float64) error {
	if entityA == "" || relation == "" || entityB == "" {
		return fmt.Errorf("invalid knowledge graph link: entityA/relation/entityB must be non-empty")
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return fmt.Errorf("invalid knowledge graph link weight: %v", weight)
	}
	return nil
}

// StoreLink stores a knowledge graph edge, replacing any previous weight.
func (s *LocalStore) StoreLink(entityA, relation, entityB string, weight float64, metadata map[string]interface{}) error {
	timer := logging.StartTimer(logging.CategoryStore, "StoreLink")
	defer timer.Stop()

	if err := validateLink(entityA, relation, entityB, weight); err != nil {
		return err
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge graph metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Storing graph link: %s -[%s]-> %s (weight=%.2f)", entityA, relation, entityB, weight)

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO knowledge_graph (entity_a, relation, entity_b, weight, metadata)
		 VALUES (?, ?, ?, ?, ?)`,
		entityA, relation, entityB, weight, string(metaJSON),
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to store graph link: %v", err)
		return err
	}
	return nil
}

// IncrementLink upserts a graph edge, adding delta to its stored weight so
// repeated observations accumulate into a co-occurrence count.
func (s *LocalStore) IncrementLink(entityA, relation, entityB string, delta float64, metadata map[string]interface{}) error {
	timer := logging.StartTimer(logging.CategoryStore, "IncrementLink")
	defer timer.Stop()

	if err := validateLink(entityA, relation, entityB, delta); err != nil {
		return err
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge graph metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO knowledge_graph (entity_a, relation, entity_b, weight, metadata)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(entity_a, relation, entity_b)
		 DO UPDATE SET weight = weight + excluded.weight, metadata = excluded.metadata`,
		entityA, relation, entityB, delta, string(metaJSON),
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to increment graph link: %v", err)
		return err
	}
	return nil
}

// queryLinksLocked executes the link query assuming the caller holds at least
// s.mu.RLock(). This prevents nested RLock acquisition (TraversePath ->
// QueryLinks) which can deadlock if a writer is pending.
func (s *LocalStore) queryLinksLocked(entity string, direction string) ([]KnowledgeLink, error) {
	var query string
	switch direction {
	case "outgoing":
		query = "SELECT entity_a, relation, entity_b, weight, metadata FROM knowledge_graph WHERE entity_a = ?"
	case "incoming":
		query = "SELECT entity_a, relation, entity_b, weight, metadata FROM knowledge_graph WHERE entity_b = ?"
	default: // both
		query = "SELECT entity_a, relation, entity_b, weight, metadata FROM knowledge_graph WHERE entity_a = ? OR entity_b = ?"
	}

	var args []interface{}
	if direction == "outgoing" || direction == "incoming" {
		args = []interface{}{entity}
	} else {
		args = []interface{}{entity, entity}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Graph query failed for entity=%q: %v", entity, err)
		return nil, err
	}
	defer rows.Close()

	var links []KnowledgeLink
	for rows.Next() {
		var link KnowledgeLink
		var metaJSON string
		if err := rows.Scan(&link.EntityA, &link.Relation, &link.EntityB, &link.Weight, &metaJSON); err != nil {
			logging.Get(logging.CategoryStore).Warn("Graph row scan failed: %v", err)
			continue
		}
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &link.Metadata); err != nil {
				logging.Get(logging.CategoryStore).Warn("Graph metadata unmarshal failed for %q -[%s]-> %q: %v",
					link.EntityA, link.Relation, link.EntityB, err)
			}
		}
		links = append(links, link)
	}
	return links, nil
}

// QueryLinks retrieves links for an entity. Direction is "outgoing",
// "incoming", or "both".
func (s *LocalStore) QueryLinks(entity string, direction string) ([]KnowledgeLink, error) {
	timer := logging.StartTimer(logging.CategoryStore, "QueryLinks")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLinksLocked(entity, direction)
}

// TraversePath finds a path between two entities using BFS.
func (s *LocalStore) TraversePath(from, to string, maxDepth int) ([]KnowledgeLink, error) {
	timer := logging.StartTimer(logging.CategoryStore, "TraversePath")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if maxDepth <= 0 {
		maxDepth = 5
	}

	type queueItem struct {
		entity string
		depth  int
	}

	// cameFrom maps a node to the link that reached it; nil marks the start.
	cameFrom := make(map[string]*KnowledgeLink)
	queue := []queueItem{{entity: from, depth: 0}}
	cameFrom[from] = nil

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.entity == to {
			path := make([]KnowledgeLink, current.depth)
			curr := to
			for i := current.depth - 1; i >= 0; i-- {
				link := cameFrom[curr]
				if link == nil {
					break
				}
				path[i] = *link
				curr = link.EntityA
			}
			logging.StoreDebug("Path found with %d hops, visited %d nodes", len(path), len(cameFrom))
			return path, nil
		}

		if current.depth >= maxDepth {
			continue
		}

		// Avoid QueryLinks here: TraversePath already holds RLock, and
		// re-acquiring RLock can deadlock when a writer is waiting.
		links, err := s.queryLinksLocked(current.entity, "outgoing")
		if err != nil {
			continue
		}

		for _, link := range links {
			if _, visited := cameFrom[link.EntityB]; !visited {
				l := link
				cameFrom[link.EntityB] = &l
				queue = append(queue, queueItem{entity: link.EntityB, depth: current.depth + 1})
			}
		}
	}

	return nil, fmt.Errorf("no path found from %s to %s", from, to)
}

// Entities returns all distinct entity names in the graph.
func (s *LocalStore) Entities() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT entity_a FROM knowledge_graph UNION SELECT entity_b FROM knowledge_graph ORDER BY 1",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			continue
		}
		entities = append(entities, e)
	}
	return entities, nil
}
