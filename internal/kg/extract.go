// Package kg extracts tax entities from passage text and records them as
// knowledge graph links: entities are linked to their source file with
// "mentioned_in" and to co-occurring entities with "related_to".
package kg

import (
	"regexp"
	"strings"

	"taxray/internal/logging"
	"taxray/internal/store"
)

// Entity is a typed tax entity found in text.
type Entity struct {
	Name string
	Type string
}

type pattern struct {
	entityType string
	re         *regexp.Regexp
}

// Tax entity patterns. Each pattern's first capture group is the entity
// name; the keyword matches case-insensitively but names keep their case.
var patterns = []pattern{
	{"form", regexp.MustCompile(`(?i:form)\s+([0-9A-Z][0-9A-Z\-]*)\b`)},
	{"form", regexp.MustCompile(`\b([0-9]{3,4}[A-Z]?)\s+(?i:form)`)},
	{"deduction", regexp.MustCompile(`\b((?:[A-Za-z]+\s+){0,2}[A-Za-z]+)\s+(?i:deduction)`)},
	{"credit", regexp.MustCompile(`\b((?:[A-Za-z]+\s+){0,2}[A-Za-z]+)\s+(?i:credit)`)},
	{"taxpayer", regexp.MustCompile(`(?i:taxpayer)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`)},
	{"taxpayer", regexp.MustCompile(`([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)'s\s+(?i:tax)`)},
}

// stopwords filters capture noise from the loose deduction/credit patterns.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "this": true, "that": true,
	"any": true, "no": true, "his": true, "her": true, "their": true,
	"each": true, "every": true, "such": true, "tax": true,
	"he": true, "she": true, "they": true, "and": true, "or": true,
	"claim": true, "claims": true, "claimed": true, "took": true,
}

// Extract finds tax entities in text. Names are trimmed and deduplicated;
// stopword-only captures are dropped.
func Extract(text string) []Entity {
	seen := make(map[Entity]bool)
	var entities []Entity

	for _, p := range patterns {
		for _, match := range p.re.FindAllStringSubmatch(text, -1) {
			name := normalizeName(match[1])
			if name == "" || stopwords[strings.ToLower(name)] {
				continue
			}
			e := Entity{Name: name, Type: p.entityType}
			if !seen[e] {
				seen[e] = true
				entities = append(entities, e)
			}
		}
	}

	return entities
}

func normalizeName(raw string) string {
	name := strings.TrimSpace(raw)
	// drop leading stopwords from multiword captures like "claimed the standard"
	words := strings.Fields(name)
	for len(words) > 0 && stopwords[strings.ToLower(words[0])] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

// Linker persists extracted entities into a knowledge graph.
type Linker struct {
	store *store.LocalStore
}

// NewLinker creates a Linker over the given store.
func NewLinker(s *store.LocalStore) *Linker {
	return &Linker{store: s}
}

// ExtractToGraph extracts entities from text and records graph links:
// each entity gets a "mentioned_in" edge to the source, and entities that
// co-occur in the same text get "related_to" edges. Edge weights accumulate,
// so a pair seen in three documents carries weight 3. Returns the number of
// entities found.
func (l *Linker) ExtractToGraph(text, source string) (int, error) {
	timer := logging.StartTimer(logging.CategoryKG, "ExtractToGraph")
	defer timer.Stop()

	entities := Extract(text)
	if len(entities) == 0 {
		return 0, nil
	}

	for _, e := range entities {
		meta := map[string]interface{}{"entity_type": e.Type}
		if err := l.store.IncrementLink(e.Name, "mentioned_in", source, 1.0, meta); err != nil {
			return 0, err
		}
	}

	// co-occurrence edges, one direction only to avoid duplicate pairs
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			if err := l.store.IncrementLink(entities[i].Name, "related_to", entities[j].Name, 1.0, nil); err != nil {
				return 0, err
			}
		}
	}

	logging.KG("Extracted %d entities from %s", len(entities), source)
	return len(entities), nil
}
