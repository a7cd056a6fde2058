package runner

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"taxray/internal/document"
	"taxray/internal/kg"
	"taxray/internal/logging"
	"taxray/internal/store"
)

// Ingestor loads documents, chunks them, stores embedded passages, and
// extracts knowledge graph entities.
type Ingestor struct {
	store        *store.LocalStore
	linker       *kg.Linker
	chunkSize    int
	chunkOverlap int
	workers      int
}

// NewIngestor creates an Ingestor. linker may be nil to skip graph
// extraction.
func NewIngestor(s *store.LocalStore, linker *kg.Linker, chunkSize, chunkOverlap int) *Ingestor {
	return &Ingestor{
		store:        s,
		linker:       linker,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		workers:      4,
	}
}

// IngestStats summarizes an ingestion run.
type IngestStats struct {
	Documents int
	Passages  int
	Entities  int
}

// IngestAll ingests every document, parallelized per file. A failed file
// aborts the run so the caller sees the first error.
func (in *Ingestor) IngestAll(ctx context.Context, docs []document.Document) (*IngestStats, error) {
	var passages, entities atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(in.workers)

	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			p, e, err := in.ingestOne(ctx, doc)
			if err != nil {
				return err
			}
			passages.Add(int64(p))
			entities.Add(int64(e))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &IngestStats{
		Documents: len(docs),
		Passages:  int(passages.Load()),
		Entities:  int(entities.Load()),
	}
	logging.Runner("Ingested %d documents: %d passages, %d entities",
		stats.Documents, stats.Passages, stats.Entities)
	return stats, nil
}

// IngestDocument ingests a single document, replacing any previous
// passages from the same source.
func (in *Ingestor) IngestDocument(ctx context.Context, doc document.Document) (*IngestStats, error) {
	p, e, err := in.ingestOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &IngestStats{Documents: 1, Passages: p, Entities: e}, nil
}

func (in *Ingestor) ingestOne(ctx context.Context, doc document.Document) (int, int, error) {
	if err := in.store.DeleteSource(doc.Filename); err != nil {
		return 0, 0, err
	}

	chunks := document.Chunk(doc.Content, in.chunkSize, in.chunkOverlap)
	for i, chunk := range chunks {
		meta := map[string]interface{}{"filename": doc.Filename}
		if err := in.store.StorePassage(ctx, doc.Filename, i, chunk, meta); err != nil {
			return 0, 0, err
		}
	}

	entities := 0
	if in.linker != nil {
		n, err := in.linker.ExtractToGraph(doc.Content, doc.Filename)
		if err != nil {
			return 0, 0, err
		}
		entities = n
	}

	logging.RunnerDebug("Ingested %s: %d chunks, %d entities", doc.Filename, len(chunks), entities)
	return len(chunks), entities, nil
}
