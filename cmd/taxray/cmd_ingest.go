package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taxray/internal/document"
	"taxray/internal/kg"
	"taxray/internal/runner"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchDebounce time.Duration

// ingestCmd loads the corpus into the passage store.
var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Ingest .txt documents into the passage store",
	Long: `Loads every .txt file under the docs directory, chunks it, embeds each
chunk, and extracts tax entities into the knowledge graph. Re-ingesting a
file replaces its previous passages and graph links.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

// watchCmd keeps the store in sync with the docs directory.
var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch the docs directory and re-ingest changed files",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "Quiet period before re-ingesting a changed file")
}

func docsDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return resolvePath(cfg.Analysis.DocsDir)
}

func newIngestor() (*runner.Ingestor, func(), error) {
	s, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	ingestor := runner.NewIngestor(s, kg.NewLinker(s), cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	return ingestor, func() { s.Close() }, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dir := docsDir(args)

	docs, err := document.NewLoader(dir).LoadTextFiles()
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Printf("No .txt files found in %s\n", dir)
		return nil
	}

	ingestor, closeStore, err := newIngestor()
	if err != nil {
		return err
	}
	defer closeStore()

	start := time.Now()
	stats, err := ingestor.IngestAll(ctx, docs)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Printf("Ingested %d documents: %d passages, %d entities (%.1fs)\n",
		stats.Documents, stats.Passages, stats.Entities, time.Since(start).Seconds())
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := docsDir(args)

	ingestor, closeStore, err := newIngestor()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	watcher := runner.NewWatcher(dir, ingestor, watchDebounce)
	watcher.OnIngest = func(path string, stats *runner.IngestStats) {
		fmt.Printf("Re-ingested %s: %d passages, %d entities\n", path, stats.Passages, stats.Entities)
	}

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", dir)
	if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
		logger.Error("watcher stopped", zap.Error(err))
		return err
	}
	return nil
}
