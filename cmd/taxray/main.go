// Package main implements the taxray CLI: corpus ingestion, hybrid
// retrieval, and sequential multi-model tax scenario analysis.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"taxray/internal/config"
	"taxray/internal/embedding"
	"taxray/internal/logging"
	"taxray/internal/metrics"
	"taxray/internal/retrieval"
	"taxray/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose    bool
	workspace  string
	ollamaHost string

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "taxray",
	Short: "Answer tax scenario questions with local LLMs and hybrid retrieval",
	Long: `taxray ingests plain-text tax scenario documents, retrieves relevant
passages with a hybrid engine (vector similarity + knowledge graph), and asks
a batch of Ollama-served models to answer each question.

Models run strictly one at a time so the serving host never loads two at
once. Each model's answers are written to the output directory, then each
model reviews its own answers against the other models' answers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspace == "" {
			ws, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to determine workspace: %w", err)
			}
			workspace = ws
		}

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("file logging disabled", zap.Error(err))
		}

		cfg, err = config.Load(filepath.Join(workspace, "taxray.yaml"))
		if err != nil {
			return err
		}
		if ollamaHost != "" {
			cfg.Ollama.Host = ollamaHost
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&ollamaHost, "host", "", "Ollama host (overrides config and OLLAMA_HOST)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(kgCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(reembedCmd)
	rootCmd.AddCommand(resetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolvePath anchors a config-relative path at the workspace.
func resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspace, p)
}

// openStore opens the passage store and attaches the configured embedding
// engine. An unavailable engine degrades to keyword recall, not an error.
func openStore() (*store.LocalStore, error) {
	s, err := store.NewLocalStore(resolvePath(cfg.Storage.DatabasePath))
	if err != nil {
		return nil, err
	}

	engine, err := embedding.NewEngine(embeddingConfig())
	if err != nil {
		logger.Warn("embedding engine unavailable, falling back to keyword recall", zap.Error(err))
		return s, nil
	}
	s.SetEmbeddingEngine(engine)
	return s, nil
}

func embeddingConfig() embedding.Config {
	ec := embedding.DefaultConfig()
	if cfg.Embedding.Provider != "" {
		ec.Provider = cfg.Embedding.Provider
	}
	ec.OllamaEndpoint = cfg.Ollama.Host
	if cfg.Ollama.EmbedModel != "" {
		ec.OllamaModel = cfg.Ollama.EmbedModel
	}
	if cfg.Embedding.GenAIAPIKey != "" {
		ec.GenAIAPIKey = cfg.Embedding.GenAIAPIKey
	}
	if cfg.Embedding.GenAIModel != "" {
		ec.GenAIModel = cfg.Embedding.GenAIModel
	}
	if cfg.Embedding.TaskType != "" {
		ec.TaskType = cfg.Embedding.TaskType
	}
	return ec
}

func newRetriever(s *store.LocalStore) *retrieval.HybridRetriever {
	return retrieval.New(s, retrieval.Config{
		GraphEnabled: cfg.Retrieval.GraphEnabled,
		GraphBoost:   cfg.Retrieval.GraphBoost,
	})
}

// newCollector returns the metrics collector, or nil when the metrics
// directory cannot be created. Metrics never block a run.
func newCollector() *metrics.Collector {
	c, err := metrics.NewCollector(resolvePath(cfg.Metrics.Dir))
	if err != nil {
		logger.Warn("metrics disabled", zap.Error(err))
		return nil
	}
	return c
}
