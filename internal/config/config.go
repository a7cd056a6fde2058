// Package config loads and persists taxray configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all taxray configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Ollama model serving
	Ollama OllamaConfig `yaml:"ollama"`

	// Embedding engine
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Passage store
	Storage StorageConfig `yaml:"storage"`

	// Hybrid retrieval
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Scenario analysis
	Analysis AnalysisConfig `yaml:"analysis"`

	// Metrics recording
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// OllamaConfig configures the model serving endpoint.
type OllamaConfig struct {
	Host string `yaml:"host"`

	// Models to run, in batch order. Executed strictly sequentially
	// to cap peak memory on the serving host.
	Models []string `yaml:"models"`

	// EmbedModel is the model used for /api/embeddings when the
	// embedding provider is "ollama".
	EmbedModel string `yaml:"embed_model"`

	GenerateTimeout string `yaml:"generate_timeout"`
	PullTimeout     string `yaml:"pull_timeout"`

	// AutoPull pulls a missing model before generating with it.
	AutoPull bool `yaml:"auto_pull"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // ollama, genai

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`
	TaskType    string `yaml:"task_type"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// RetrievalConfig configures chunking and hybrid retrieval.
type RetrievalConfig struct {
	TopK         int  `yaml:"top_k"`
	GraphEnabled bool `yaml:"graph_enabled"`

	// GraphBoost is added per matched graph neighbor, scaled by edge weight.
	GraphBoost float64 `yaml:"graph_boost"`

	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// AnalysisConfig configures the analysis pipeline.
type AnalysisConfig struct {
	DocsDir   string `yaml:"docs_dir"`
	OutputDir string `yaml:"output_dir"`

	// Feedback enables the second self/cross-review pass.
	Feedback bool `yaml:"feedback"`

	// Cooldown is the pause between models in a batch, giving the
	// serving host time to unload the previous model.
	Cooldown string `yaml:"cooldown"`
}

// MetricsConfig configures metrics recording.
type MetricsConfig struct {
	Dir               string `yaml:"dir"`
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPort    int    `yaml:"prometheus_port"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level     string `yaml:"level"` // debug, info, warn, error
	DebugMode bool   `yaml:"debug_mode"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "taxray",
		Version: "0.3.0",

		Ollama: OllamaConfig{
			Host:            "http://localhost:11434",
			Models:          []string{"llama3:8b", "phi4", "mixtral:8x7b"},
			EmbedModel:      "nomic-embed-text",
			GenerateTimeout: "300s",
			PullTimeout:     "30m",
			AutoPull:        true,
		},

		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			GenAIModel: "gemini-embedding-001",
			TaskType:   "RETRIEVAL_DOCUMENT",
		},

		Storage: StorageConfig{
			DatabasePath: "data/taxray.db",
		},

		Retrieval: RetrievalConfig{
			TopK:         5,
			GraphEnabled: true,
			GraphBoost:   0.15,
			ChunkSize:    512,
			ChunkOverlap: 50,
		},

		Analysis: AnalysisConfig{
			DocsDir:   "data/docs",
			OutputDir: "data/results",
			Feedback:  true,
			Cooldown:  "5s",
		},

		Metrics: MetricsConfig{
			Dir:               "logs/metrics",
			PrometheusEnabled: false,
			PrometheusPort:    8000,
		},

		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Ollama.Host = host
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
		if c.Embedding.Provider == "" {
			c.Embedding.Provider = "genai"
		}
	}
	if path := os.Getenv("TAXRAY_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
	if dir := os.Getenv("TAXRAY_DOCS"); dir != "" {
		c.Analysis.DocsDir = dir
	}
}

// GetGenerateTimeout returns the Ollama generate timeout as a duration.
func (c *Config) GetGenerateTimeout() time.Duration {
	d, err := time.ParseDuration(c.Ollama.GenerateTimeout)
	if err != nil {
		return 300 * time.Second
	}
	return d
}

// GetPullTimeout returns the Ollama pull timeout as a duration.
func (c *Config) GetPullTimeout() time.Duration {
	d, err := time.ParseDuration(c.Ollama.PullTimeout)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// GetCooldown returns the between-models cooldown as a duration.
func (c *Config) GetCooldown() time.Duration {
	d, err := time.ParseDuration(c.Analysis.Cooldown)
	if err != nil {
		return 5 * time.Second
	}
	return d
}
