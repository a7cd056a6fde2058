package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"taxray/internal/logging"
)

const summaryFile = "model_metrics.json"

// ModelStats aggregates runs for one model.
type ModelStats struct {
	Processed         int     `json:"processed"`
	Errors            int     `json:"errors"`
	TotalTime         float64 `json:"total_time"`
	AverageTimePerDoc float64 `json:"average_time_per_doc"`
}

// Summary holds per-model aggregate stats, persisted as model_metrics.json
// in the metrics directory.
type Summary struct {
	dir    string
	Models map[string]*ModelStats
}

// LoadSummary reads the aggregate summary, returning an empty one if the
// file does not exist yet.
func LoadSummary(dir string) (*Summary, error) {
	s := &Summary{dir: dir, Models: make(map[string]*ModelStats)}

	data, err := os.ReadFile(filepath.Join(dir, summaryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read metrics summary: %w", err)
	}
	if err := json.Unmarshal(data, &s.Models); err != nil {
		return nil, fmt.Errorf("failed to parse metrics summary: %w", err)
	}
	return s, nil
}

// RecordRun folds one model run into the aggregate.
func (s *Summary) RecordRun(model string, duration time.Duration, success bool) {
	stats, ok := s.Models[model]
	if !ok {
		stats = &ModelStats{}
		s.Models[model] = stats
	}

	if success {
		stats.Processed++
		stats.TotalTime += duration.Seconds()
		stats.AverageTimePerDoc = stats.TotalTime / float64(stats.Processed)
	} else {
		stats.Errors++
	}
}

// Save writes the summary atomically via a temp file rename.
func (s *Summary) Save() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}

	data, err := json.MarshalIndent(s.Models, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics summary: %w", err)
	}

	path := filepath.Join(s.dir, summaryFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics summary: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace metrics summary: %w", err)
	}

	logging.MetricsDebug("Saved metrics summary for %d models", len(s.Models))
	return nil
}

// Report renders the summary as plain text.
func (s *Summary) Report() string {
	if len(s.Models) == 0 {
		return "No metrics data available.\n"
	}

	names := make([]string, 0, len(s.Models))
	for name := range s.Models {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("=== MODEL RUN STATISTICS ===\n")
	for _, name := range names {
		stats := s.Models[name]
		fmt.Fprintf(&b, "Model: %s\n", name)
		fmt.Fprintf(&b, "  Processed Documents: %d\n", stats.Processed)
		fmt.Fprintf(&b, "  Errors: %d\n", stats.Errors)
		fmt.Fprintf(&b, "  Total Processing Time: %.2f seconds\n", stats.TotalTime)
		fmt.Fprintf(&b, "  Average Time per Document: %.2f seconds\n", stats.AverageTimePerDoc)
		b.WriteString("\n")
	}
	return b.String()
}
