// Package analysis answers tax scenario questions with retrieved context
// and renders the results as plain-text reports.
package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taxray/internal/logging"
)

// Result holds the answer to a single question.
type Result struct {
	Question      string
	Answer        string
	Reasoning     string
	Choice        string // selected option letter for multiple-choice, "" otherwise
	Sources       []string
	ExecutionTime time.Duration
}

// ScenarioAnalysis is one model's complete answer set for a scenario.
type ScenarioAnalysis struct {
	Scenario  string
	Model     string
	Source    string // source document filename
	Results   []Result
	TotalTime time.Duration
}

// Text renders the analysis in the report format:
// MODEL:, SCENARIO:, then Qn/An pairs separated by ---.
func (a *ScenarioAnalysis) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "MODEL: %s\n\n", a.Model)
	fmt.Fprintf(&b, "SCENARIO:\n%s\n\n", a.Scenario)

	for i, r := range a.Results {
		fmt.Fprintf(&b, "Q%d: %s\n\n", i+1, r.Question)
		fmt.Fprintf(&b, "A%d: %s\n\n", i+1, r.Answer)
		b.WriteString("---\n\n")
	}

	fmt.Fprintf(&b, "Analysis completed in %.2f seconds", a.TotalTime.Seconds())
	return b.String()
}

// SanitizeModel makes a model name filesystem-safe: "/" and ":" become "-".
func SanitizeModel(model string) string {
	return strings.NewReplacer("/", "-", ":", "-").Replace(model)
}

// AnswerFilename is the deterministic output name for a model's analysis of
// a source document, e.g. "llama3-8b_scenario1.txt".
func AnswerFilename(model, source string) string {
	return SanitizeModel(model) + "_" + source
}

// FeedbackFilename is the output name for the feedback pass, e.g.
// "llama3-8b_scenario1_with_feedback.txt".
func FeedbackFilename(model, source string) string {
	base := strings.TrimSuffix(source, filepath.Ext(source))
	return SanitizeModel(model) + "_" + base + "_with_feedback.txt"
}

// Save writes the analysis to outputDir under its deterministic name,
// writing a temp file first so a crash never leaves a truncated report.
// Returns the full path written.
func (a *ScenarioAnalysis) Save(outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(outputDir, AnswerFilename(a.Model, a.Source))
	if err := writeFileAtomic(path, []byte(a.Text())); err != nil {
		return "", err
	}

	logging.Analysis("Saved analysis to %s", path)
	return path, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
