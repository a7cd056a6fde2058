package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"taxray/internal/logging"
)

var (
	headerPattern = regexp.MustCompile(`(?s)^MODEL: (.+?)\n\nSCENARIO:\n(.*?)\n\nQ\d+: `)
	qaPattern     = regexp.MustCompile(`(?s)Q(\d+): (.*?)\n\nA\d+: (.*?)\n\n---\n\n`)
	timePattern   = regexp.MustCompile(`Analysis completed in ([0-9.]+) seconds`)
)

// ParseSaved reconstructs a ScenarioAnalysis from a saved report file.
// The source document name is recovered from the filename by stripping
// the sanitized model prefix.
func ParseSaved(path string) (*ScenarioAnalysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis: %w", err)
	}
	text := string(data)

	header := headerPattern.FindStringSubmatch(text)
	if header == nil {
		return nil, fmt.Errorf("%s is not an analysis report", filepath.Base(path))
	}

	a := &ScenarioAnalysis{
		Model:    header[1],
		Scenario: header[2],
	}

	name := filepath.Base(path)
	prefix := SanitizeModel(a.Model) + "_"
	if !strings.HasPrefix(name, prefix) {
		return nil, fmt.Errorf("filename %s does not match model %s", name, a.Model)
	}
	a.Source = strings.TrimPrefix(name, prefix)

	for _, m := range qaPattern.FindAllStringSubmatch(text, -1) {
		a.Results = append(a.Results, Result{
			Question: m[2],
			Answer:   m[3],
		})
	}
	if len(a.Results) == 0 {
		return nil, fmt.Errorf("no answers found in %s", name)
	}

	if m := timePattern.FindStringSubmatch(text); m != nil {
		if secs, err := strconv.ParseFloat(m[1], 64); err == nil {
			a.TotalTime = time.Duration(secs * float64(time.Second))
		}
	}

	return a, nil
}

// LoadSaved reads every saved analysis report in dir, grouped by source
// document then model. Feedback reports and temp files are skipped.
func LoadSaved(dir string) (map[string]map[string]*ScenarioAnalysis, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	analyses := make(map[string]map[string]*ScenarioAnalysis)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, "_with_feedback.txt") || strings.HasSuffix(name, ".tmp") {
			continue
		}
		if !strings.HasSuffix(name, ".txt") {
			continue
		}

		a, err := ParseSaved(filepath.Join(dir, name))
		if err != nil {
			logging.Analysis("Skipping %s: %v", name, err)
			continue
		}

		if analyses[a.Source] == nil {
			analyses[a.Source] = make(map[string]*ScenarioAnalysis)
		}
		analyses[a.Source][a.Model] = a
	}

	if len(analyses) == 0 {
		return nil, fmt.Errorf("no analysis reports found in %s", dir)
	}
	return analyses, nil
}
