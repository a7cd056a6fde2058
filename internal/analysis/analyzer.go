package analysis

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"taxray/internal/document"
	"taxray/internal/logging"
	"taxray/internal/metrics"
	"taxray/internal/ollama"
	"taxray/internal/retrieval"
)

// Generator runs a prompt against a named model. *ollama.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, opts ollama.Options) (*ollama.GenerateResult, error)
}

// Analyzer answers scenario questions one at a time, saving progressively
// so a crash mid-scenario keeps the answers produced so far.
type Analyzer struct {
	gen       Generator
	retriever retrieval.Retriever
	opts      ollama.Options
	topK      int
	collector *metrics.Collector
}

// NewAnalyzer creates an Analyzer. A nil retriever skips context retrieval.
func NewAnalyzer(gen Generator, retriever retrieval.Retriever, opts ollama.Options, topK int) *Analyzer {
	if topK <= 0 {
		topK = 5
	}
	return &Analyzer{gen: gen, retriever: retriever, opts: opts, topK: topK}
}

// SetMetrics attaches a collector so per-question retrievals emit query
// events. A nil collector disables recording.
func (a *Analyzer) SetMetrics(c *metrics.Collector) {
	a.collector = c
}

// AnalyzeScenario answers every question in the scenario with the given
// model, saving the partial report to outputDir after each question.
func (a *Analyzer) AnalyzeScenario(ctx context.Context, sc document.Scenario, model, outputDir string) (*ScenarioAnalysis, error) {
	start := time.Now()

	analysis := &ScenarioAnalysis{
		Scenario: sc.Body,
		Model:    model,
		Source:   sc.Doc.Filename,
	}

	logging.Analysis("Analyzing %s with %s (%d questions)", sc.Doc.Filename, model, len(sc.Questions))

	for i, q := range sc.Questions {
		result, err := a.AnalyzeQuestion(ctx, sc.Body, q, model)
		if err != nil {
			return analysis, fmt.Errorf("question %d failed: %w", i+1, err)
		}
		analysis.Results = append(analysis.Results, *result)
		analysis.TotalTime = time.Since(start)

		// progressive save keeps partial answers if a later question fails
		if outputDir != "" {
			if _, err := analysis.Save(outputDir); err != nil {
				logging.Get(logging.CategoryAnalysis).Warn("Progressive save failed: %v", err)
			}
		}
	}

	analysis.TotalTime = time.Since(start)
	return analysis, nil
}

// AnalyzeQuestion answers a single question against the scenario.
func (a *Analyzer) AnalyzeQuestion(ctx context.Context, scenario string, q document.Question, model string) (*Result, error) {
	start := time.Now()

	var passages []retrieval.ScoredPassage
	if a.retriever != nil {
		query := scenario + "\n" + q.Text
		retrieveStart := time.Now()
		var err error
		passages, err = a.retriever.Retrieve(ctx, query, a.topK)
		if a.collector != nil {
			a.collector.RecordQuery("analysis", query, len(passages), time.Since(retrieveStart), err == nil, err)
		}
		if err != nil {
			// answer from the scenario alone rather than failing the question
			logging.Get(logging.CategoryAnalysis).Warn("Context retrieval failed: %v", err)
		}
	}

	prompt := buildPrompt(scenario, q, passages)

	resp, err := a.gen.Generate(ctx, model, prompt, a.opts)
	if err != nil {
		return nil, err
	}

	answer := strings.TrimSpace(resp.Response)
	result := &Result{
		Question:      q.Text,
		Answer:        answer,
		Reasoning:     extractReasoning(answer),
		Sources:       sourceList(passages),
		ExecutionTime: time.Since(start),
	}
	if q.IsMultipleChoice() {
		result.Choice = extractChoice(answer)
	}
	return result, nil
}

func buildPrompt(scenario string, q document.Question, passages []retrieval.ScoredPassage) string {
	var b strings.Builder
	b.WriteString("You are a tax expert assistant. Analyze the following tax scenario and question.\n\n")
	fmt.Fprintf(&b, "SCENARIO:\n%s\n\n", scenario)
	fmt.Fprintf(&b, "QUESTION:\n%s\n", q.Text)

	if q.IsMultipleChoice() {
		letters := make([]string, 0, len(q.Options))
		for letter := range q.Options {
			letters = append(letters, letter)
		}
		sort.Strings(letters)
		for _, letter := range letters {
			fmt.Fprintf(&b, "(%s) %s\n", letter, q.Options[letter])
		}
	}
	b.WriteString("\n")

	if len(passages) > 0 {
		b.WriteString("RELEVANT INFORMATION:\n")
		for _, p := range passages {
			fmt.Fprintf(&b, "---\n%s\n", p.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("Based on the scenario, question, and relevant information, provide a detailed answer. ")
	b.WriteString("Include your reasoning process, cite specific tax rules when applicable, ")
	b.WriteString("and be precise in your conclusions.")
	if q.IsMultipleChoice() {
		b.WriteString(" State which option letter is correct.")
	}
	return b.String()
}

var reasoningPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)(?:Reasoning|Analysis):\s*(.*?)(?:\n\n|\z)`),
	regexp.MustCompile(`(?is)(?:Here's my reasoning|Let me analyze this):\s*(.*?)(?:\n\n|\z)`),
	regexp.MustCompile(`(?is)(?:Let me think through this|My thought process):\s*(.*?)(?:\n\n|\z)`),
}

// extractReasoning pulls an explicit reasoning section out of a response,
// or returns "" when the model did not label one.
func extractReasoning(response string) string {
	for _, re := range reasoningPatterns {
		if m := re.FindStringSubmatch(response); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

var choicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:correct\s+)?(?:answer|option|choice)\s+is\s*:?\s*\(?([a-eA-E])\)?\b`),
	regexp.MustCompile(`(?i)\banswer\s*:?\s*\(([a-eA-E])\)`),
	regexp.MustCompile(`(?im)^\s*\(?([a-eA-E])\)\s+is\s+correct\b`),
}

// extractChoice finds the option letter a response settles on, lowercased,
// or "" when no clear choice is stated.
func extractChoice(response string) string {
	for _, re := range choicePatterns {
		if m := re.FindStringSubmatch(response); m != nil {
			return strings.ToLower(m[1])
		}
	}
	return ""
}

func sourceList(passages []retrieval.ScoredPassage) []string {
	seen := make(map[string]bool)
	var sources []string
	for _, p := range passages {
		if p.Source != "" && !seen[p.Source] {
			seen[p.Source] = true
			sources = append(sources, p.Source)
		}
	}
	return sources
}
