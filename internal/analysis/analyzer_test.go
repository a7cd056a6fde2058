package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taxray/internal/document"
	"taxray/internal/metrics"
	"taxray/internal/ollama"
	"taxray/internal/retrieval"
)

// fakeGenerator returns canned responses and records prompts.
type fakeGenerator struct {
	responses []string
	err       error
	prompts   []string
	models    []string
}

func (f *fakeGenerator) Generate(ctx context.Context, model, prompt string, opts ollama.Options) (*ollama.GenerateResult, error) {
	f.prompts = append(f.prompts, prompt)
	f.models = append(f.models, model)
	if f.err != nil {
		return nil, f.err
	}
	resp := "default answer"
	if len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	return &ollama.GenerateResult{Model: model, Response: resp, PromptTokens: 10, CompletionTokens: 5}, nil
}

// fakeRetriever returns fixed passages.
type fakeRetriever struct {
	passages []retrieval.ScoredPassage
	err      error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ScoredPassage, error) {
	return f.passages, f.err
}

func sampleScenario() document.Scenario {
	return document.Scenario{
		Title: "Education Credits",
		Body:  "Maria paid $4,000 in qualified tuition for her dependent daughter.",
		Questions: []document.Question{
			{
				Number: 1,
				Text:   "Which credit can Maria claim?",
				Options: map[string]string{
					"a": "American Opportunity Credit",
					"b": "Child Tax Credit",
					"c": "Earned Income Credit",
				},
			},
			{Number: 2, Text: "What form does she file?"},
		},
		Doc: document.Document{Filename: "education.txt"},
	}
}

func TestAnalyzeQuestion_RecordsQueryMetrics(t *testing.T) {
	dir := t.TempDir()
	collector, err := metrics.NewCollector(dir)
	if err != nil {
		t.Fatal(err)
	}

	gen := &fakeGenerator{responses: []string{"the answer"}}
	ret := &fakeRetriever{passages: []retrieval.ScoredPassage{
		{Content: "tuition rules", Source: "pub970.txt", Score: 0.9},
	}}
	a := NewAnalyzer(gen, ret, ollama.DefaultOptions(), 3)
	a.SetMetrics(collector)

	sc := sampleScenario()
	if _, err := a.AnalyzeQuestion(context.Background(), sc.Body, sc.Questions[0], "phi4"); err != nil {
		t.Fatalf("AnalyzeQuestion failed: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*_query.jsonl"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one query metrics file, got %v (err %v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	var event struct {
		EventType string                 `json:"event_type"`
		Data      map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("invalid query event: %v", err)
	}
	if event.EventType != "query" {
		t.Errorf("event_type = %q", event.EventType)
	}
	if event.Data["query_type"] != "analysis" {
		t.Errorf("query_type = %v, want analysis", event.Data["query_type"])
	}
	if event.Data["num_results"].(float64) != 1 {
		t.Errorf("num_results = %v, want 1", event.Data["num_results"])
	}
}

func TestAnalyzeScenario(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		"The correct answer is (a). Reasoning: qualified tuition is eligible.",
		"She files Form 8863 with her return.",
	}}
	ret := &fakeRetriever{passages: []retrieval.ScoredPassage{
		{Content: "AOTC covers the first four years of higher education.", Source: "pub970.txt", Score: 0.9},
	}}

	outDir := t.TempDir()
	a := NewAnalyzer(gen, ret, ollama.DefaultOptions(), 5)
	analysis, err := a.AnalyzeScenario(context.Background(), sampleScenario(), "llama3:8b", outDir)
	if err != nil {
		t.Fatalf("AnalyzeScenario failed: %v", err)
	}

	if len(analysis.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(analysis.Results))
	}
	if analysis.Results[0].Choice != "a" {
		t.Errorf("choice = %q, want a", analysis.Results[0].Choice)
	}
	if analysis.Results[0].Reasoning == "" {
		t.Error("reasoning not extracted")
	}
	if len(analysis.Results[0].Sources) != 1 || analysis.Results[0].Sources[0] != "pub970.txt" {
		t.Errorf("sources = %v", analysis.Results[0].Sources)
	}

	// output file uses the sanitized model name and source filename
	path := filepath.Join(outDir, "llama3-8b_education.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("answer file not written: %v", err)
	}
	text := string(data)
	for _, want := range []string{"MODEL: llama3:8b", "SCENARIO:", "Q1:", "A1:", "Q2:", "A2:", "Analysis completed in"} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestAnalyzeScenario_ProgressiveSaveOnFailure(t *testing.T) {
	outDir := t.TempDir()

	// first question answers, second fails
	callCount := 0
	gen := generatorFunc(func(ctx context.Context, model, prompt string, opts ollama.Options) (*ollama.GenerateResult, error) {
		callCount++
		if callCount > 1 {
			return nil, errors.New("model crashed")
		}
		return &ollama.GenerateResult{Model: model, Response: "first answer"}, nil
	})
	a := NewAnalyzer(gen, nil, ollama.Options{}, 5)

	_, err := a.AnalyzeScenario(context.Background(), sampleScenario(), "phi4", outDir)
	if err == nil {
		t.Fatal("expected error from second question")
	}

	// the first answer should already be on disk
	data, readErr := os.ReadFile(filepath.Join(outDir, "phi4_education.txt"))
	if readErr != nil {
		t.Fatalf("progressive save missing: %v", readErr)
	}
	if !strings.Contains(string(data), "first answer") {
		t.Error("partial report missing first answer")
	}
}

type generatorFunc func(ctx context.Context, model, prompt string, opts ollama.Options) (*ollama.GenerateResult, error)

func (f generatorFunc) Generate(ctx context.Context, model, prompt string, opts ollama.Options) (*ollama.GenerateResult, error) {
	return f(ctx, model, prompt, opts)
}

func TestBuildPrompt_MultipleChoice(t *testing.T) {
	sc := sampleScenario()
	prompt := buildPrompt(sc.Body, sc.Questions[0], []retrieval.ScoredPassage{
		{Content: "context passage", Source: "pub.txt"},
	})

	for _, want := range []string{
		"SCENARIO:", "QUESTION:", "RELEVANT INFORMATION:",
		"(a) American Opportunity Credit",
		"(b) Child Tax Credit",
		"context passage",
		"State which option letter is correct.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestExtractChoice(t *testing.T) {
	tests := []struct {
		response string
		want     string
	}{
		{"The correct answer is (b).", "b"},
		{"Answer: (C)", "c"},
		{"After analysis, the correct option is a.", "a"},
		{"(d) is correct because of the phase-out.", "d"},
		{"This depends on several factors.", ""},
	}
	for _, tt := range tests {
		if got := extractChoice(tt.response); got != tt.want {
			t.Errorf("extractChoice(%q) = %q, want %q", tt.response, got, tt.want)
		}
	}
}

func TestExtractReasoning(t *testing.T) {
	resp := "The answer is (a).\n\nReasoning: The AOTC applies to qualified tuition.\n\nFinal note."
	if got := extractReasoning(resp); got != "The AOTC applies to qualified tuition." {
		t.Errorf("reasoning = %q", got)
	}
	if got := extractReasoning("No labeled sections here."); got != "" {
		t.Errorf("expected empty reasoning, got %q", got)
	}
}

func TestFilenames(t *testing.T) {
	if got := AnswerFilename("mixtral:8x7b", "scenario1.txt"); got != "mixtral-8x7b_scenario1.txt" {
		t.Errorf("AnswerFilename = %q", got)
	}
	if got := FeedbackFilename("library/llama3:8b", "scenario1.txt"); got != "library-llama3-8b_scenario1_with_feedback.txt" {
		t.Errorf("FeedbackFilename = %q", got)
	}
}

func TestRetrievalFailureDoesNotFailQuestion(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"answer without context"}}
	ret := &fakeRetriever{err: errors.New("store offline")}

	a := NewAnalyzer(gen, ret, ollama.Options{}, 5)
	result, err := a.AnalyzeQuestion(context.Background(), "scenario", document.Question{Text: "q"}, "phi4")
	if err != nil {
		t.Fatalf("AnalyzeQuestion failed: %v", err)
	}
	if result.Answer != "answer without context" {
		t.Errorf("answer = %q", result.Answer)
	}
	if len(result.Sources) != 0 {
		t.Errorf("expected no sources, got %v", result.Sources)
	}
}
