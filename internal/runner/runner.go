// Package runner orchestrates batch analysis: every configured model
// answers every scenario, strictly one model at a time, followed by an
// optional feedback pass.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taxray/internal/analysis"
	"taxray/internal/document"
	"taxray/internal/logging"
	"taxray/internal/metrics"
	"taxray/internal/ollama"
)

// Runner executes the analyze and feedback passes for a batch of scenarios.
type Runner struct {
	analyzer  *analysis.Analyzer
	reviewer  *analysis.Reviewer
	collector *metrics.Collector
	models    []string
	outputDir string
	cooldown  time.Duration
	feedback  bool
}

// Config wires a Runner.
type Config struct {
	Models    []string
	OutputDir string
	// Cooldown pauses between models so a previous model's memory is
	// released before the next one loads.
	Cooldown time.Duration
	Feedback bool
}

// New creates a Runner. collector may be nil to skip metrics.
func New(analyzer *analysis.Analyzer, reviewer *analysis.Reviewer, collector *metrics.Collector, cfg Config) *Runner {
	return &Runner{
		analyzer:  analyzer,
		reviewer:  reviewer,
		collector: collector,
		models:    cfg.Models,
		outputDir: cfg.OutputDir,
		cooldown:  cfg.Cooldown,
		feedback:  cfg.Feedback,
	}
}

// BatchReport summarizes a completed batch.
type BatchReport struct {
	RunID     string
	Analyzed  int
	Failed    int
	Feedbacks int
	Duration  time.Duration
}

// Run analyzes every scenario with every model. Models run one after
// another; a failed scenario is recorded and skipped, not fatal. When
// feedback is enabled, each model then reviews its answers against the
// other models' answers to the same scenario.
func (r *Runner) Run(ctx context.Context, scenarios []document.Scenario) (*BatchReport, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios to analyze")
	}
	if len(r.models) == 0 {
		return nil, fmt.Errorf("no models configured")
	}

	start := time.Now()
	report := &BatchReport{RunID: uuid.NewString()}
	logging.Runner("Batch %s: %d scenarios x %d models", report.RunID, len(scenarios), len(r.models))

	summary := r.loadSummary()

	// analyses[source][model]
	analyses := make(map[string]map[string]*analysis.ScenarioAnalysis)

	for i, model := range r.models {
		if i > 0 && r.cooldown > 0 {
			logging.Runner("Cooling down %v before %s", r.cooldown, model)
			select {
			case <-time.After(r.cooldown):
			case <-ctx.Done():
				return report, ctx.Err()
			}
		}

		for _, sc := range scenarios {
			scStart := time.Now()
			result, err := r.analyzer.AnalyzeScenario(ctx, sc, model, r.outputDir)
			duration := time.Since(scStart)

			if summary != nil {
				summary.RecordRun(model, duration, err == nil)
			}
			if err != nil {
				report.Failed++
				logging.Get(logging.CategoryRunner).Error("%s failed on %s: %v", model, sc.Doc.Filename, err)
				if r.collector != nil {
					r.collector.RecordError("runner", "analyze_failed",
						fmt.Sprintf("%s on %s: %v", model, sc.Doc.Filename, err))
				}
				if ctx.Err() != nil {
					r.saveSummary(summary)
					return report, ctx.Err()
				}
				continue
			}

			report.Analyzed++
			if analyses[sc.Doc.Filename] == nil {
				analyses[sc.Doc.Filename] = make(map[string]*analysis.ScenarioAnalysis)
			}
			analyses[sc.Doc.Filename][model] = result
			logging.Runner("%s answered %s in %v", model, sc.Doc.Filename, duration)
		}
	}

	if r.feedback && r.reviewer != nil {
		report.Feedbacks = r.runFeedback(ctx, analyses)
	}

	r.saveSummary(summary)

	report.Duration = time.Since(start)
	logging.Runner("Batch %s complete: analyzed=%d failed=%d feedbacks=%d in %v",
		report.RunID, report.Analyzed, report.Failed, report.Feedbacks, report.Duration)
	return report, nil
}

// runFeedback runs the review pass, again one model at a time.
func (r *Runner) runFeedback(ctx context.Context, analyses map[string]map[string]*analysis.ScenarioAnalysis) int {
	saved := 0
	for source, byModel := range analyses {
		for model, original := range byModel {
			var peers []*analysis.ScenarioAnalysis
			for peerModel, peer := range byModel {
				if peerModel != model {
					peers = append(peers, peer)
				}
			}

			feedback, err := r.reviewer.Review(ctx, original, peers)
			if err != nil {
				logging.Get(logging.CategoryRunner).Error("Feedback failed for %s on %s: %v", model, source, err)
				if r.collector != nil {
					r.collector.RecordError("runner", "feedback_failed",
						fmt.Sprintf("%s on %s: %v", model, source, err))
				}
				if ctx.Err() != nil {
					return saved
				}
				continue
			}
			if _, err := r.reviewer.SaveFeedback(original, feedback, r.outputDir); err != nil {
				logging.Get(logging.CategoryRunner).Error("Saving feedback failed for %s on %s: %v", model, source, err)
				continue
			}
			saved++
		}
	}
	return saved
}

func (r *Runner) loadSummary() *metrics.Summary {
	if r.collector == nil {
		return nil
	}
	summary, err := metrics.LoadSummary(r.collector.Dir())
	if err != nil {
		logging.Get(logging.CategoryRunner).Warn("Could not load metrics summary: %v", err)
		return nil
	}
	return summary
}

func (r *Runner) saveSummary(summary *metrics.Summary) {
	if summary == nil {
		return
	}
	if err := summary.Save(); err != nil {
		logging.Get(logging.CategoryRunner).Warn("Could not save metrics summary: %v", err)
	}
}

// MeteredGenerator wraps a Generator and records token metrics for every
// generate call.
type MeteredGenerator struct {
	Gen       analysis.Generator
	Collector *metrics.Collector
	Bridge    *metrics.PrometheusBridge
}

// Generate delegates and records the outcome. Metrics never fail the call.
func (m *MeteredGenerator) Generate(ctx context.Context, model, prompt string, opts ollama.Options) (*ollama.GenerateResult, error) {
	result, err := m.Gen.Generate(ctx, model, prompt, opts)

	var promptTokens, completionTokens int
	var duration time.Duration
	if result != nil {
		promptTokens = result.PromptTokens
		completionTokens = result.CompletionTokens
		duration = result.Duration
	}
	if m.Collector != nil {
		m.Collector.RecordModelRun(model, promptTokens, completionTokens, duration, err == nil, err)
	}
	if m.Bridge != nil {
		m.Bridge.RecordModelRun(model, promptTokens, completionTokens, duration, err == nil)
	}
	return result, err
}
