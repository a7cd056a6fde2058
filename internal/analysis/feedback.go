package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"taxray/internal/logging"
	"taxray/internal/ollama"
)

// Reviewer runs the feedback pass: a model critiques its own answers,
// optionally against other models' answers to the same scenario.
type Reviewer struct {
	gen  Generator
	opts ollama.Options
}

// NewReviewer creates a Reviewer using the given generation options.
func NewReviewer(gen Generator, opts ollama.Options) *Reviewer {
	return &Reviewer{gen: gen, opts: opts}
}

// Review asks the analysis's own model to critique and revise its answers.
// other holds competing analyses of the same scenario and may be empty.
func (r *Reviewer) Review(ctx context.Context, original *ScenarioAnalysis, other []*ScenarioAnalysis) (string, error) {
	logging.Feedback("Generating feedback for %s on %s (%d peer analyses)",
		original.Model, original.Source, len(other))

	prompt := buildFeedbackPrompt(original, other)

	resp, err := r.gen.Generate(ctx, original.Model, prompt, r.opts)
	if err != nil {
		return "", fmt.Errorf("feedback generation failed: %w", err)
	}
	return strings.TrimSpace(resp.Response), nil
}

// SaveFeedback writes the original analysis plus feedback next to the
// answer file, as <model>_<source>_with_feedback.txt.
func (r *Reviewer) SaveFeedback(original *ScenarioAnalysis, feedback, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MODEL: %s\n\n", original.Model)
	fmt.Fprintf(&b, "ORIGINAL ANALYSIS:\n%s\n\n", original.Text())
	fmt.Fprintf(&b, "FEEDBACK:\n%s\n", feedback)

	path := filepath.Join(outputDir, FeedbackFilename(original.Model, original.Source))
	if err := writeFileAtomic(path, []byte(b.String())); err != nil {
		return "", err
	}

	logging.Feedback("Saved feedback to %s", path)
	return path, nil
}

func buildFeedbackPrompt(original *ScenarioAnalysis, other []*ScenarioAnalysis) string {
	var b strings.Builder
	b.WriteString("You are a tax expert tasked with reviewing and providing feedback on your previous analysis. ")
	b.WriteString("First review your original answers, then provide specific feedback on each answer, ")
	b.WriteString("noting any errors, omissions, or areas for improvement.\n\n")

	fmt.Fprintf(&b, "SCENARIO:\n%s\n\n", original.Scenario)

	b.WriteString("YOUR ORIGINAL ANSWERS:\n")
	for i, r := range original.Results {
		fmt.Fprintf(&b, "Q%d: %s\n\n", i+1, r.Question)
		fmt.Fprintf(&b, "A%d: %s\n\n", i+1, r.Answer)
	}

	if len(other) > 0 {
		b.WriteString("ANSWERS FROM OTHER MODELS:\n\n")
		for _, a := range other {
			fmt.Fprintf(&b, "MODEL: %s\n", a.Model)
			for i, r := range a.Results {
				fmt.Fprintf(&b, "Q%d: %s\n\n", i+1, r.Question)
				fmt.Fprintf(&b, "A%d: %s\n\n", i+1, r.Answer)
			}
			b.WriteString("---\n\n")
		}
	}

	b.WriteString("Based on this review, please provide:\n")
	b.WriteString("1. Specific feedback on each of your answers\n")
	b.WriteString("2. Any corrections or improvements you would make\n")
	b.WriteString("3. A comparative analysis against other models (if provided)\n")
	b.WriteString("4. Your final, revised answers incorporating all feedback\n")
	return b.String()
}
