package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"taxray/internal/analysis"
	"taxray/internal/document"
	"taxray/internal/metrics"
	"taxray/internal/ollama"
	"taxray/internal/runner"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	analyzeModels []string
	analyzeOutput string
	skipFeedback  bool
	skipDoctor    bool
)

// analyzeCmd runs the full batch: every model answers every scenario.
var analyzeCmd = &cobra.Command{
	Use:   "analyze [dir]",
	Short: "Analyze every scenario with every configured model",
	Long: `Loads the scenario documents, then runs each configured model over
every scenario in turn. Models execute strictly one at a time so only one
model is resident on the serving host.

Each model's answers are written to the output directory as
<model>_<source-file>. When feedback is enabled, a second pass asks each
model to review its answers against the other models' answers and writes
<model>_<source-file>_with_feedback.txt.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

// feedbackCmd reruns only the review pass over saved reports.
var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Run the feedback pass over previously saved analyses",
	Long: `Loads the analysis reports already saved in the output directory and
asks each model to review its own answers against the other models' answers
to the same scenario. Useful after adding a model to an existing batch.`,
	RunE: runFeedback,
}

func init() {
	analyzeCmd.Flags().StringSliceVarP(&analyzeModels, "model", "m", nil, "Model to run (repeatable; default from config)")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Output directory (default from config)")
	analyzeCmd.Flags().BoolVar(&skipFeedback, "no-feedback", false, "Skip the feedback pass")
	analyzeCmd.Flags().BoolVar(&skipDoctor, "no-doctor", false, "Skip the environment check")

	feedbackCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Output directory (default from config)")
}

func batchModels() []string {
	if len(analyzeModels) > 0 {
		return analyzeModels
	}
	return cfg.Ollama.Models
}

func outputDir() string {
	if analyzeOutput != "" {
		return analyzeOutput
	}
	return resolvePath(cfg.Analysis.OutputDir)
}

// loadScenarios parses every corpus document, dropping files that contain
// no questions.
func loadScenarios(dir string) ([]document.Scenario, error) {
	docs, err := document.NewLoader(dir).LoadTextFiles()
	if err != nil {
		return nil, err
	}

	var scenarios []document.Scenario
	for _, doc := range docs {
		sc := document.ParseScenario(doc)
		if len(sc.Questions) == 0 {
			logger.Warn("skipping document with no questions", zap.String("file", doc.Filename))
			continue
		}
		scenarios = append(scenarios, sc)
	}
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios with questions found in %s", dir)
	}
	return scenarios, nil
}

// newMeteredGenerator wires the Ollama client with metrics recording and,
// when enabled, the Prometheus exporter. The returned cleanup stops the
// exporter.
func newMeteredGenerator(collector *metrics.Collector) (*runner.MeteredGenerator, *ollama.Client, func()) {
	client := ollama.New(cfg.Ollama.Host, cfg.GetGenerateTimeout())

	var bridge *metrics.PrometheusBridge
	cleanup := func() {}
	if cfg.Metrics.PrometheusEnabled {
		bridge = metrics.NewPrometheusBridge()
		if err := bridge.Start(cfg.Metrics.PrometheusPort); err != nil {
			logger.Warn("prometheus exporter disabled", zap.Error(err))
			bridge = nil
		} else {
			b := bridge
			cleanup = func() { b.Stop(context.Background()) }
		}
	}

	return &runner.MeteredGenerator{Gen: client, Collector: collector, Bridge: bridge}, client, cleanup
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	models := batchModels()
	if len(models) == 0 {
		return fmt.Errorf("no models configured")
	}

	scenarios, err := loadScenarios(docsDir(args))
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	collector := newCollector()
	gen, client, cleanup := newMeteredGenerator(collector)
	defer cleanup()

	if !skipDoctor {
		diag := client.Doctor(ctx, ollama.DoctorOptions{
			Models:     models,
			EmbedModel: cfg.Ollama.EmbedModel,
			AutoPull:   cfg.Ollama.AutoPull,
		})
		fmt.Println(diag.Summary())
		if !diag.Healthy {
			return fmt.Errorf("environment check failed; fix the issues above or pass --no-doctor")
		}
	}

	opts := ollama.DefaultOptions()
	analyzer := analysis.NewAnalyzer(gen, newRetriever(s), opts, cfg.Retrieval.TopK)
	analyzer.SetMetrics(collector)
	reviewer := analysis.NewReviewer(gen, opts)

	r := runner.New(analyzer, reviewer, collector, runner.Config{
		Models:    models,
		OutputDir: outputDir(),
		Cooldown:  cfg.GetCooldown(),
		Feedback:  cfg.Analysis.Feedback && !skipFeedback,
	})

	fmt.Printf("Analyzing %d scenarios with %d models...\n", len(scenarios), len(models))
	report, err := r.Run(ctx, scenarios)
	if err != nil {
		return err
	}

	fmt.Printf("\nRun %s finished in %.1fs: %d analyzed, %d failed, %d feedback reports\n",
		report.RunID, report.Duration.Seconds(), report.Analyzed, report.Failed, report.Feedbacks)
	if summary, err := metrics.LoadSummary(resolvePath(cfg.Metrics.Dir)); err == nil {
		fmt.Println()
		fmt.Println(summary.Report())
	}
	return nil
}

func runFeedback(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dir := outputDir()
	analyses, err := analysis.LoadSaved(dir)
	if err != nil {
		return err
	}

	collector := newCollector()
	gen, _, cleanup := newMeteredGenerator(collector)
	defer cleanup()

	reviewer := analysis.NewReviewer(gen, ollama.DefaultOptions())

	written := 0
	for source, byModel := range analyses {
		for model, own := range byModel {
			var peers []*analysis.ScenarioAnalysis
			for peerModel, peer := range byModel {
				if peerModel != model {
					peers = append(peers, peer)
				}
			}

			feedback, err := reviewer.Review(ctx, own, peers)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Error("feedback failed",
					zap.String("model", model), zap.String("source", source), zap.Error(err))
				if collector != nil {
					collector.RecordError("feedback", "generate", err.Error())
				}
				continue
			}

			path, err := reviewer.SaveFeedback(own, feedback, dir)
			if err != nil {
				logger.Error("failed to save feedback", zap.Error(err))
				continue
			}
			fmt.Printf("Wrote %s\n", path)
			written++
		}
	}

	fmt.Printf("Feedback pass complete: %d reports\n", written)
	return nil
}
