package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"taxray/internal/analysis"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

// showCmd renders a saved analysis report in the terminal.
var showCmd = &cobra.Command{
	Use:   "show <report>",
	Short: "Render a saved analysis report",
	Long: `Renders a saved analysis report as formatted markdown. The argument is
either a path or a filename inside the output directory, e.g.
llama3-8b_education.txt.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(resolvePath(cfg.Analysis.OutputDir), args[0])
	}

	a, err := analysis.ParseSaved(path)
	if err != nil {
		return err
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("failed to build renderer: %w", err)
	}

	out, err := renderer.Render(reportMarkdown(a))
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	fmt.Print(out)
	return nil
}

// reportMarkdown converts a report into markdown for terminal rendering.
func reportMarkdown(a *analysis.ScenarioAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s on %s\n\n", a.Model, a.Source)
	b.WriteString("## Scenario\n\n")
	b.WriteString(a.Scenario)
	b.WriteString("\n\n")

	for i, r := range a.Results {
		fmt.Fprintf(&b, "## Question %d\n\n%s\n\n", i+1, r.Question)
		fmt.Fprintf(&b, "**Answer:** %s\n\n", r.Answer)
	}

	fmt.Fprintf(&b, "*Completed in %.2f seconds*\n", a.TotalTime.Seconds())
	return b.String()
}
