package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"taxray/internal/ollama"

	"github.com/spf13/cobra"
)

var pullAll bool

// modelsCmd groups model management subcommands.
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage models on the Ollama server",
	Long: `Manage the models used for analysis.

Subcommands:
  list    - List installed models
  pull    - Download a model
  doctor  - Check the serving environment`,
	RunE: runModelsList,
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed models",
	RunE:  runModelsList,
}

var modelsPullCmd = &cobra.Command{
	Use:   "pull [model...]",
	Short: "Download one or more models",
	RunE:  runModelsPull,
}

var modelsDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the Ollama server and required models",
	RunE:  runModelsDoctor,
}

func init() {
	modelsPullCmd.Flags().BoolVar(&pullAll, "all", false, "Pull every configured model")

	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsPullCmd)
	modelsCmd.AddCommand(modelsDoctorCmd)
}

func runModelsList(cmd *cobra.Command, args []string) error {
	client := ollama.New(cfg.Ollama.Host, cfg.GetGenerateTimeout())

	models, err := client.ListModels(cmd.Context())
	if err != nil {
		return fmt.Errorf("cannot reach %s: %w", cfg.Ollama.Host, err)
	}
	if len(models) == 0 {
		fmt.Println("No models installed.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
	for _, m := range models {
		fmt.Fprintf(w, "%s\t%.1f GB\t%s\n",
			m.Name, float64(m.Size)/(1<<30), m.ModifiedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runModelsPull(cmd *cobra.Command, args []string) error {
	names := args
	if pullAll {
		names = append([]string{}, cfg.Ollama.Models...)
		if cfg.Ollama.EmbedModel != "" {
			names = append(names, cfg.Ollama.EmbedModel)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no models given; name models or pass --all")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, cfg.GetPullTimeout())
	defer cancelTimeout()

	client := ollama.New(cfg.Ollama.Host, cfg.GetGenerateTimeout())
	for _, name := range names {
		fmt.Printf("Pulling %s...\n", name)
		var lastStatus string
		err := client.Pull(ctx, name, func(p ollama.PullProgress) {
			if p.Total > 0 {
				fmt.Printf("\r  %s: %.0f%%", p.Status, 100*float64(p.Completed)/float64(p.Total))
			} else if p.Status != lastStatus {
				fmt.Printf("\r  %s", p.Status)
			}
			lastStatus = p.Status
		})
		fmt.Println()
		if err != nil {
			return fmt.Errorf("pull %s: %w", name, err)
		}
	}
	return nil
}

func runModelsDoctor(cmd *cobra.Command, args []string) error {
	client := ollama.New(cfg.Ollama.Host, cfg.GetGenerateTimeout())

	diag := client.Doctor(cmd.Context(), ollama.DoctorOptions{
		Models:     cfg.Ollama.Models,
		EmbedModel: cfg.Ollama.EmbedModel,
		AutoPull:   false,
	})
	fmt.Println(diag.Summary())
	if !diag.Healthy {
		return fmt.Errorf("environment is not ready")
	}
	return nil
}
