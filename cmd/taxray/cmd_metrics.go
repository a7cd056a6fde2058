package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"taxray/internal/metrics"

	"github.com/spf13/cobra"
)

var servePort int

// metricsCmd groups metrics subcommands.
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "View and export run metrics",
	Long: `View the metrics recorded during analysis runs.

Subcommands:
  report     - Print per-model run statistics
  dashboard  - Live terminal dashboard
  serve      - Expose Prometheus metrics over HTTP`,
	RunE: runMetricsReport,
}

var metricsReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print per-model run statistics",
	RunE:  runMetricsReport,
}

var metricsDashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Live terminal dashboard of model statistics",
	RunE:  runMetricsDashboard,
}

var metricsServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve Prometheus metrics until interrupted",
	RunE:  runMetricsServe,
}

func init() {
	metricsServeCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port (default from config)")

	metricsCmd.AddCommand(metricsReportCmd)
	metricsCmd.AddCommand(metricsDashboardCmd)
	metricsCmd.AddCommand(metricsServeCmd)
}

func runMetricsReport(cmd *cobra.Command, args []string) error {
	summary, err := metrics.LoadSummary(resolvePath(cfg.Metrics.Dir))
	if err != nil {
		return err
	}
	fmt.Println(summary.Report())
	return nil
}

func runMetricsDashboard(cmd *cobra.Command, args []string) error {
	program := metrics.NewDashboard(resolvePath(cfg.Metrics.Dir))
	_, err := program.Run()
	return err
}

func runMetricsServe(cmd *cobra.Command, args []string) error {
	port := servePort
	if port <= 0 {
		port = cfg.Metrics.PrometheusPort
	}

	bridge := metrics.NewPrometheusBridge()
	if err := bridge.Start(port); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("Serving metrics on :%d/metrics (Ctrl+C to stop)\n", port)
	<-ctx.Done()
	return bridge.Stop(context.Background())
}
