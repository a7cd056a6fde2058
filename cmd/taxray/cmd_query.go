package main

import (
	"fmt"
	"strings"
	"time"

	"taxray/internal/retrieval"

	"github.com/spf13/cobra"
)

var queryTopK int

// queryCmd runs a one-off hybrid retrieval against the store.
var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Retrieve passages for a query",
	Long: `Runs hybrid retrieval for the given query and prints the ranked
passages. Passages whose source document mentions an entity found in the
query are boosted by the knowledge graph.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "Number of passages to return (default from config)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := strings.Join(args, " ")

	topK := queryTopK
	if topK <= 0 {
		topK = cfg.Retrieval.TopK
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	collector := newCollector()

	start := time.Now()
	results, err := newRetriever(s).Retrieve(ctx, query, topK)
	elapsed := time.Since(start)
	if collector != nil {
		collector.RecordQuery("hybrid", query, len(results), elapsed, err == nil, err)
	}
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No matching passages.")
		return nil
	}

	fmt.Printf("Top %d passages (%.0fms):\n\n", len(results), elapsed.Seconds()*1000)
	fmt.Println(retrieval.FormatContext(results))
	return nil
}
