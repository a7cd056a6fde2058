package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var resetForce bool

// statsCmd prints passage store statistics.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show passage store statistics",
	RunE:  runStats,
}

// reembedCmd regenerates missing embeddings.
var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Generate embeddings for passages that are missing them",
	Long: `Regenerates embeddings for every stored passage that has none, using
the configured embedding engine. Run this after switching providers or
after ingesting while the engine was unreachable.`,
	RunE: runReembed,
}

// resetCmd wipes the store.
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all passages and knowledge graph links",
	RunE:  runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip the confirmation prompt")
}

func runStats(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Stats()
	if err != nil {
		return err
	}

	fmt.Println("Passage store")
	fmt.Printf("  passages:         %v\n", stats["passages"])
	fmt.Printf("  with embeddings:  %v\n", stats["with_embeddings"])
	fmt.Printf("  sources:          %v\n", stats["sources"])
	fmt.Printf("  graph links:      %v\n", stats["graph_links"])
	fmt.Printf("  embedding engine: %v\n", stats["embedding_engine"])
	fmt.Printf("  vector extension: %v\n", stats["vector_ext"])
	return nil
}

func runReembed(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.ReembedAll(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Re-embedded %d passages\n", n)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetForce {
		fmt.Print("This deletes all passages and graph links. Continue? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Reset(); err != nil {
		return err
	}
	fmt.Println("Store reset.")
	return nil
}
