package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var pathMaxDepth int

// kgCmd groups knowledge graph subcommands.
var kgCmd = &cobra.Command{
	Use:   "kg",
	Short: "Inspect the knowledge graph",
	Long: `Inspect the entity graph extracted during ingestion.

Subcommands:
  show  - List entities, or the links of one entity
  path  - Find a path between two entities`,
}

var kgShowCmd = &cobra.Command{
	Use:   "show [entity]",
	Short: "List entities, or the links of one entity",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runKGShow,
}

var kgPathCmd = &cobra.Command{
	Use:   "path <from> <to>",
	Short: "Find a path between two entities",
	Args:  cobra.ExactArgs(2),
	RunE:  runKGPath,
}

func init() {
	kgPathCmd.Flags().IntVar(&pathMaxDepth, "max-depth", 5, "Maximum number of hops")

	kgCmd.AddCommand(kgShowCmd)
	kgCmd.AddCommand(kgPathCmd)
}

func runKGShow(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if len(args) == 0 {
		entities, err := s.Entities()
		if err != nil {
			return err
		}
		if len(entities) == 0 {
			fmt.Println("Knowledge graph is empty. Run ingest first.")
			return nil
		}
		sort.Strings(entities)
		fmt.Printf("%d entities:\n", len(entities))
		for _, e := range entities {
			fmt.Printf("  %s\n", e)
		}
		return nil
	}

	entity := args[0]
	links, err := s.QueryLinks(entity, "both")
	if err != nil {
		return err
	}
	if len(links) == 0 {
		fmt.Printf("No links for %q.\n", entity)
		return nil
	}

	fmt.Printf("%d links for %q:\n", len(links), entity)
	for _, l := range links {
		fmt.Printf("  %s -[%s %.2f]-> %s\n", l.EntityA, l.Relation, l.Weight, l.EntityB)
	}
	return nil
}

func runKGPath(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	path, err := s.TraversePath(args[0], args[1], pathMaxDepth)
	if err != nil {
		return err
	}

	fmt.Printf("Path (%d hops):\n", len(path))
	for _, l := range path {
		fmt.Printf("  %s -[%s]-> %s\n", l.EntityA, l.Relation, l.EntityB)
	}
	return nil
}
