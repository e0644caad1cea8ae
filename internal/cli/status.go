package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusProject string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a project's graph state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		eng, err := getEngine(ctx, false)
		if err != nil {
			return err
		}

		view, err := eng.graph.View(ctx, statusProject)
		if err != nil {
			return err
		}

		fmt.Printf("Project:       %s\n", statusProject)
		fmt.Printf("Graph version: %d\n", view.GraphVersion)
		fmt.Printf("Nodes:         %d\n", len(view.Nodes))
		fmt.Printf("Edges:         %d\n", len(view.Edges))

		if verbose {
			byType := map[string]int{}
			for _, n := range view.Nodes {
				byType[string(n.Type)]++
			}
			for typ, count := range byType {
				fmt.Printf("  %-12s %d\n", typ, count)
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusProject, "project", "p", "", "project id (required)")
	_ = statusCmd.MarkFlagRequired("project")
}
