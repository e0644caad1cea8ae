package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/internal/db"
	"github.com/lorekeep/lorekeep/internal/memory"
	"github.com/lorekeep/lorekeep/internal/models"
)

var (
	recProject string
	recKinds   []string
	recTopK    int
	recSince   string
)

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Search memories by semantic similarity",
	Long: `Search a project's memories. Results are ranked by vector
similarity with a recency tie-break; --kind and --since narrow the
candidate set before ranking.

Examples:
  lorekeep recall "what happened at the harbor" -p tidebound
  lorekeep recall "mira's injuries" -p tidebound --kind character_state,event -n 10
  lorekeep recall "recent plot threads" -p tidebound --since 2026-08-01`,
	Args: cobra.ExactArgs(1),
	RunE: runRecall,
}

func init() {
	recallCmd.Flags().StringVarP(&recProject, "project", "p", "", "project id (required)")
	recallCmd.Flags().StringSliceVar(&recKinds, "kind", nil, "restrict to memory kinds")
	recallCmd.Flags().IntVarP(&recTopK, "limit", "n", 5, "maximum results")
	recallCmd.Flags().StringVar(&recSince, "since", "", "only entries created after this date (YYYY-MM-DD)")
	_ = recallCmd.MarkFlagRequired("project")
}

func runRecall(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := getEngine(ctx, true)
	if err != nil {
		return err
	}

	filter := db.MemoryFilter{}
	for _, k := range recKinds {
		filter.Kinds = append(filter.Kinds, models.MemoryKind(k))
	}
	if recSince != "" {
		from, err := time.Parse("2006-01-02", recSince)
		if err != nil {
			return fmt.Errorf("parse --since: %w", err)
		}
		filter.From = &from
	}

	results, err := eng.store.Query(ctx, recProject, args[0], memory.QueryOptions{
		Filter: filter,
		TopK:   recTopK,
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matching memories.")
		return nil
	}

	for i, e := range results {
		id, _ := models.RecordIDString(e.ID)
		fmt.Printf("%d. [%s] %.3f %s\n", i+1, e.Kind, e.Similarity, e.Content)
		if verbose {
			fmt.Printf("   id=%s version=%d created=%s\n", id, e.Version, e.Created.Format(time.RFC3339))
		}
	}
	return nil
}
