package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var snapProject string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture a graph snapshot for rollback and audit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		eng, err := getEngine(ctx, false)
		if err != nil {
			return err
		}
		snap, err := eng.graph.Snapshot(ctx, snapProject)
		if err != nil {
			return err
		}
		fmt.Printf("Snapshot %s (graph version %d, %d nodes, %d edges) taken at %s\n",
			snap.ID, snap.GraphVersion, len(snap.Nodes), len(snap.Edges),
			snap.TakenAt.Format(time.RFC3339))
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <snapshot-id>",
	Short: "Restore the graph to a prior snapshot",
	Long: `Restore a project's knowledge graph to the state recorded in a
snapshot. Nodes and edges created after the snapshot are discarded;
memory entries are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		eng, err := getEngine(ctx, false)
		if err != nil {
			return err
		}
		if err := eng.graph.RollbackTo(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Rolled back to snapshot %s\n", args[0])
		return nil
	},
}

func init() {
	snapshotCmd.Flags().StringVarP(&snapProject, "project", "p", "", "project id (required)")
	_ = snapshotCmd.MarkFlagRequired("project")
}
