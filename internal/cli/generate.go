package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/internal/consistency"
	"github.com/lorekeep/lorekeep/internal/metrics"
	"github.com/lorekeep/lorekeep/internal/orchestrator"
)

var (
	genProject string
	genOutline string
	genPinned  []string
	genSeq     int
)

var generateCmd = &cobra.Command{
	Use:   "generate <instruction>",
	Short: "Generate a story segment with consistency checking",
	Long: `Generate one story segment. The engine assembles a context from
pinned facts, relevant memories and the recent window, calls the
generation provider, extracts candidate facts from the draft, and
checks them against the knowledge graph. Accepted segments are
committed atomically; blocked segments are reported with their
findings.

Examples:
  lorekeep generate "Mira confronts the harbormaster" -p tidebound --seq 12
  lorekeep generate "The duel begins" -p tidebound --seq 31 \
      --outline "Dax loses his sword but wins by trickery" \
      --pin "Magic always has a price"`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&genProject, "project", "p", "", "project id (required)")
	generateCmd.Flags().StringVar(&genOutline, "outline", "", "outline for this segment")
	generateCmd.Flags().StringSliceVar(&genPinned, "pin", nil, "facts that must stay in context")
	generateCmd.Flags().IntVar(&genSeq, "seq", 0, "narrative sequence position of the segment")
	_ = generateCmd.MarkFlagRequired("project")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := getEngine(ctx, true)
	if err != nil {
		return err
	}

	res, err := eng.orch.Run(ctx, orchestrator.Request{
		ID:          uuid.NewString(),
		Project:     genProject,
		Instruction: args[0],
		Outline:     genOutline,
		Pinned:      genPinned,
		Seq:         genSeq,
	})
	var blocked *consistency.BlockingError
	if errors.As(err, &blocked) {
		fmt.Printf("Generation blocked after %d attempts:\n", res.Attempts)
		for _, f := range blocked.Findings {
			fmt.Printf("  [%s/%s] %s\n", f.Severity, f.Kind, f.Description)
			for _, c := range f.Conflicts {
				fmt.Printf("      conflicts with %s\n", c)
			}
		}
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println(res.Text)
	if verbose {
		fmt.Printf("\n--\nentry: %s\ngraph version: %d\nattempts: %d\n",
			res.EntryID, res.GraphVersion, res.Attempts)
		for _, f := range res.Findings {
			fmt.Printf("finding [%s/%s]: %s\n", f.Severity, f.Kind, f.Description)
		}
		printTimings(eng.collector.Snapshot())
	}
	return nil
}

func printTimings(snap metrics.Snapshot) {
	for _, t := range []struct {
		name string
		op   *metrics.OperationSnapshot
	}{
		{"generate", snap.Generate},
		{"extract", snap.Extract},
		{"check", snap.ConsistencyCheck},
		{"embed", snap.Embedding},
		{"commit", snap.Commit},
	} {
		if t.op == nil {
			continue
		}
		fmt.Printf("%-8s %3d calls, avg %.0fms, max %dms\n",
			t.name, t.op.Count, t.op.AvgTimeMs, t.op.MaxTimeMs)
	}
}
