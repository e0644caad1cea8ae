package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/internal/models"
)

var (
	remProject string
	remKind    string
	remRefs    []string
	remUpdate  string
	remChapter int
	remTitle   string
)

var rememberCmd = &cobra.Command{
	Use:   "remember <content>",
	Short: "Add or update a memory entry",
	Long: `Store a piece of narrative memory. Kinds: summary, event,
character_state, plot_point, worldbuilding.

Use --refs to link the entry to knowledge graph nodes; depending on the
configured reference policy, unknown nodes are rejected or auto-created
as placeholders. Use --update to append a new version to an existing
entry instead of creating a fresh one.

Examples:
  lorekeep remember "Mira was born in the harbor district" -p tidebound -k character_state \
      --refs tidebound:character:mira
  lorekeep remember "Chapter 3: the storm scatters the fleet" -p tidebound -k summary \
      --chapter 3 --title "The Scattering"
  lorekeep remember "Mira's sword was lost in the river" -p tidebound --update <entry-id>`,
	Args: cobra.ExactArgs(1),
	RunE: runRemember,
}

func init() {
	rememberCmd.Flags().StringVarP(&remProject, "project", "p", "", "project id (required)")
	rememberCmd.Flags().StringVarP(&remKind, "kind", "k", "event", "memory kind")
	rememberCmd.Flags().StringSliceVar(&remRefs, "refs", nil, "referenced node ids (project:type:key)")
	rememberCmd.Flags().StringVar(&remUpdate, "update", "", "append a new version to this entry id")
	rememberCmd.Flags().IntVar(&remChapter, "chapter", 0, "chapter number for summary entries")
	rememberCmd.Flags().StringVar(&remTitle, "title", "", "chapter title for summary entries")
	_ = rememberCmd.MarkFlagRequired("project")
}

func runRemember(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := getEngine(ctx, true)
	if err != nil {
		return err
	}

	if remUpdate != "" {
		id, err := eng.store.Update(ctx, remUpdate, args[0])
		if err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		fmt.Printf("Appended version: %s\n", id)
		return nil
	}

	if remChapter > 0 {
		id, err := eng.store.AddChapterSummary(ctx, remProject, remChapter, remTitle, args[0])
		if err != nil {
			return fmt.Errorf("add chapter summary: %w", err)
		}
		fmt.Printf("Stored chapter summary: %s\n", id)
		return nil
	}

	in := models.MemoryInput{
		Project: remProject,
		Kind:    models.MemoryKind(remKind),
		Content: args[0],
	}
	if len(remRefs) > 0 {
		refs := make([]any, len(remRefs))
		for i, r := range remRefs {
			refs[i] = r
		}
		in.Metadata = map[string]any{"node_refs": refs}
	}

	id, err := eng.store.Add(ctx, in)
	if err != nil {
		return fmt.Errorf("add entry: %w", err)
	}
	fmt.Printf("Stored: %s\n", id)
	return nil
}
