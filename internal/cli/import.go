package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/internal/models"
	"github.com/lorekeep/lorekeep/internal/parser"
)

var (
	importProject   string
	importSummarize bool
)

var importCmd = &cobra.Command{
	Use:   "import <manuscript.md>",
	Short: "Import an existing manuscript into the memory store",
	Long: `Import parses a Markdown manuscript, splits each chapter into
prose segments at paragraph and sentence boundaries, and stores every
segment as a memory entry with its embedding.

Entity references written as [[type:key]] in the prose are linked to
knowledge graph nodes; under the placeholder reference policy, unknown
entities are auto-created. With --summarize, each chapter also gets a
model-written chapter summary entry.

Example:
  lorekeep import manuscript.md -p tidebound --summarize`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importProject, "project", "p", "", "project id (required)")
	importCmd.Flags().BoolVar(&importSummarize, "summarize", false, "write a model-generated summary per chapter")
	_ = importCmd.MarkFlagRequired("project")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := getEngine(ctx, true)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read manuscript: %w", err)
	}

	manuscript, err := parser.ParseManuscript(string(raw))
	if err != nil {
		return fmt.Errorf("parse manuscript: %w", err)
	}
	if len(manuscript.Chapters) == 0 {
		return fmt.Errorf("no chapters found in %s", args[0])
	}
	if manuscript.Title != "" {
		fmt.Printf("Importing %q: %d chapters\n", manuscript.Title, len(manuscript.Chapters))
	}

	stored := 0
	for _, chapter := range manuscript.Chapters {
		segments := parser.SegmentProse(chapter.Content, parser.DefaultSegmentConfig())
		for _, seg := range segments {
			metadata := map[string]any{
				"chapter":  chapter.Number,
				"position": seg.Position,
			}
			if refs := parser.ExtractEntityRefs(seg.Text); len(refs) > 0 {
				ids := make([]any, len(refs))
				for i, r := range refs {
					ids[i] = importProject + ":" + r
				}
				metadata["node_refs"] = ids
			}

			_, err := eng.store.Add(ctx, models.MemoryInput{
				Project:  importProject,
				Kind:     models.KindEvent,
				Content:  parser.StripEntityRefs(seg.Text),
				Metadata: metadata,
			})
			if err != nil {
				return fmt.Errorf("store chapter %d segment %d: %w", chapter.Number, seg.Position, err)
			}
			stored++
		}

		if importSummarize && chapter.Content != "" {
			summary, err := eng.model.Summarize(ctx, "", parser.StripEntityRefs(chapter.Content), cfg.SummaryTokens)
			if err != nil {
				return fmt.Errorf("summarize chapter %d: %w", chapter.Number, err)
			}
			if _, err := eng.store.AddChapterSummary(ctx, importProject, chapter.Number, chapter.Title, summary); err != nil {
				return fmt.Errorf("store chapter %d summary: %w", chapter.Number, err)
			}
		}

		if verbose {
			fmt.Printf("  chapter %d (%s): %d segments\n", chapter.Number, chapter.Title, len(segments))
		}
	}

	fmt.Printf("Imported %d segments from %d chapters\n", stored, len(manuscript.Chapters))
	return nil
}
