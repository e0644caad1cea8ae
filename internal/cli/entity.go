package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/internal/models"
)

var (
	entProject      string
	entAttrs        []string
	entSeq          int
	entParticipants []string
	entLocation     string
	entRelations    []string
	entDepth        int
)

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Manage knowledge graph entities",
}

var entityAddCmd = &cobra.Command{
	Use:   "add <type> <key>",
	Short: "Create or update a node",
	Long: `Create or update a knowledge graph node. Types: character,
location, item, rule, event. Upserts are idempotent: repeating the same
attributes changes nothing, different attributes bump the node version.

Event nodes take --seq plus optional --participants and --location,
which also wire the participation and occurrence edges.

Examples:
  lorekeep entity add character mira -p tidebound -a role=protagonist
  lorekeep entity add rule no_resurrection -p tidebound -a "text=The dead stay dead"
  lorekeep entity add event death_of_lihang -p tidebound --seq 12 \
      --participants lihang --location harbor -a dead=true`,
	Args: cobra.ExactArgs(2),
	RunE: runEntityAdd,
}

var entityLinkCmd = &cobra.Command{
	Use:   "link <source-id> <target-id> <relation>",
	Short: "Create an edge between two nodes",
	Long: `Create a directed relation between two existing nodes. Node ids
use the project:type:key form. Fails if either endpoint is missing.

Example:
  lorekeep entity link tidebound:character:mira tidebound:character:dax RIVAL_OF`,
	Args: cobra.ExactArgs(3),
	RunE: runEntityLink,
}

var entityShowCmd = &cobra.Command{
	Use:   "show <type> <key>",
	Short: "Show a node and its neighborhood",
	Args:  cobra.ExactArgs(2),
	RunE:  runEntityShow,
}

func init() {
	for _, c := range []*cobra.Command{entityAddCmd, entityLinkCmd, entityShowCmd} {
		c.Flags().StringVarP(&entProject, "project", "p", "", "project id (required)")
		_ = c.MarkFlagRequired("project")
	}
	entityAddCmd.Flags().StringSliceVarP(&entAttrs, "attr", "a", nil, "attributes as key=value")
	entityAddCmd.Flags().IntVar(&entSeq, "seq", -1, "sequence position (event nodes)")
	entityAddCmd.Flags().StringSliceVar(&entParticipants, "participants", nil, "participant character keys (event nodes)")
	entityAddCmd.Flags().StringVar(&entLocation, "location", "", "location key (event nodes)")
	entityShowCmd.Flags().IntVar(&entDepth, "depth", 2, "traversal depth")

	entityCmd.AddCommand(entityAddCmd)
	entityCmd.AddCommand(entityLinkCmd)
	entityCmd.AddCommand(entityShowCmd)
}

func parseAttrFlags(pairs []string) map[string]any {
	if len(pairs) == 0 {
		return nil
	}
	attrs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			attrs[pair] = true
			continue
		}
		switch v {
		case "true":
			attrs[k] = true
		case "false":
			attrs[k] = false
		default:
			attrs[k] = v
		}
	}
	return attrs
}

func runEntityAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := getEngine(ctx, false)
	if err != nil {
		return err
	}

	typ := models.NodeType(args[0])
	key := args[1]
	attrs := parseAttrFlags(entAttrs)

	var node *models.KnowledgeNode
	if typ == models.NodeEvent && entSeq >= 0 {
		node, err = eng.graph.AddEvent(ctx, entProject, key, entSeq, entParticipants, entLocation, attrs)
	} else {
		node, err = eng.graph.UpsertNode(ctx, entProject, typ, key, attrs)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Upserted %s (version %d)\n", models.NodeID(entProject, typ, key), node.Version)
	return nil
}

func runEntityLink(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := getEngine(ctx, false)
	if err != nil {
		return err
	}

	if err := eng.graph.AddEdge(ctx, args[0], args[1], args[2], nil); err != nil {
		return err
	}
	fmt.Printf("Linked %s -[%s]-> %s\n", args[0], args[2], args[1])
	return nil
}

func runEntityShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := getEngine(ctx, false)
	if err != nil {
		return err
	}

	sub, err := eng.graph.QuerySubgraph(ctx, entProject, models.NodeType(args[0]), args[1], entDepth)
	if err != nil {
		return err
	}

	fmt.Printf("Nodes (%d):\n", len(sub.Nodes))
	for _, n := range sub.Nodes {
		fmt.Printf("  %s (version %d)\n", models.NodeID(n.Project, n.Type, n.Key), n.Version)
		if verbose {
			for k, v := range n.Attributes {
				fmt.Printf("    %s = %v\n", k, v)
			}
		}
	}
	fmt.Printf("Edges (%d):\n", len(sub.Edges))
	for _, e := range sub.Edges {
		fmt.Printf("  %s -[%s]-> %s\n", e.Source, e.Relation, e.Target)
	}
	return nil
}
