package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lorekeep/lorekeep/internal/models"
)

// SubgraphInput defines the input schema for the subgraph tool.
type SubgraphInput struct {
	Project string `json:"project" jsonschema:"required,Project id"`
	Type    string `json:"type" jsonschema:"required,Root node type"`
	Key     string `json:"key" jsonschema:"required,Root node key"`
	Depth   int    `json:"depth,omitempty" jsonschema:"Traversal depth 1-5, default 2"`
}

// NewSubgraphHandler creates the subgraph tool handler. Returns the
// neighborhood of an entity for inspection or prompt grounding.
func NewSubgraphHandler(deps *Dependencies) mcp.ToolHandlerFor[SubgraphInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SubgraphInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.Project == "" {
			return ErrorResult("Project is required", "Set the project id"), nil, nil
		}
		typ := models.NodeType(input.Type)
		if !models.ValidNodeType(typ) {
			return ErrorResult("Unknown node type: "+input.Type,
				"Use character, location, item, rule or event"), nil, nil
		}
		if input.Key == "" {
			return ErrorResult("Key is required", "Provide the root entity key"), nil, nil
		}
		depth := input.Depth
		if depth <= 0 {
			depth = 2
		}

		sub, err := deps.Graph.QuerySubgraph(ctx, input.Project, typ, input.Key, depth)
		if err != nil {
			deps.Logger.Error("subgraph query failed",
				"project", input.Project, "root", input.Key, "error", err)
			return ErrorResult("Subgraph query failed: "+err.Error(), ""), nil, nil
		}

		jsonBytes, _ := json.MarshalIndent(sub, "", "  ")
		return TextResult(string(jsonBytes)), nil, nil
	}
}
