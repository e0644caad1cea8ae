package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lorekeep/lorekeep/internal/models"
)

// LinkInput defines the input schema for the link tool.
type LinkInput struct {
	Project    string         `json:"project" jsonschema:"required,Project id"`
	SourceType string         `json:"source_type" jsonschema:"required,Source node type"`
	SourceKey  string         `json:"source_key" jsonschema:"required,Source node key"`
	TargetType string         `json:"target_type" jsonschema:"required,Target node type"`
	TargetKey  string         `json:"target_key" jsonschema:"required,Target node key"`
	Relation   string         `json:"relation" jsonschema:"required,Relation: PARTICIPATED_IN, OCCURRED_AT, LOCATED_IN, OWNS, KNOWS"`
	Attributes map[string]any `json:"attributes,omitempty" jsonschema:"Opaque relation attributes"`
}

// NewLinkHandler creates the link tool handler. Relates two existing
// knowledge nodes; both endpoints must already exist.
func NewLinkHandler(deps *Dependencies) mcp.ToolHandlerFor[LinkInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input LinkInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.Project == "" {
			return ErrorResult("Project is required", "Set the project id"), nil, nil
		}
		srcType := models.NodeType(input.SourceType)
		tgtType := models.NodeType(input.TargetType)
		if !models.ValidNodeType(srcType) || !models.ValidNodeType(tgtType) {
			return ErrorResult("Unknown node type",
				"Use character, location, item, rule or event"), nil, nil
		}
		if input.SourceKey == "" || input.TargetKey == "" || input.Relation == "" {
			return ErrorResult("Source, target and relation are required", ""), nil, nil
		}

		sourceID := models.NodeID(input.Project, srcType, input.SourceKey)
		targetID := models.NodeID(input.Project, tgtType, input.TargetKey)
		if err := deps.Graph.AddEdge(ctx, sourceID, targetID, input.Relation, input.Attributes); err != nil {
			deps.Logger.Error("link failed",
				"source", sourceID, "target", targetID, "relation", input.Relation, "error", err)
			return ErrorResult("Failed to link entities: "+err.Error(), ""), nil, nil
		}

		return TextResult("Linked " + sourceID + " -[" + input.Relation + "]-> " + targetID), nil, nil
	}
}
