package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lorekeep/lorekeep/internal/models"
)

// EntityInput defines the input schema for the entity tool.
type EntityInput struct {
	Project      string         `json:"project" jsonschema:"required,Project id"`
	Type         string         `json:"type" jsonschema:"required,Node type: character, location, item, rule, event"`
	Key          string         `json:"key" jsonschema:"required,Stable entity key, e.g. a character name slug"`
	Attributes   map[string]any `json:"attributes,omitempty" jsonschema:"Narrative attributes; dead and location have engine meaning"`
	Seq          int            `json:"seq,omitempty" jsonschema:"Event sequence number (events only)"`
	Participants []string       `json:"participants,omitempty" jsonschema:"Character keys participating (events only)"`
	Location     string         `json:"location,omitempty" jsonschema:"Location key where the event occurs (events only)"`
}

// EntityResult is the response from the entity tool.
type EntityResult struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Key     string `json:"key"`
	Version int    `json:"version"`
}

// NewEntityHandler creates the entity tool handler. Upserts a knowledge
// node; events additionally get their participation and location edges.
func NewEntityHandler(deps *Dependencies) mcp.ToolHandlerFor[EntityInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input EntityInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.Project == "" {
			return ErrorResult("Project is required", "Set the project id"), nil, nil
		}
		if input.Key == "" {
			return ErrorResult("Key is required", "Provide a stable entity key"), nil, nil
		}
		typ := models.NodeType(input.Type)
		if !models.ValidNodeType(typ) {
			return ErrorResult("Unknown node type: "+input.Type,
				"Use character, location, item, rule or event"), nil, nil
		}

		var (
			node *models.KnowledgeNode
			err  error
		)
		if typ == models.NodeEvent {
			node, err = deps.Graph.AddEvent(ctx, input.Project, input.Key,
				input.Seq, input.Participants, input.Location, input.Attributes)
		} else {
			node, err = deps.Graph.UpsertNode(ctx, input.Project, typ, input.Key, input.Attributes)
		}
		if err != nil {
			deps.Logger.Error("entity upsert failed",
				"project", input.Project, "type", input.Type, "key", input.Key, "error", err)
			return ErrorResult("Failed to store entity: "+err.Error(), ""), nil, nil
		}

		jsonBytes, _ := json.MarshalIndent(EntityResult{
			ID:      models.NodeID(node.Project, node.Type, node.Key),
			Type:    string(node.Type),
			Key:     node.Key,
			Version: node.Version,
		}, "", "  ")
		return TextResult(string(jsonBytes)), nil, nil
	}
}
