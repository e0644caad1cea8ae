package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lorekeep/lorekeep/internal/models"
)

// RememberInput defines the input schema for the remember tool.
type RememberInput struct {
	Project  string         `json:"project" jsonschema:"required,Project id"`
	Kind     string         `json:"kind,omitempty" jsonschema:"Memory kind: summary, event, character_state, plot_point, worldbuilding (default event)"`
	Content  string         `json:"content" jsonschema:"required,The memory text"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"Opaque metadata; node_refs links graph nodes"`
	UpdateID string         `json:"update_id,omitempty" jsonschema:"Append a new version to this entry instead of creating one"`
}

// RememberResult is the response from the remember tool.
type RememberResult struct {
	ID      string `json:"id"`
	Action  string `json:"action"` // "created" or "versioned"
	Kind    string `json:"kind"`
	Project string `json:"project"`
}

// NewRememberHandler creates the remember tool handler. Stores a memory
// entry with an auto-generated embedding, or appends a version to an
// existing entry.
func NewRememberHandler(deps *Dependencies) mcp.ToolHandlerFor[RememberInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RememberInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.Project == "" {
			return ErrorResult("Project is required", "Set the project id"), nil, nil
		}
		if input.Content == "" {
			return ErrorResult("Content is required", "Provide the memory text"), nil, nil
		}

		kind := input.Kind
		if kind == "" {
			kind = string(models.KindEvent)
		}

		var (
			id     string
			action string
			err    error
		)
		if input.UpdateID != "" {
			id, err = deps.Memory.Update(ctx, input.UpdateID, input.Content)
			action = "versioned"
		} else {
			id, err = deps.Memory.Add(ctx, models.MemoryInput{
				Project:  input.Project,
				Kind:     models.MemoryKind(kind),
				Content:  input.Content,
				Metadata: input.Metadata,
			})
			action = "created"
		}
		if err != nil {
			deps.Logger.Error("remember failed", "project", input.Project, "error", err)
			return ErrorResult("Failed to store memory: "+err.Error(), ""), nil, nil
		}

		jsonBytes, _ := json.MarshalIndent(RememberResult{
			ID: id, Action: action, Kind: kind, Project: input.Project,
		}, "", "  ")
		deps.Logger.Info("remember completed", "project", input.Project, "id", id, "action", action)
		return TextResult(string(jsonBytes)), nil, nil
	}
}
