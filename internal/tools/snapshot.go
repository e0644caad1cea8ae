package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SnapshotInput defines the input schema for the snapshot tool.
type SnapshotInput struct {
	Project string `json:"project" jsonschema:"required,Project id"`
}

// SnapshotResult is the response from the snapshot tool.
type SnapshotResult struct {
	ID           string `json:"id"`
	GraphVersion int    `json:"graph_version"`
	Nodes        int    `json:"nodes"`
	Edges        int    `json:"edges"`
}

// NewSnapshotHandler creates the snapshot tool handler. Persists a
// point-in-time copy of the project graph for later rollback.
func NewSnapshotHandler(deps *Dependencies) mcp.ToolHandlerFor[SnapshotInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SnapshotInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.Project == "" {
			return ErrorResult("Project is required", "Set the project id"), nil, nil
		}

		snap, err := deps.Graph.Snapshot(ctx, input.Project)
		if err != nil {
			deps.Logger.Error("snapshot failed", "project", input.Project, "error", err)
			return ErrorResult("Snapshot failed: "+err.Error(), ""), nil, nil
		}

		jsonBytes, _ := json.MarshalIndent(SnapshotResult{
			ID:           snap.ID,
			GraphVersion: snap.GraphVersion,
			Nodes:        len(snap.Nodes),
			Edges:        len(snap.Edges),
		}, "", "  ")
		deps.Logger.Info("snapshot taken", "project", input.Project, "snapshot", snap.ID)
		return TextResult(string(jsonBytes)), nil, nil
	}
}

// RollbackInput defines the input schema for the rollback tool.
type RollbackInput struct {
	SnapshotID string `json:"snapshot_id" jsonschema:"required,Snapshot id to restore"`
}

// NewRollbackHandler creates the rollback tool handler. Restores the graph
// to a previously persisted snapshot.
func NewRollbackHandler(deps *Dependencies) mcp.ToolHandlerFor[RollbackInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RollbackInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.SnapshotID == "" {
			return ErrorResult("Snapshot id is required", "Create one with the snapshot tool"), nil, nil
		}

		if err := deps.Graph.RollbackTo(ctx, input.SnapshotID); err != nil {
			deps.Logger.Error("rollback failed", "snapshot", input.SnapshotID, "error", err)
			return ErrorResult("Rollback failed: "+err.Error(), ""), nil, nil
		}

		deps.Logger.Info("graph rolled back", "snapshot", input.SnapshotID)
		return TextResult("Graph restored to snapshot " + input.SnapshotID), nil, nil
	}
}
