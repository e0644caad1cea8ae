package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lorekeep/lorekeep/internal/db"
	"github.com/lorekeep/lorekeep/internal/memory"
	"github.com/lorekeep/lorekeep/internal/models"
)

// RecallInput defines the input schema for the recall tool.
type RecallInput struct {
	Project string   `json:"project" jsonschema:"required,Project id"`
	Query   string   `json:"query" jsonschema:"required,The search query text"`
	Kinds   []string `json:"kinds,omitempty" jsonschema:"Restrict to memory kinds"`
	Limit   int      `json:"limit,omitempty" jsonschema:"Max results 1-50, default 5"`
}

// RecallEntry is one search hit without its embedding.
type RecallEntry struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Version    int            `json:"version"`
	Similarity float64        `json:"similarity"`
}

// RecallResult is the response from the recall tool.
type RecallResult struct {
	Entries []RecallEntry `json:"entries"`
	Count   int           `json:"count"`
}

// NewRecallHandler creates the recall tool handler. Searches memories by
// vector similarity with a recency tie-break.
func NewRecallHandler(deps *Dependencies) mcp.ToolHandlerFor[RecallInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RecallInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.Project == "" {
			return ErrorResult("Project is required", "Set the project id"), nil, nil
		}
		if input.Query == "" {
			return ErrorResult("Query cannot be empty", "Provide a search query"), nil, nil
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			return ErrorResult("Limit must be 1-50", "Reduce limit value"), nil, nil
		}

		var filter db.MemoryFilter
		for _, k := range input.Kinds {
			filter.Kinds = append(filter.Kinds, models.MemoryKind(k))
		}

		entries, err := deps.Memory.Query(ctx, input.Project, input.Query, memory.QueryOptions{
			Filter: filter,
			TopK:   limit,
		})
		if err != nil {
			deps.Logger.Error("recall failed", "project", input.Project, "error", err)
			return ErrorResult("Search failed: "+err.Error(), ""), nil, nil
		}

		result := RecallResult{Count: len(entries)}
		for _, e := range entries {
			id, _ := models.RecordIDString(e.ID)
			result.Entries = append(result.Entries, RecallEntry{
				ID:         id,
				Kind:       string(e.Kind),
				Content:    e.Content,
				Metadata:   e.Metadata,
				Version:    e.Version,
				Similarity: e.Similarity,
			})
		}

		jsonBytes, _ := json.MarshalIndent(result, "", "  ")
		return TextResult(string(jsonBytes)), nil, nil
	}
}
