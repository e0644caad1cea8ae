package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lorekeep/lorekeep/internal/consistency"
	"github.com/lorekeep/lorekeep/internal/models"
	"github.com/lorekeep/lorekeep/internal/orchestrator"
)

// GenerateInput defines the input schema for the generate tool.
type GenerateInput struct {
	Project     string   `json:"project" jsonschema:"required,Project id"`
	Instruction string   `json:"instruction" jsonschema:"required,What the next segment should contain"`
	Outline     string   `json:"outline,omitempty" jsonschema:"Outline for the upcoming segment"`
	Pinned      []string `json:"pinned,omitempty" jsonschema:"Facts that must appear in the assembled context"`
	Seq         int      `json:"seq,omitempty" jsonschema:"Narrative sequence number of the segment"`
}

// GenerateResult is the response from the generate tool.
type GenerateResult struct {
	RequestID string                      `json:"request_id"`
	State     string                      `json:"state"`
	Text      string                      `json:"text,omitempty"`
	EntryID   string                      `json:"entry_id,omitempty"`
	Attempts  int                         `json:"attempts"`
	Findings  []models.ConsistencyFinding `json:"findings,omitempty"`
}

// NewGenerateHandler creates the generate tool handler. Runs the full
// pipeline: context assembly, generation, consistency checking with
// retries, and an atomic commit of the accepted text.
func NewGenerateHandler(deps *Dependencies) mcp.ToolHandlerFor[GenerateInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GenerateInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.Project == "" {
			return ErrorResult("Project is required", "Set the project id"), nil, nil
		}
		if input.Instruction == "" {
			return ErrorResult("Instruction is required", "Describe the segment to generate"), nil, nil
		}

		res, err := deps.Orch.Run(ctx, orchestrator.Request{
			ID:          uuid.NewString(),
			Project:     input.Project,
			Instruction: input.Instruction,
			Outline:     input.Outline,
			Pinned:      input.Pinned,
			Seq:         input.Seq,
		})
		if err != nil {
			var blocked *consistency.BlockingError
			if errors.As(err, &blocked) {
				// Blocked output is a normal outcome: report the findings
				// instead of an opaque failure so the caller can adjust.
				out := GenerateResult{
					State:    string(orchestrator.StateBlocked),
					Findings: blocked.Findings,
				}
				if res != nil {
					out.RequestID = res.RequestID
					out.Attempts = res.Attempts
				}
				jsonBytes, _ := json.MarshalIndent(out, "", "  ")
				return TextResult(string(jsonBytes)), nil, nil
			}
			deps.Logger.Error("generation failed", "project", input.Project, "error", err)
			return ErrorResult("Generation failed: "+err.Error(), ""), nil, nil
		}

		jsonBytes, _ := json.MarshalIndent(GenerateResult{
			RequestID: res.RequestID,
			State:     string(res.State),
			Text:      res.Text,
			EntryID:   res.EntryID,
			Attempts:  res.Attempts,
			Findings:  res.Findings,
		}, "", "  ")
		deps.Logger.Info("generation completed",
			"project", input.Project, "request", res.RequestID, "attempts", res.Attempts)
		return TextResult(string(jsonBytes)), nil, nil
	}
}
