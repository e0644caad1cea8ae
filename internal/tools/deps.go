// Package tools provides MCP tool handlers and registration.
package tools

import (
	"context"
	"log/slog"

	"github.com/lorekeep/lorekeep/internal/graph"
	"github.com/lorekeep/lorekeep/internal/memory"
	"github.com/lorekeep/lorekeep/internal/models"
	"github.com/lorekeep/lorekeep/internal/orchestrator"
)

// MemoryStore is the memory surface the tools expose.
type MemoryStore interface {
	Add(ctx context.Context, in models.MemoryInput) (string, error)
	Update(ctx context.Context, entryID, newContent string) (string, error)
	Query(ctx context.Context, project, text string, opts memory.QueryOptions) ([]models.MemoryEntry, error)
}

// GraphService is the knowledge graph surface the tools expose.
type GraphService interface {
	UpsertNode(ctx context.Context, project string, typ models.NodeType, key string, attributes map[string]any) (*models.KnowledgeNode, error)
	AddEvent(ctx context.Context, project, key string, seq int, participants []string, location string, attributes map[string]any) (*models.KnowledgeNode, error)
	AddEdge(ctx context.Context, sourceID, targetID, relation string, attributes map[string]any) error
	QuerySubgraph(ctx context.Context, project string, rootType models.NodeType, rootKey string, depth int) (*models.Subgraph, error)
	Snapshot(ctx context.Context, project string) (*models.GraphSnapshot, error)
	RollbackTo(ctx context.Context, snapshotID string) error
}

// Generator runs generation requests through the pipeline.
type Generator interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

var (
	_ MemoryStore  = (*memory.Store)(nil)
	_ GraphService = (*graph.Service)(nil)
	_ Generator    = (*orchestrator.Orchestrator)(nil)
)

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Memory MemoryStore
	Graph  GraphService
	Orch   Generator
	Logger *slog.Logger
}
