package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
// This is called from the serve command after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	// Ping tool - transport liveness check
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ping",
		Description: "Test tool - responds with pong or echoes input",
	}, NewPingHandler(deps))

	// Remember tool - store or version a memory entry
	mcp.AddTool(server, &mcp.Tool{
		Name:        "remember",
		Description: "Store a narrative memory with an auto-generated embedding, or append a new version to an existing entry",
	}, NewRememberHandler(deps))

	// Recall tool - similarity search over memories
	mcp.AddTool(server, &mcp.Tool{
		Name:        "recall",
		Description: "Search stored memories by semantic similarity, optionally filtered by kind",
	}, NewRecallHandler(deps))

	// Entity tool - upsert knowledge graph nodes
	mcp.AddTool(server, &mcp.Tool{
		Name:        "entity",
		Description: "Create or update a knowledge graph entity (character, location, item, rule or event)",
	}, NewEntityHandler(deps))

	// Link tool - relate two entities
	mcp.AddTool(server, &mcp.Tool{
		Name:        "link",
		Description: "Create a typed relation between two existing entities",
	}, NewLinkHandler(deps))

	// Subgraph tool - bounded neighborhood traversal
	mcp.AddTool(server, &mcp.Tool{
		Name:        "subgraph",
		Description: "Retrieve the neighborhood of an entity up to a bounded depth",
	}, NewSubgraphHandler(deps))

	// Generate tool - the full generation pipeline
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate",
		Description: "Generate the next narrative segment: assemble context, draft, check consistency and commit",
	}, NewGenerateHandler(deps))

	// Snapshot and rollback tools - graph recovery points
	mcp.AddTool(server, &mcp.Tool{
		Name:        "snapshot",
		Description: "Persist a point-in-time snapshot of the project knowledge graph",
	}, NewSnapshotHandler(deps))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "rollback",
		Description: "Restore the knowledge graph to a previously taken snapshot",
	}, NewRollbackHandler(deps))
}
