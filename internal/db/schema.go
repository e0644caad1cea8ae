package db

import "fmt"

// DefaultEmbedDimension matches the default all-minilm:l6-v2 embedding model.
const DefaultEmbedDimension = 384

// SchemaSQL returns the schema initialization SQL. The HNSW index dimension
// is fixed at schema creation time and must match the embedding provider.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(`
    -- ==========================================================================
    -- MEMORY ENTRY TABLE (long-term memory, versioned)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS memory_entry SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project ON memory_entry TYPE string;
    DEFINE FIELD IF NOT EXISTS kind ON memory_entry TYPE string
        ASSERT $value IN ["summary", "event", "character_state", "plot_point", "worldbuilding"];
    DEFINE FIELD IF NOT EXISTS content ON memory_entry TYPE string;
    DEFINE FIELD IF NOT EXISTS metadata ON memory_entry TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS embedding ON memory_entry TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS version ON memory_entry TYPE int DEFAULT 1;
    DEFINE FIELD IF NOT EXISTS prev ON memory_entry TYPE option<string>;
    -- root is the id of the first version in the chain; reads resolve the
    -- latest version of a logical entry via (root, latest)
    DEFINE FIELD IF NOT EXISTS root ON memory_entry TYPE string;
    DEFINE FIELD IF NOT EXISTS latest ON memory_entry TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS created ON memory_entry TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS accessed ON memory_entry TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS access_count ON memory_entry TYPE int DEFAULT 0;

    DEFINE INDEX IF NOT EXISTS memory_project ON memory_entry FIELDS project;
    DEFINE INDEX IF NOT EXISTS memory_kind ON memory_entry FIELDS project, kind;
    DEFINE INDEX IF NOT EXISTS memory_root ON memory_entry FIELDS root;
    DEFINE INDEX IF NOT EXISTS memory_embedding ON memory_entry FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;

    -- ==========================================================================
    -- KNOWLEDGE NODE TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS node SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project ON node TYPE string;
    DEFINE FIELD IF NOT EXISTS type ON node TYPE string
        ASSERT $value IN ["character", "location", "item", "rule", "event"];
    DEFINE FIELD IF NOT EXISTS key ON node TYPE string;
    DEFINE FIELD IF NOT EXISTS attributes ON node TYPE option<object> FLEXIBLE;
    -- the attribute set the current version replaced, kept for audit
    DEFINE FIELD IF NOT EXISTS prev_attributes ON node TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS version ON node TYPE int DEFAULT 1;
    DEFINE FIELD IF NOT EXISTS created ON node TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated ON node TYPE datetime DEFAULT time::now();

    -- (project, type, key) uniquely identifies a node
    DEFINE INDEX IF NOT EXISTS node_identity ON node FIELDS project, type, key UNIQUE;
    DEFINE INDEX IF NOT EXISTS node_project ON node FIELDS project;

    -- ==========================================================================
    -- EDGE TABLE (typed relations, endpoints enforced by RELATE)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS edge TYPE RELATION IN node OUT node SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS relation ON edge TYPE string;
    DEFINE FIELD IF NOT EXISTS attributes ON edge TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created ON edge TYPE datetime DEFAULT time::now();
    -- (in, out, relation) prevents duplicate edges; direction matters, so
    -- mutual relations like A->KNOWS->B and B->KNOWS->A both exist
    DEFINE FIELD IF NOT EXISTS unique_key ON edge VALUE <string>string::concat(<string>in, "|", <string>out, "|", relation);
    DEFINE INDEX IF NOT EXISTS unique_edge ON edge FIELDS unique_key UNIQUE;

    -- ==========================================================================
    -- SNAPSHOT TABLE (immutable full graph copies for rollback/audit)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS snapshot SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project ON snapshot TYPE string;
    DEFINE FIELD IF NOT EXISTS graph_version ON snapshot TYPE int;
    DEFINE FIELD IF NOT EXISTS taken_at ON snapshot TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS nodes ON snapshot TYPE array<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS edges ON snapshot TYPE array<object> FLEXIBLE;

    DEFINE INDEX IF NOT EXISTS snapshot_project ON snapshot FIELDS project;

    -- ==========================================================================
    -- PROJECT TABLE (per-project counters and settings)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS project SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS graph_version ON project TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS embed_dimension ON project TYPE int DEFAULT %d;
`, dimension, dimension)
}
