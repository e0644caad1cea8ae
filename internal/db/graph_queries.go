package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/lorekeep/lorekeep/internal/models"
)

// edgeRow is the wire shape for edges with endpoint ids flattened to the
// composite node id strings.
type edgeRow struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Relation   string         `json:"relation"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Created    time.Time      `json:"created,omitempty"`
}

// GetNode fetches a node by its (project, type, key) identity.
// Returns nil when absent.
func (c *Client) GetNode(ctx context.Context, project string, typ models.NodeType, key string) (*models.KnowledgeNode, error) {
	return c.GetNodeByID(ctx, models.NodeID(project, typ, key))
}

// GetNodeByID fetches a node by its composite record id.
func (c *Client) GetNodeByID(ctx context.Context, id string) (*models.KnowledgeNode, error) {
	results, err := surrealdb.Query[[]models.KnowledgeNode](ctx, c.db, `
		SELECT * FROM type::record("node", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, wrapQueryError(fmt.Errorf("get node: %w", err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// UpsertNode creates or updates a node. Identical attributes leave the
// record untouched (version preserved); changed attributes bump the version
// and retain the replaced attribute set in prev_attributes for audit.
// The version assignment runs before the attribute assignment: SurrealQL SET
// clauses apply in order, so the comparison still sees the old value.
func (c *Client) UpsertNode(ctx context.Context, project string, typ models.NodeType, key string, attributes map[string]any) (*models.KnowledgeNode, error) {
	if attributes == nil {
		attributes = map[string]any{}
	}
	results, err := surrealdb.Query[[]models.KnowledgeNode](ctx, c.db, `
		UPSERT type::record("node", $id) SET
			version = IF attributes == $attrs THEN version ELSE (version ?? 0) + 1 END,
			updated = IF attributes == $attrs THEN updated ELSE time::now() END,
			prev_attributes = IF attributes == NONE OR attributes == $attrs THEN prev_attributes ELSE attributes END,
			project = $project,
			type = $type,
			key = $key,
			attributes = $attrs
		RETURN AFTER
	`, map[string]any{
		"id":      models.NodeID(project, typ, key),
		"project": project,
		"type":    string(typ),
		"key":     key,
		"attrs":   attributes,
	})
	if err != nil {
		return nil, wrapQueryError(fmt.Errorf("upsert node: %w", err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, wrapQueryError(fmt.Errorf("upsert node: no result returned"))
	}
	return &(*results)[0].Result[0], nil
}

// CreateEdge relates two nodes. Fails with ErrMissingNode when either
// endpoint is absent. Relating an existing (source, target, relation) is a
// no-op, so re-staging a known edge never fails a commit.
func (c *Client) CreateEdge(ctx context.Context, sourceID, targetID, relation string, attributes map[string]any) error {
	if attributes == nil {
		attributes = map[string]any{}
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		LET $src_exists = (SELECT count() AS c FROM type::record("node", $source)).c > 0;
		LET $dst_exists = (SELECT count() AS c FROM type::record("node", $target)).c > 0;

		IF !$src_exists OR !$dst_exists {
			THROW "missing node"
		};

		LET $dup = (SELECT count() AS c FROM edge
			WHERE in = type::record("node", $source)
				AND out = type::record("node", $target)
				AND relation = $relation).c > 0;
		IF !$dup {
			RELATE type::record("node", $source)->edge->type::record("node", $target) SET
				relation = $relation,
				attributes = $attrs;
		};
	`, map[string]any{
		"source":   sourceID,
		"target":   targetID,
		"relation": relation,
		"attrs":    attributes,
	})
	if err != nil {
		return wrapQueryError(fmt.Errorf("create edge: %w", err))
	}
	return nil
}

// ListNodes returns all nodes of a project.
func (c *Client) ListNodes(ctx context.Context, project string) ([]models.KnowledgeNode, error) {
	results, err := surrealdb.Query[[]models.KnowledgeNode](ctx, c.db, `
		SELECT * FROM node WHERE project = $project
	`, map[string]any{"project": project})
	if err != nil {
		return nil, wrapQueryError(fmt.Errorf("list nodes: %w", err))
	}
	if results == nil || len(*results) == 0 {
		return []models.KnowledgeNode{}, nil
	}
	return (*results)[0].Result, nil
}

// ListEdges returns all edges of a project with endpoints flattened to
// composite node ids.
func (c *Client) ListEdges(ctx context.Context, project string) ([]models.EdgeRef, error) {
	results, err := surrealdb.Query[[]edgeRow](ctx, c.db, `
		SELECT relation, attributes, created, in.id AS source, out.id AS target
		FROM edge WHERE in.project = $project
	`, map[string]any{"project": project})
	if err != nil {
		return nil, wrapQueryError(fmt.Errorf("list edges: %w", err))
	}
	if results == nil || len(*results) == 0 {
		return []models.EdgeRef{}, nil
	}
	rows := (*results)[0].Result
	refs := make([]models.EdgeRef, len(rows))
	for i, r := range rows {
		refs[i] = models.EdgeRef{
			Source:     r.Source,
			Target:     r.Target,
			Relation:   r.Relation,
			Attributes: r.Attributes,
		}
	}
	return refs, nil
}

// GraphVersion returns the project-level graph version counter.
func (c *Client) GraphVersion(ctx context.Context, project string) (int, error) {
	type row struct {
		GraphVersion int `json:"graph_version"`
	}
	results, err := surrealdb.Query[[]row](ctx, c.db, `
		SELECT graph_version FROM type::record("project", $project)
	`, map[string]any{"project": project})
	if err != nil {
		return 0, wrapQueryError(fmt.Errorf("graph version: %w", err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].GraphVersion, nil
}

// SaveSnapshot persists an immutable full graph copy.
func (c *Client) SaveSnapshot(ctx context.Context, snap *models.GraphSnapshot) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("snapshot", $id) SET
			project = $project,
			graph_version = $version,
			taken_at = $taken_at,
			nodes = $nodes,
			edges = $edges
	`, map[string]any{
		"id":       snap.ID,
		"project":  snap.Project,
		"version":  snap.GraphVersion,
		"taken_at": snap.TakenAt,
		"nodes":    snap.Nodes,
		"edges":    snap.Edges,
	})
	if err != nil {
		return wrapQueryError(fmt.Errorf("save snapshot: %w", err))
	}
	return nil
}

// GetSnapshot loads a persisted snapshot by id. Returns nil when absent.
func (c *Client) GetSnapshot(ctx context.Context, id string) (*models.GraphSnapshot, error) {
	results, err := surrealdb.Query[[]models.GraphSnapshot](ctx, c.db, `
		SELECT * FROM type::record("snapshot", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, wrapQueryError(fmt.Errorf("get snapshot: %w", err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	snap := (*results)[0].Result[0]
	return models.NewGraphSnapshot(snap.ID, snap.Project, snap.GraphVersion, snap.TakenAt, snap.Nodes, snap.Edges), nil
}

// NodeUpsert is one staged node write inside a commit.
type NodeUpsert struct {
	Type       models.NodeType
	Key        string
	Attributes map[string]any
}

// EdgeStage is one staged edge write inside a commit.
type EdgeStage struct {
	SourceID   string
	TargetID   string
	Relation   string
	Attributes map[string]any
}

// CommitParams is the unit of atomic commit: one new memory entry plus the
// staged graph writes produced by the consistency check.
type CommitParams struct {
	Project   string
	EntryID   string
	Entry     models.MemoryInput
	Embedding []float32
	Nodes     []NodeUpsert
	Edges     []EdgeStage
}

// CommitGeneration writes the memory entry, staged node upserts, staged
// edges, and the project version bump in one transaction. A missing edge
// endpoint throws inside the transaction and aborts everything.
func (c *Client) CommitGeneration(ctx context.Context, p CommitParams) (int, error) {
	var sb strings.Builder
	vars := map[string]any{
		"project":    p.Project,
		"entry_id":   p.EntryID,
		"e_kind":     string(p.Entry.Kind),
		"e_content":  p.Entry.Content,
		"e_metadata": p.Entry.Metadata,
		"e_emb":      p.Embedding,
	}

	sb.WriteString("BEGIN TRANSACTION;\n")
	sb.WriteString(`
		CREATE type::record("memory_entry", $entry_id) SET
			project = $project,
			kind = $e_kind,
			content = $e_content,
			metadata = $e_metadata,
			embedding = $e_emb,
			version = 1,
			prev = NONE,
			root = $entry_id,
			latest = true;
	`)

	for i, n := range p.Nodes {
		attrs := n.Attributes
		if attrs == nil {
			attrs = map[string]any{}
		}
		idVar := fmt.Sprintf("n%d_id", i)
		attrVar := fmt.Sprintf("n%d_attrs", i)
		typeVar := fmt.Sprintf("n%d_type", i)
		keyVar := fmt.Sprintf("n%d_key", i)
		vars[idVar] = models.NodeID(p.Project, n.Type, n.Key)
		vars[attrVar] = attrs
		vars[typeVar] = string(n.Type)
		vars[keyVar] = n.Key
		fmt.Fprintf(&sb, `
			UPSERT type::record("node", $%s) SET
				version = IF attributes == $%s THEN version ELSE (version ?? 0) + 1 END,
				updated = IF attributes == $%s THEN updated ELSE time::now() END,
				prev_attributes = IF attributes == NONE OR attributes == $%s THEN prev_attributes ELSE attributes END,
				project = $project,
				type = $%s,
				key = $%s,
				attributes = $%s;
		`, idVar, attrVar, attrVar, attrVar, typeVar, keyVar, attrVar)
	}

	for i, e := range p.Edges {
		attrs := e.Attributes
		if attrs == nil {
			attrs = map[string]any{}
		}
		srcVar := fmt.Sprintf("g%d_src", i)
		dstVar := fmt.Sprintf("g%d_dst", i)
		relVar := fmt.Sprintf("g%d_rel", i)
		attrVar := fmt.Sprintf("g%d_attrs", i)
		vars[srcVar] = e.SourceID
		vars[dstVar] = e.TargetID
		vars[relVar] = e.Relation
		vars[attrVar] = attrs
		fmt.Fprintf(&sb, `
			IF (SELECT count() AS c FROM type::record("node", $%s)).c == 0
				OR (SELECT count() AS c FROM type::record("node", $%s)).c == 0 {
				THROW "missing node"
			};
			LET $%s_dup = (SELECT count() AS c FROM edge
				WHERE in = type::record("node", $%s)
					AND out = type::record("node", $%s)
					AND relation = $%s).c > 0;
			IF !$%s_dup {
				RELATE type::record("node", $%s)->edge->type::record("node", $%s) SET
					relation = $%s,
					attributes = $%s;
			};
		`, srcVar, dstVar, srcVar, srcVar, dstVar, relVar, srcVar, srcVar, dstVar, relVar, attrVar)
	}

	sb.WriteString(`
		UPSERT type::record("project", $project) SET graph_version = (graph_version ?? 0) + 1;
		RETURN (SELECT graph_version FROM ONLY type::record("project", $project)).graph_version;
	`)
	sb.WriteString("COMMIT TRANSACTION;\n")

	results, err := surrealdb.Query[any](ctx, c.db, sb.String(), vars)
	if err != nil {
		return 0, wrapQueryError(fmt.Errorf("commit generation: %w", err))
	}
	if results == nil || len(*results) == 0 {
		return 0, wrapQueryError(fmt.Errorf("commit generation: no result returned"))
	}
	last := (*results)[len(*results)-1].Result
	if v, ok := toInt(last); ok {
		return v, nil
	}
	return 0, nil
}

// RestoreSnapshot replaces a project's live graph with the snapshot's state
// and bumps the project version counter. Memory entries created after the
// snapshot are left in place; rollback is a graph-state operation.
func (c *Client) RestoreSnapshot(ctx context.Context, snap *models.GraphSnapshot) (int, error) {
	var sb strings.Builder
	vars := map[string]any{"project": snap.Project}

	sb.WriteString("BEGIN TRANSACTION;\n")
	sb.WriteString(`
		DELETE edge WHERE in.project = $project;
		DELETE node WHERE project = $project;
	`)

	for i, n := range snap.Nodes {
		attrs := n.Attributes
		if attrs == nil {
			attrs = map[string]any{}
		}
		idVar := fmt.Sprintf("n%d_id", i)
		typeVar := fmt.Sprintf("n%d_type", i)
		keyVar := fmt.Sprintf("n%d_key", i)
		attrVar := fmt.Sprintf("n%d_attrs", i)
		verVar := fmt.Sprintf("n%d_ver", i)
		vars[idVar] = models.NodeID(n.Project, n.Type, n.Key)
		vars[typeVar] = string(n.Type)
		vars[keyVar] = n.Key
		vars[attrVar] = attrs
		vars[verVar] = n.Version
		fmt.Fprintf(&sb, `
			CREATE type::record("node", $%s) SET
				project = $project,
				type = $%s,
				key = $%s,
				attributes = $%s,
				version = $%s;
		`, idVar, typeVar, keyVar, attrVar, verVar)
	}

	for i, e := range snap.Edges {
		attrs := e.Attributes
		if attrs == nil {
			attrs = map[string]any{}
		}
		srcVar := fmt.Sprintf("g%d_src", i)
		dstVar := fmt.Sprintf("g%d_dst", i)
		relVar := fmt.Sprintf("g%d_rel", i)
		attrVar := fmt.Sprintf("g%d_attrs", i)
		vars[srcVar] = e.Source
		vars[dstVar] = e.Target
		vars[relVar] = e.Relation
		vars[attrVar] = attrs
		fmt.Fprintf(&sb, `
			RELATE type::record("node", $%s)->edge->type::record("node", $%s) SET
				relation = $%s,
				attributes = $%s;
		`, srcVar, dstVar, relVar, attrVar)
	}

	sb.WriteString(`
		UPSERT type::record("project", $project) SET graph_version = (graph_version ?? 0) + 1;
		RETURN (SELECT graph_version FROM ONLY type::record("project", $project)).graph_version;
	`)
	sb.WriteString("COMMIT TRANSACTION;\n")

	results, err := surrealdb.Query[any](ctx, c.db, sb.String(), vars)
	if err != nil {
		return 0, wrapQueryError(fmt.Errorf("restore snapshot: %w", err))
	}
	if results == nil || len(*results) == 0 {
		return 0, wrapQueryError(fmt.Errorf("restore snapshot: no result returned"))
	}
	last := (*results)[len(*results)-1].Result
	if v, ok := toInt(last); ok {
		return v, nil
	}
	return 0, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
