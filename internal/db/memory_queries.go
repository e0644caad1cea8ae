package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/lorekeep/lorekeep/internal/models"
)

// MemoryFilter narrows memory searches by kind and creation time.
type MemoryFilter struct {
	Kinds []models.MemoryKind
	From  *time.Time
	To    *time.Time
}

// CreateMemoryEntry persists the first version of a logical memory entry.
func (c *Client) CreateMemoryEntry(ctx context.Context, id string, in models.MemoryInput, embedding []float32) (*models.MemoryEntry, error) {
	results, err := surrealdb.Query[[]models.MemoryEntry](ctx, c.db, `
		CREATE type::record("memory_entry", $id) SET
			project = $project,
			kind = $kind,
			content = $content,
			metadata = $metadata,
			embedding = $embedding,
			version = 1,
			prev = NONE,
			root = $id,
			latest = true
		RETURN AFTER
	`, map[string]any{
		"id":        id,
		"project":   in.Project,
		"kind":      string(in.Kind),
		"content":   in.Content,
		"metadata":  in.Metadata,
		"embedding": embedding,
	})
	if err != nil {
		return nil, wrapQueryError(fmt.Errorf("create memory entry: %w", err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, wrapQueryError(fmt.Errorf("create memory entry: no result returned"))
	}
	return &(*results)[0].Result[0], nil
}

// AppendMemoryVersion writes a new version of an existing entry in a single
// transaction: the previous head loses its latest flag and the new record is
// linked back to it. The version counter is strictly monotonic per chain.
func (c *Client) AppendMemoryVersion(ctx context.Context, prevID, newID, content string, embedding []float32) (*models.MemoryEntry, error) {
	results, err := surrealdb.Query[[]models.MemoryEntry](ctx, c.db, `
		BEGIN TRANSACTION;

		LET $prev = SELECT * FROM ONLY type::record("memory_entry", $prev_id);
		IF $prev == NONE {
			THROW "memory entry not found"
		};

		UPDATE type::record("memory_entry", $prev_id) SET latest = false;

		CREATE type::record("memory_entry", $new_id) SET
			project = $prev.project,
			kind = $prev.kind,
			content = $content,
			metadata = $prev.metadata,
			embedding = $embedding,
			version = $prev.version + 1,
			prev = $prev_id,
			root = $prev.root,
			latest = true
		RETURN AFTER;

		COMMIT TRANSACTION;
	`, map[string]any{
		"prev_id":   prevID,
		"new_id":    newID,
		"content":   content,
		"embedding": embedding,
	})
	if err != nil {
		return nil, wrapQueryError(fmt.Errorf("append memory version: %w", err))
	}
	if results == nil || len(*results) == 0 {
		return nil, wrapQueryError(fmt.Errorf("append memory version: no result returned"))
	}
	// Last statement in the transaction carries the created record.
	last := (*results)[len(*results)-1]
	if len(last.Result) == 0 {
		return nil, wrapQueryError(fmt.Errorf("append memory version: no result returned"))
	}
	return &last.Result[0], nil
}

// GetMemoryEntry fetches a single entry record by id. Returns nil when absent.
func (c *Client) GetMemoryEntry(ctx context.Context, id string) (*models.MemoryEntry, error) {
	results, err := surrealdb.Query[[]models.MemoryEntry](ctx, c.db, `
		SELECT * FROM type::record("memory_entry", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, wrapQueryError(fmt.Errorf("get memory entry: %w", err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// GetLatestMemoryVersion resolves the head of a version chain.
func (c *Client) GetLatestMemoryVersion(ctx context.Context, rootID string) (*models.MemoryEntry, error) {
	results, err := surrealdb.Query[[]models.MemoryEntry](ctx, c.db, `
		SELECT * FROM memory_entry WHERE root = $root AND latest = true LIMIT 1
	`, map[string]any{"root": rootID})
	if err != nil {
		return nil, wrapQueryError(fmt.Errorf("get latest memory version: %w", err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// GetMemoryVersion fetches a specific version from a chain.
func (c *Client) GetMemoryVersion(ctx context.Context, rootID string, version int) (*models.MemoryEntry, error) {
	results, err := surrealdb.Query[[]models.MemoryEntry](ctx, c.db, `
		SELECT * FROM memory_entry WHERE root = $root AND version = $version LIMIT 1
	`, map[string]any{"root": rootID, "version": version})
	if err != nil {
		return nil, wrapQueryError(fmt.Errorf("get memory version: %w", err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// SearchMemories performs nearest-neighbor search over the latest entry
// versions of a project, optionally filtered by kind and time range.
// Results carry a cosine similarity score and arrive ordered by it; the
// caller applies the epsilon recency tie-break.
func (c *Client) SearchMemories(ctx context.Context, project string, embedding []float32, filter MemoryFilter, topK int) ([]models.MemoryEntry, error) {
	kindClause := ""
	fromClause := ""
	toClause := ""
	vars := map[string]any{
		"project": project,
		"emb":     embedding,
		"limit":   topK,
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		kindClause = "AND kind IN $kinds"
		vars["kinds"] = kinds
	}
	if filter.From != nil {
		fromClause = "AND created >= $from"
		vars["from"] = *filter.From
	}
	if filter.To != nil {
		toClause = "AND created <= $to"
		vars["to"] = *filter.To
	}

	// HNSW with ef=40 for better recall; 2x limit before the tie-break trim
	sql := fmt.Sprintf(`
		SELECT *, vector::similarity::cosine(embedding, $emb) AS similarity
		FROM memory_entry
		WHERE project = $project AND latest = true
			AND embedding <|%d,40|> $emb %s %s %s
		ORDER BY similarity DESC
		LIMIT $limit
	`, topK*2, kindClause, fromClause, toClause)

	results, err := surrealdb.Query[[]models.MemoryEntry](ctx, c.db, sql, vars)
	if err != nil {
		return nil, wrapQueryError(fmt.Errorf("search memories: %w", err))
	}
	if results == nil || len(*results) == 0 {
		return []models.MemoryEntry{}, nil
	}
	return (*results)[0].Result, nil
}

// TouchMemory updates access tracking for an entry.
func (c *Client) TouchMemory(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("memory_entry", $id) SET
			accessed = time::now(),
			access_count += 1
	`, map[string]any{"id": id})
	if err != nil {
		return wrapQueryError(fmt.Errorf("touch memory: %w", err))
	}
	return nil
}
