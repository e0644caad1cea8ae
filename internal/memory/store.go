// Package memory implements the long-term memory store: durable, versioned
// narrative facts indexed for semantic similarity search.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/lorekeep/lorekeep/internal/cache"
	"github.com/lorekeep/lorekeep/internal/db"
	"github.com/lorekeep/lorekeep/internal/errs"
	"github.com/lorekeep/lorekeep/internal/models"
)

// similarityEpsilon is the band within which two results are considered
// equally similar and recency decides the order.
const similarityEpsilon = 1e-4

// RefPolicy controls how metadata references to missing knowledge nodes are
// handled at write time.
type RefPolicy string

const (
	// RefReject fails the write with a reference error.
	RefReject RefPolicy = "reject"
	// RefPlaceholder auto-creates a placeholder node for the reference.
	RefPlaceholder RefPolicy = "placeholder"
)

// Embedder is the embedding provider as seen by the store.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Persistence is the slice of the storage layer the store depends on.
// *db.Client satisfies it; tests substitute fakes.
type Persistence interface {
	CreateMemoryEntry(ctx context.Context, id string, in models.MemoryInput, embedding []float32) (*models.MemoryEntry, error)
	AppendMemoryVersion(ctx context.Context, prevID, newID, content string, embedding []float32) (*models.MemoryEntry, error)
	GetMemoryEntry(ctx context.Context, id string) (*models.MemoryEntry, error)
	GetLatestMemoryVersion(ctx context.Context, rootID string) (*models.MemoryEntry, error)
	GetMemoryVersion(ctx context.Context, rootID string, version int) (*models.MemoryEntry, error)
	SearchMemories(ctx context.Context, project string, embedding []float32, filter db.MemoryFilter, topK int) ([]models.MemoryEntry, error)
	TouchMemory(ctx context.Context, id string) error
	GetNodeByID(ctx context.Context, id string) (*models.KnowledgeNode, error)
	UpsertNode(ctx context.Context, project string, typ models.NodeType, key string, attributes map[string]any) (*models.KnowledgeNode, error)
}

var _ Persistence = (*db.Client)(nil)

// Store is the long-term memory store.
type Store struct {
	persist  Persistence
	embedder Embedder
	cache    cache.RetrievalCache
	policy   RefPolicy
	logger   *slog.Logger
}

// NewStore creates a memory store. cache may be nil to disable caching.
func NewStore(p Persistence, e Embedder, c cache.RetrievalCache, policy RefPolicy, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{persist: p, embedder: e, cache: c, policy: policy, logger: logger}
}

// Add persists a new memory entry, computing the embedding when the input
// does not carry one. Returns the new entry id.
func (s *Store) Add(ctx context.Context, in models.MemoryInput) (string, error) {
	if in.Project == "" {
		return "", errs.Validationf("project is required")
	}
	if in.Content == "" {
		return "", errs.Validationf("content is required")
	}
	if !models.ValidMemoryKind(in.Kind) {
		return "", errs.Validationf("unknown memory kind %q", in.Kind)
	}

	embedding := in.Embedding
	if embedding == nil {
		var err error
		embedding, err = s.embedder.Embed(ctx, in.Content)
		if err != nil {
			return "", fmt.Errorf("embed content: %w", err)
		}
	}
	if want := s.embedder.Dimension(); want > 0 && len(embedding) != want {
		return "", &errs.DimensionError{Got: len(embedding), Want: want}
	}

	if err := s.resolveRefs(ctx, in); err != nil {
		return "", err
	}

	id := uuid.NewString()
	if _, err := s.persist.CreateMemoryEntry(ctx, id, in, embedding); err != nil {
		return "", fmt.Errorf("persist entry: %w", err)
	}

	s.invalidate(ctx, in.Project)
	s.logger.Debug("memory entry added", "project", in.Project, "kind", in.Kind, "id", id)
	return id, nil
}

// resolveRefs validates node references in entry metadata. Under RefReject
// a missing node fails the write; under RefPlaceholder it is auto-created
// with a placeholder marker.
func (s *Store) resolveRefs(ctx context.Context, in models.MemoryInput) error {
	for _, ref := range in.NodeRefs() {
		node, err := s.persist.GetNodeByID(ctx, ref)
		if err != nil {
			return fmt.Errorf("resolve reference %q: %w", ref, err)
		}
		if node != nil {
			continue
		}
		if s.policy == RefReject {
			return errs.Referencef("entry references missing node %q", ref)
		}
		typ, key, ok := splitNodeID(ref, in.Project)
		if !ok {
			return errs.Referencef("unparseable node reference %q", ref)
		}
		if _, err := s.persist.UpsertNode(ctx, in.Project, typ, key, map[string]any{
			models.AttrPlaceholder: true,
		}); err != nil {
			return fmt.Errorf("create placeholder node %q: %w", ref, err)
		}
		s.logger.Info("created placeholder node for reference", "node", ref)
	}
	return nil
}

// QueryOptions configures a memory search.
type QueryOptions struct {
	Filter db.MemoryFilter
	TopK   int
}

// Query performs nearest-neighbor search with metadata filtering. Results
// are ordered by similarity; within similarityEpsilon the newer entry wins.
func (s *Store) Query(ctx context.Context, project, text string, opts QueryOptions) ([]models.MemoryEntry, error) {
	if project == "" {
		return nil, errs.Validationf("project is required")
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}

	key := cache.QueryKey(text, opts.Filter.Kinds, opts.TopK)
	if s.cache != nil {
		if hit, ok := s.cache.Get(ctx, project, key); ok {
			return hit, nil
		}
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.persist.SearchMemories(ctx, project, embedding, opts.Filter, opts.TopK)
	if err != nil {
		return nil, err
	}

	RankBySimilarity(results)
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	for _, entry := range results {
		if idStr, err := models.RecordIDString(entry.ID); err == nil {
			if err := s.persist.TouchMemory(ctx, idStr); err != nil {
				s.logger.Warn("failed to update entry access", "entry", idStr, "error", err)
			}
		}
	}

	if s.cache != nil {
		s.cache.Set(ctx, project, key, results)
	}
	return results, nil
}

// RankBySimilarity orders entries by similarity descending, breaking ties
// within similarityEpsilon by recency (newer first).
func RankBySimilarity(entries []models.MemoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		di := entries[i].Similarity - entries[j].Similarity
		if di > similarityEpsilon {
			return true
		}
		if di < -similarityEpsilon {
			return false
		}
		return entries[i].Created.After(entries[j].Created)
	})
}

// Update appends a new version of an entry. The previous version remains
// readable; reads via Latest resolve to the new one.
func (s *Store) Update(ctx context.Context, entryID, newContent string) (string, error) {
	if newContent == "" {
		return "", errs.Validationf("content is required")
	}
	prev, err := s.persist.GetMemoryEntry(ctx, entryID)
	if err != nil {
		return "", err
	}
	if prev == nil {
		return "", fmt.Errorf("%w: memory entry %q", errs.ErrNotFound, entryID)
	}
	if !prev.Latest {
		return "", errs.Validationf("cannot update superseded version %q; update the latest version", entryID)
	}

	embedding, err := s.embedder.Embed(ctx, newContent)
	if err != nil {
		return "", fmt.Errorf("embed content: %w", err)
	}

	newID := uuid.NewString()
	entry, err := s.persist.AppendMemoryVersion(ctx, entryID, newID, newContent, embedding)
	if err != nil {
		return "", err
	}

	s.invalidate(ctx, prev.Project)
	s.logger.Debug("memory entry updated", "prev", entryID, "id", newID, "version", entry.Version)
	return newID, nil
}

// Latest resolves the newest version of the logical entry rooted at rootID.
func (s *Store) Latest(ctx context.Context, rootID string) (*models.MemoryEntry, error) {
	entry, err := s.persist.GetLatestMemoryVersion(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: memory entry %q", errs.ErrNotFound, rootID)
	}
	return entry, nil
}

// Version fetches one specific version of a logical entry.
func (s *Store) Version(ctx context.Context, rootID string, version int) (*models.MemoryEntry, error) {
	entry, err := s.persist.GetMemoryVersion(ctx, rootID, version)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: version %d of %q", errs.ErrNotFound, version, rootID)
	}
	return entry, nil
}

// AddChapterSummary stores a chapter summary with its chapter metadata.
func (s *Store) AddChapterSummary(ctx context.Context, project string, chapter int, title, summary string) (string, error) {
	return s.Add(ctx, models.MemoryInput{
		Project: project,
		Kind:    models.KindSummary,
		Content: summary,
		Metadata: map[string]any{
			"chapter": chapter,
			"title":   title,
		},
	})
}

func (s *Store) invalidate(ctx context.Context, project string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, project)
	}
}

// splitNodeID parses a composite node id "project:type:key" scoped to the
// given project.
func splitNodeID(id, project string) (models.NodeType, string, bool) {
	prefix := project + ":"
	if len(id) <= len(prefix) || id[:len(prefix)] != prefix {
		return "", "", false
	}
	rest := id[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			typ := models.NodeType(rest[:i])
			if !models.ValidNodeType(typ) || i+1 >= len(rest) {
				return "", "", false
			}
			return typ, rest[i+1:], true
		}
	}
	return "", "", false
}
