package graph

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorekeep/lorekeep/internal/errs"
	"github.com/lorekeep/lorekeep/internal/models"
)

type fakePersistence struct {
	nodes     map[string]*models.KnowledgeNode
	edges     []models.EdgeRef
	snapshots map[string]*models.GraphSnapshot
	version   int
	restored  *models.GraphSnapshot
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{
		nodes:     map[string]*models.KnowledgeNode{},
		snapshots: map[string]*models.GraphSnapshot{},
	}
}

func (f *fakePersistence) GetNode(_ context.Context, project string, typ models.NodeType, key string) (*models.KnowledgeNode, error) {
	return f.nodes[models.NodeID(project, typ, key)], nil
}

func (f *fakePersistence) GetNodeByID(_ context.Context, id string) (*models.KnowledgeNode, error) {
	return f.nodes[id], nil
}

func (f *fakePersistence) UpsertNode(_ context.Context, project string, typ models.NodeType, key string, attributes map[string]any) (*models.KnowledgeNode, error) {
	id := models.NodeID(project, typ, key)
	if existing, ok := f.nodes[id]; ok {
		if !attrsEqual(existing.Attributes, attributes) {
			existing.Version++
			existing.Attributes = attributes
		}
		return existing, nil
	}
	node := &models.KnowledgeNode{Project: project, Type: typ, Key: key, Attributes: attributes, Version: 1}
	f.nodes[id] = node
	f.version++
	return node, nil
}

func attrsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func (f *fakePersistence) CreateEdge(_ context.Context, sourceID, targetID, relation string, attributes map[string]any) error {
	if f.nodes[sourceID] == nil || f.nodes[targetID] == nil {
		return fmt.Errorf("%w: missing node", errs.ErrReference)
	}
	for _, e := range f.edges {
		if e.Source == sourceID && e.Target == targetID && e.Relation == relation {
			return nil
		}
	}
	f.edges = append(f.edges, models.EdgeRef{Source: sourceID, Target: targetID, Relation: relation, Attributes: attributes})
	f.version++
	return nil
}

func (f *fakePersistence) ListNodes(_ context.Context, project string) ([]models.KnowledgeNode, error) {
	var out []models.KnowledgeNode
	for _, n := range f.nodes {
		if n.Project == project {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (f *fakePersistence) ListEdges(_ context.Context, _ string) ([]models.EdgeRef, error) {
	return append([]models.EdgeRef(nil), f.edges...), nil
}

func (f *fakePersistence) GraphVersion(_ context.Context, _ string) (int, error) {
	return f.version, nil
}

func (f *fakePersistence) SaveSnapshot(_ context.Context, snap *models.GraphSnapshot) error {
	f.snapshots[snap.ID] = snap
	return nil
}

func (f *fakePersistence) GetSnapshot(_ context.Context, id string) (*models.GraphSnapshot, error) {
	return f.snapshots[id], nil
}

func (f *fakePersistence) RestoreSnapshot(_ context.Context, snap *models.GraphSnapshot) (int, error) {
	f.restored = snap
	f.version++
	return f.version, nil
}

func seedChain(t *testing.T, s *Service) {
	t.Helper()
	ctx := context.Background()
	_, err := s.AddCharacter(ctx, "novel", "mira", map[string]any{"role": "protagonist"})
	require.NoError(t, err)
	_, err = s.AddLocation(ctx, "novel", "harbor", nil)
	require.NoError(t, err)
	_, err = s.AddEvent(ctx, "novel", "storm", 3, []string{"mira"}, "harbor", nil)
	require.NoError(t, err)
	_, err = s.AddCharacter(ctx, "novel", "dax", nil)
	require.NoError(t, err)
	_, err = s.AddLocation(ctx, "novel", "citadel", nil)
	require.NoError(t, err)
	require.NoError(t, s.AddEdge(ctx,
		models.NodeID("novel", models.NodeCharacter, "dax"),
		models.NodeID("novel", models.NodeLocation, "citadel"),
		RelLocatedIn, nil))
}

func TestUpsertNodeIdempotent(t *testing.T) {
	p := newFakePersistence()
	s := NewService(p, nil)
	ctx := context.Background()

	first, err := s.UpsertNode(ctx, "novel", models.NodeCharacter, "mira", map[string]any{"role": "hero"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	same, err := s.UpsertNode(ctx, "novel", models.NodeCharacter, "mira", map[string]any{"role": "hero"})
	require.NoError(t, err)
	assert.Equal(t, 1, same.Version)

	changed, err := s.UpsertNode(ctx, "novel", models.NodeCharacter, "mira", map[string]any{"role": "villain"})
	require.NoError(t, err)
	assert.Equal(t, 2, changed.Version)
}

func TestUpsertNodeValidation(t *testing.T) {
	s := NewService(newFakePersistence(), nil)
	_, err := s.UpsertNode(context.Background(), "novel", "spaceship", "x", nil)
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = s.UpsertNode(context.Background(), "", models.NodeCharacter, "x", nil)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestAddEdgeMissingEndpoint(t *testing.T) {
	s := NewService(newFakePersistence(), nil)
	err := s.AddEdge(context.Background(), "novel:character:ghost", "novel:location:nowhere", RelLocatedIn, nil)
	assert.ErrorIs(t, err, errs.ErrReference)
}

func TestAddEventWiresEdges(t *testing.T) {
	p := newFakePersistence()
	s := NewService(p, nil)
	seedChain(t, s)

	assert.Contains(t, p.edges, models.EdgeRef{
		Source:   "novel:character:mira",
		Target:   "novel:event:storm",
		Relation: RelParticipatedIn,
	})
	assert.Contains(t, p.edges, models.EdgeRef{
		Source:   "novel:event:storm",
		Target:   "novel:location:harbor",
		Relation: RelOccurredAt,
	})
	event := p.nodes["novel:event:storm"]
	require.NotNil(t, event)
	assert.Equal(t, 3, event.Seq())
}

func TestQuerySubgraphDepthBound(t *testing.T) {
	p := newFakePersistence()
	s := NewService(p, nil)
	seedChain(t, s)
	ctx := context.Background()

	// Depth 1 from mira reaches the storm event but not the harbor.
	sub, err := s.QuerySubgraph(ctx, "novel", models.NodeCharacter, "mira", 1)
	require.NoError(t, err)
	require.Len(t, sub.Nodes, 2)
	require.Len(t, sub.Edges, 1)

	// Depth 2 pulls in the harbor; dax's disconnected component stays out.
	sub, err = s.QuerySubgraph(ctx, "novel", models.NodeCharacter, "mira", 2)
	require.NoError(t, err)
	assert.Len(t, sub.Nodes, 3)
	assert.Len(t, sub.Edges, 2)
	for _, n := range sub.Nodes {
		assert.NotEqual(t, "dax", n.Key)
	}
}

func TestQuerySubgraphMissingRoot(t *testing.T) {
	s := NewService(newFakePersistence(), nil)
	_, err := s.QuerySubgraph(context.Background(), "novel", models.NodeCharacter, "nobody", 2)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSnapshotAndRollback(t *testing.T) {
	p := newFakePersistence()
	s := NewService(p, nil)
	seedChain(t, s)
	ctx := context.Background()

	snap, err := s.Snapshot(ctx, "novel")
	require.NoError(t, err)
	require.NotEmpty(t, snap.ID)
	assert.Equal(t, p.version, snap.GraphVersion)
	assert.Len(t, snap.Nodes, 5)
	assert.WithinDuration(t, time.Now(), snap.TakenAt, time.Minute)

	require.NoError(t, s.RollbackTo(ctx, snap.ID))
	require.NotNil(t, p.restored)
	assert.Equal(t, snap.ID, p.restored.ID)

	err = s.RollbackTo(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestViewDoesNotPersist(t *testing.T) {
	p := newFakePersistence()
	s := NewService(p, nil)
	seedChain(t, s)

	view, err := s.View(context.Background(), "novel")
	require.NoError(t, err)
	assert.Len(t, view.Nodes, 5)
	assert.Empty(t, p.snapshots)
}
