// Package graph implements the knowledge graph service: typed entity nodes,
// relation edges, bounded traversal, and point-in-time snapshots.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lorekeep/lorekeep/internal/errs"
	"github.com/lorekeep/lorekeep/internal/models"
)

// Relation names with engine-level meaning.
const (
	RelParticipatedIn = "PARTICIPATED_IN"
	RelOccurredAt     = "OCCURRED_AT"
	RelLocatedIn      = "LOCATED_IN"
	RelOwns           = "OWNS"
	RelKnows          = "KNOWS"
)

// MaxTraversalDepth bounds subgraph queries regardless of the caller's
// requested depth.
const MaxTraversalDepth = 5

// Persistence is the slice of the storage layer the graph service depends on.
type Persistence interface {
	GetNode(ctx context.Context, project string, typ models.NodeType, key string) (*models.KnowledgeNode, error)
	GetNodeByID(ctx context.Context, id string) (*models.KnowledgeNode, error)
	UpsertNode(ctx context.Context, project string, typ models.NodeType, key string, attributes map[string]any) (*models.KnowledgeNode, error)
	CreateEdge(ctx context.Context, sourceID, targetID, relation string, attributes map[string]any) error
	ListNodes(ctx context.Context, project string) ([]models.KnowledgeNode, error)
	ListEdges(ctx context.Context, project string) ([]models.EdgeRef, error)
	GraphVersion(ctx context.Context, project string) (int, error)
	SaveSnapshot(ctx context.Context, snap *models.GraphSnapshot) error
	GetSnapshot(ctx context.Context, id string) (*models.GraphSnapshot, error)
	RestoreSnapshot(ctx context.Context, snap *models.GraphSnapshot) (int, error)
}

// Service exposes knowledge graph operations.
type Service struct {
	persist Persistence
	logger  *slog.Logger
}

// NewService creates a graph service.
func NewService(p Persistence, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{persist: p, logger: logger}
}

// UpsertNode creates or updates a node identified by (project, type, key).
// An update with identical attributes is a no-op and does not bump the node
// version.
func (s *Service) UpsertNode(ctx context.Context, project string, typ models.NodeType, key string, attributes map[string]any) (*models.KnowledgeNode, error) {
	if project == "" || key == "" {
		return nil, errs.Validationf("project and key are required")
	}
	if !models.ValidNodeType(typ) {
		return nil, errs.Validationf("unknown node type %q", typ)
	}
	return s.persist.UpsertNode(ctx, project, typ, key, attributes)
}

// Node fetches a node by identity, or nil when absent.
func (s *Service) Node(ctx context.Context, project string, typ models.NodeType, key string) (*models.KnowledgeNode, error) {
	return s.persist.GetNode(ctx, project, typ, key)
}

// AddEdge creates a directed relation between two existing nodes. A missing
// endpoint is a reference error; duplicate (source, target, relation) edges
// collapse to one.
func (s *Service) AddEdge(ctx context.Context, sourceID, targetID, relation string, attributes map[string]any) error {
	if relation == "" {
		return errs.Validationf("relation is required")
	}
	return s.persist.CreateEdge(ctx, sourceID, targetID, relation, attributes)
}

// QuerySubgraph returns the induced subgraph reachable from the root node
// within depth hops, following edges in both directions. Depth is clamped
// to MaxTraversalDepth.
func (s *Service) QuerySubgraph(ctx context.Context, project string, rootType models.NodeType, rootKey string, depth int) (*models.Subgraph, error) {
	root, err := s.persist.GetNode(ctx, project, rootType, rootKey)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("%w: node %s", errs.ErrNotFound, models.NodeID(project, rootType, rootKey))
	}
	if depth < 0 {
		depth = 0
	}
	if depth > MaxTraversalDepth {
		depth = MaxTraversalDepth
	}

	edges, err := s.persist.ListEdges(ctx, project)
	if err != nil {
		return nil, err
	}
	adjacency := make(map[string][]string)
	for _, e := range edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
		adjacency[e.Target] = append(adjacency[e.Target], e.Source)
	}

	rootID := models.NodeID(project, rootType, rootKey)
	visited := map[string]bool{rootID: true}
	frontier := []string{rootID}
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, neighbor := range adjacency[id] {
				if !visited[neighbor] {
					visited[neighbor] = true
					next = append(next, neighbor)
				}
			}
		}
		frontier = next
	}

	nodes, err := s.persist.ListNodes(ctx, project)
	if err != nil {
		return nil, err
	}
	sub := &models.Subgraph{}
	for _, n := range nodes {
		if visited[models.NodeID(n.Project, n.Type, n.Key)] {
			sub.Nodes = append(sub.Nodes, n)
		}
	}
	for _, e := range edges {
		if visited[e.Source] && visited[e.Target] {
			sub.Edges = append(sub.Edges, e)
		}
	}
	return sub, nil
}

// Snapshot captures the project's current graph and persists it. The
// returned snapshot is safe to read concurrently with later commits.
func (s *Service) Snapshot(ctx context.Context, project string) (*models.GraphSnapshot, error) {
	version, err := s.persist.GraphVersion(ctx, project)
	if err != nil {
		return nil, err
	}
	nodes, err := s.persist.ListNodes(ctx, project)
	if err != nil {
		return nil, err
	}
	edges, err := s.persist.ListEdges(ctx, project)
	if err != nil {
		return nil, err
	}
	snap := models.NewGraphSnapshot(uuid.NewString(), project, version, time.Now(), nodes, edges)
	if err := s.persist.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	s.logger.Debug("graph snapshot taken", "project", project, "snapshot", snap.ID, "graph_version", version, "nodes", len(nodes), "edges", len(edges))
	return snap, nil
}

// View captures the current graph in memory without persisting it. Used for
// consistency checks where the snapshot is transient.
func (s *Service) View(ctx context.Context, project string) (*models.GraphSnapshot, error) {
	version, err := s.persist.GraphVersion(ctx, project)
	if err != nil {
		return nil, err
	}
	nodes, err := s.persist.ListNodes(ctx, project)
	if err != nil {
		return nil, err
	}
	edges, err := s.persist.ListEdges(ctx, project)
	if err != nil {
		return nil, err
	}
	return models.NewGraphSnapshot(uuid.NewString(), project, version, time.Now(), nodes, edges), nil
}

// RollbackTo replaces the project's live graph with the state recorded in
// the named snapshot.
func (s *Service) RollbackTo(ctx context.Context, snapshotID string) error {
	snap, err := s.persist.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("%w: snapshot %q", errs.ErrNotFound, snapshotID)
	}
	version, err := s.persist.RestoreSnapshot(ctx, snap)
	if err != nil {
		return err
	}
	s.logger.Info("graph rolled back", "project", snap.Project, "snapshot", snapshotID, "graph_version", version)
	return nil
}

// AddCharacter registers a character node.
func (s *Service) AddCharacter(ctx context.Context, project, key string, attributes map[string]any) (*models.KnowledgeNode, error) {
	return s.UpsertNode(ctx, project, models.NodeCharacter, key, attributes)
}

// AddLocation registers a location node.
func (s *Service) AddLocation(ctx context.Context, project, key string, attributes map[string]any) (*models.KnowledgeNode, error) {
	return s.UpsertNode(ctx, project, models.NodeLocation, key, attributes)
}

// AddRule registers a worldbuilding rule node. The rule text lives in the
// "text" attribute.
func (s *Service) AddRule(ctx context.Context, project, key, text string, attributes map[string]any) (*models.KnowledgeNode, error) {
	if attributes == nil {
		attributes = map[string]any{}
	}
	attributes["text"] = text
	return s.UpsertNode(ctx, project, models.NodeRule, key, attributes)
}

// AddEvent registers an event node at the given sequence position and wires
// its participant and location edges.
func (s *Service) AddEvent(ctx context.Context, project, key string, seq int, participants []string, location string, attributes map[string]any) (*models.KnowledgeNode, error) {
	if attributes == nil {
		attributes = map[string]any{}
	}
	attributes[models.AttrSeq] = seq
	node, err := s.UpsertNode(ctx, project, models.NodeEvent, key, attributes)
	if err != nil {
		return nil, err
	}
	eventID := models.NodeID(project, models.NodeEvent, key)
	for _, p := range participants {
		charID := models.NodeID(project, models.NodeCharacter, p)
		if err := s.AddEdge(ctx, charID, eventID, RelParticipatedIn, nil); err != nil {
			return nil, fmt.Errorf("link participant %q: %w", p, err)
		}
	}
	if location != "" {
		locID := models.NodeID(project, models.NodeLocation, location)
		if err := s.AddEdge(ctx, eventID, locID, RelOccurredAt, nil); err != nil {
			return nil, fmt.Errorf("link location %q: %w", location, err)
		}
	}
	return node, nil
}
