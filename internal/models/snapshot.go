package models

import "time"

// GraphSnapshot is an immutable point-in-time copy of a project's graph.
// It serves two purposes: snapshot isolation for consistency checks running
// concurrently with commits, and rollback/audit when persisted.
type GraphSnapshot struct {
	ID           string    `json:"id"`
	Project      string    `json:"project"`
	GraphVersion int       `json:"graph_version"`
	TakenAt      time.Time `json:"taken_at"`

	Nodes []KnowledgeNode `json:"nodes"`
	Edges []EdgeRef       `json:"edges"`

	index map[string]*KnowledgeNode
}

// NewGraphSnapshot builds a snapshot with its lookup index. The node and
// edge slices are owned by the snapshot after the call.
func NewGraphSnapshot(id, project string, version int, takenAt time.Time, nodes []KnowledgeNode, edges []EdgeRef) *GraphSnapshot {
	s := &GraphSnapshot{
		ID:           id,
		Project:      project,
		GraphVersion: version,
		TakenAt:      takenAt,
		Nodes:        nodes,
		Edges:        edges,
	}
	s.reindex()
	return s
}

func (s *GraphSnapshot) reindex() {
	s.index = make(map[string]*KnowledgeNode, len(s.Nodes))
	for i := range s.Nodes {
		n := &s.Nodes[i]
		s.index[NodeID(n.Project, n.Type, n.Key)] = n
	}
}

// Node returns the node with the given type and key, or nil when absent.
func (s *GraphSnapshot) Node(typ NodeType, key string) *KnowledgeNode {
	if s.index == nil {
		s.reindex()
	}
	return s.index[NodeID(s.Project, typ, key)]
}

// EdgesFrom returns edges whose source is the given node id.
func (s *GraphSnapshot) EdgesFrom(sourceID string) []EdgeRef {
	var out []EdgeRef
	for _, e := range s.Edges {
		if e.Source == sourceID {
			out = append(out, e)
		}
	}
	return out
}

// CharacterEvents returns the event nodes whose participants edge touches
// the given character key, used by causal ordering checks.
func (s *GraphSnapshot) CharacterEvents(characterKey string) []KnowledgeNode {
	charID := NodeID(s.Project, NodeCharacter, characterKey)
	var out []KnowledgeNode
	for _, e := range s.Edges {
		if e.Source != charID {
			continue
		}
		for i := range s.Nodes {
			n := &s.Nodes[i]
			if n.Type == NodeEvent && NodeID(n.Project, n.Type, n.Key) == e.Target {
				out = append(out, *n)
			}
		}
	}
	return out
}
