package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// NodeType classifies a knowledge node.
type NodeType string

const (
	NodeCharacter NodeType = "character"
	NodeLocation  NodeType = "location"
	NodeItem      NodeType = "item"
	NodeRule      NodeType = "rule"
	NodeEvent     NodeType = "event"
)

// ValidNodeType reports whether t is one of the known node types.
func ValidNodeType(t NodeType) bool {
	switch t {
	case NodeCharacter, NodeLocation, NodeItem, NodeRule, NodeEvent:
		return true
	}
	return false
}

// Attribute keys with engine-level meaning. Everything else in a node's
// attribute map is opaque narrative data.
const (
	// AttrSeq orders event nodes by chapter/scene sequence.
	AttrSeq = "seq"
	// AttrFlashback exempts an event from causal ordering checks.
	AttrFlashback = "flashback"
	// AttrDead marks a character as dead as of AttrSeq.
	AttrDead = "dead"
	// AttrLocation records a character's current location node key.
	AttrLocation = "location"
	// AttrPlaceholder marks nodes auto-created to satisfy references.
	AttrPlaceholder = "placeholder"
)

// KnowledgeNode is a typed entity in the consistency graph, uniquely
// identified by (project, type, key).
type KnowledgeNode struct {
	ID         surrealmodels.RecordID `json:"id"`
	Project    string                 `json:"project"`
	Type       NodeType               `json:"type"`
	Key        string                 `json:"key"`
	Attributes map[string]any         `json:"attributes,omitempty"`
	// PrevAttributes holds the attribute set each new version replaced, so
	// overwritten values stay auditable after concurrent commits.
	PrevAttributes map[string]any `json:"prev_attributes,omitempty"`
	Version        int            `json:"version"`
	Created        time.Time      `json:"created,omitempty"`
	Updated        time.Time      `json:"updated,omitempty"`
}

// Seq returns the event sequence number, or -1 when absent.
func (n KnowledgeNode) Seq() int {
	return intAttr(n.Attributes, AttrSeq, -1)
}

// Flashback reports whether the node carries the flashback tag.
func (n KnowledgeNode) Flashback() bool {
	return boolAttr(n.Attributes, AttrFlashback)
}

// KnowledgeEdge is a typed relation between two knowledge nodes. Both
// endpoints must exist at creation time.
type KnowledgeEdge struct {
	ID         surrealmodels.RecordID `json:"id"`
	In         surrealmodels.RecordID `json:"in"`
	Out        surrealmodels.RecordID `json:"out"`
	Relation   string                 `json:"relation"`
	Attributes map[string]any         `json:"attributes,omitempty"`
	Created    time.Time              `json:"created,omitempty"`
}

// EdgeRef is the storage-independent view of an edge used in snapshots and
// subgraphs: endpoints addressed by node id string.
type EdgeRef struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Relation   string         `json:"relation"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Subgraph is the induced subgraph returned by bounded traversal.
type Subgraph struct {
	Nodes []KnowledgeNode `json:"nodes"`
	Edges []EdgeRef       `json:"edges"`
}

func intAttr(attrs map[string]any, key string, fallback int) int {
	raw, ok := attrs[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func boolAttr(attrs map[string]any, key string) bool {
	v, ok := attrs[key].(bool)
	return ok && v
}
