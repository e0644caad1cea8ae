package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// MemoryKind classifies a memory entry.
type MemoryKind string

const (
	KindSummary        MemoryKind = "summary"
	KindEvent          MemoryKind = "event"
	KindCharacterState MemoryKind = "character_state"
	KindPlotPoint      MemoryKind = "plot_point"
	KindWorldbuilding  MemoryKind = "worldbuilding"
)

// ValidMemoryKind reports whether k is one of the known memory kinds.
func ValidMemoryKind(k MemoryKind) bool {
	switch k {
	case KindSummary, KindEvent, KindCharacterState, KindPlotPoint, KindWorldbuilding:
		return true
	}
	return false
}

// MemoryEntry is a versioned unit of narrative memory. Entries are immutable
// once written; updates append a new version linked to the previous one via
// Prev. Entries are never physically deleted except by explicit rollback.
type MemoryEntry struct {
	ID        surrealmodels.RecordID `json:"id"`
	Project   string                 `json:"project"`
	Kind      MemoryKind             `json:"kind"`
	Content   string                 `json:"content"`
	Metadata  map[string]any         `json:"metadata,omitempty"`
	Embedding []float32              `json:"embedding,omitempty"`

	// Version chain: strictly monotonic per logical entry. Prev is nil for
	// the first version.
	Version int     `json:"version"`
	Prev    *string `json:"prev,omitempty"`
	Latest  bool    `json:"latest"`

	Created     time.Time `json:"created,omitempty"`
	Accessed    time.Time `json:"accessed,omitempty"`
	AccessCount int       `json:"access_count,omitempty"`

	// Similarity is populated on query results only.
	Similarity float64 `json:"similarity,omitempty"`
}

// MemoryInput is the write-side shape for creating a memory entry.
type MemoryInput struct {
	Project  string
	Kind     MemoryKind
	Content  string
	Metadata map[string]any

	// Embedding may be pre-computed; when nil the store computes it via
	// the embedding provider.
	Embedding []float32
}

// NodeRefs extracts knowledge-node references from entry metadata. The
// convention follows the "node_refs" metadata key holding a list of node ids.
func (in MemoryInput) NodeRefs() []string {
	raw, ok := in.Metadata["node_refs"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		refs := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok {
				refs = append(refs, s)
			}
		}
		return refs
	}
	return nil
}
