package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestNodeID(t *testing.T) {
	assert.Equal(t, "novel:character:mira", NodeID("novel", NodeCharacter, "mira"))
}

func TestRecordIDString(t *testing.T) {
	s, err := RecordIDString(surrealmodels.NewRecordID("node", "novel:character:mira"))
	require.NoError(t, err)
	assert.Equal(t, "novel:character:mira", s)

	_, err = RecordIDString(surrealmodels.NewRecordID("node", 42))
	assert.Error(t, err)
}

func TestNodeSeqAttr(t *testing.T) {
	// Attribute maps decoded from storage carry numbers as float64/uint64.
	assert.Equal(t, 7, KnowledgeNode{Attributes: map[string]any{AttrSeq: float64(7)}}.Seq())
	assert.Equal(t, 7, KnowledgeNode{Attributes: map[string]any{AttrSeq: uint64(7)}}.Seq())
	assert.Equal(t, 7, KnowledgeNode{Attributes: map[string]any{AttrSeq: 7}}.Seq())
	assert.Equal(t, -1, KnowledgeNode{}.Seq())
	assert.Equal(t, -1, KnowledgeNode{Attributes: map[string]any{AttrSeq: "soon"}}.Seq())
}

func TestNodeFlashbackAttr(t *testing.T) {
	assert.True(t, KnowledgeNode{Attributes: map[string]any{AttrFlashback: true}}.Flashback())
	assert.False(t, KnowledgeNode{Attributes: map[string]any{AttrFlashback: "yes"}}.Flashback())
	assert.False(t, KnowledgeNode{}.Flashback())
}

func TestValidNodeType(t *testing.T) {
	assert.True(t, ValidNodeType(NodeRule))
	assert.False(t, ValidNodeType("dragon"))
}

func TestHasBlocking(t *testing.T) {
	findings := []ConsistencyFinding{
		{Severity: SeverityInfo},
		{Severity: SeverityWarning},
	}
	assert.False(t, HasBlocking(findings))
	assert.True(t, HasBlocking(append(findings, ConsistencyFinding{Severity: SeverityBlocking})))
}

func TestFactValidate(t *testing.T) {
	valid := Fact{
		Kind:  FactEvent,
		Event: &EventFact{Key: "duel", Seq: 3},
	}
	assert.NoError(t, valid.Validate())

	assert.Error(t, Fact{Kind: FactEvent}.Validate())
	assert.Error(t, Fact{Kind: FactCharacterState, CharacterState: &CharacterStateFact{}}.Validate())
	assert.Error(t, Fact{Kind: "prophecy"}.Validate())
	assert.Error(t, Fact{
		Kind:     FactRelation,
		Relation: &RelationFact{SourceKey: "mira"},
	}.Validate())
}

func TestSnapshotNodeLookup(t *testing.T) {
	snap := NewGraphSnapshot("snap-1", "novel", 3, time.Now(), []KnowledgeNode{
		{Project: "novel", Type: NodeCharacter, Key: "mira"},
		{Project: "novel", Type: NodeLocation, Key: "harbor"},
	}, nil)

	require.NotNil(t, snap.Node(NodeCharacter, "mira"))
	assert.Nil(t, snap.Node(NodeCharacter, "dax"))
	assert.Nil(t, snap.Node(NodeLocation, "mira"), "lookup is type-scoped")
}

func TestSnapshotCharacterEvents(t *testing.T) {
	nodes := []KnowledgeNode{
		{Project: "novel", Type: NodeCharacter, Key: "mira"},
		{Project: "novel", Type: NodeEvent, Key: "storm", Attributes: map[string]any{AttrSeq: 3}},
		{Project: "novel", Type: NodeEvent, Key: "duel", Attributes: map[string]any{AttrSeq: 5}},
	}
	edges := []EdgeRef{
		{Source: "novel:character:mira", Target: "novel:event:storm", Relation: "PARTICIPATED_IN"},
	}
	snap := NewGraphSnapshot("snap-1", "novel", 3, time.Now(), nodes, edges)

	events := snap.CharacterEvents("mira")
	require.Len(t, events, 1)
	assert.Equal(t, "storm", events[0].Key)
	assert.Equal(t, 3, events[0].Seq())

	assert.Empty(t, snap.CharacterEvents("dax"))
}
