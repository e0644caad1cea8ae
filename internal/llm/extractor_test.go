package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorekeep/lorekeep/internal/models"
)

func TestParseFactsFullOutput(t *testing.T) {
	raw := `Here are the extracted facts:

CHARACTER_STATE|li-hang|12|flashback:false|dead=true;cause=poison
LOCATION|mira|red-keep|12|flashback:false
EVENT|duel-at-dawn|12|flashback:false|mira,dax|red-keep|Mira and Dax duel at dawn
RULE|no-fire-magic|violated:false|Mira resisted casting fire
RELATION|character:mira|character:dax|KNOWS

That is everything stated in the passage.`

	facts, err := ParseFacts(raw, 12)
	require.NoError(t, err)
	require.Len(t, facts, 5)

	cs := facts[0]
	require.Equal(t, models.FactCharacterState, cs.Kind)
	assert.Equal(t, "li-hang", cs.CharacterState.Character)
	assert.Equal(t, 12, cs.CharacterState.Seq)
	assert.Equal(t, true, cs.CharacterState.Attributes["dead"])
	assert.Equal(t, "poison", cs.CharacterState.Attributes["cause"])

	loc := facts[1]
	require.Equal(t, models.FactLocationChange, loc.Kind)
	assert.Equal(t, "mira", loc.LocationChange.Character)
	assert.Equal(t, "red-keep", loc.LocationChange.Location)

	ev := facts[2]
	require.Equal(t, models.FactEvent, ev.Kind)
	assert.Equal(t, "duel-at-dawn", ev.Event.Key)
	assert.Equal(t, []string{"mira", "dax"}, ev.Event.Participants)
	assert.Equal(t, "red-keep", ev.Event.Location)
	assert.False(t, ev.Event.Flashback)

	rule := facts[3]
	require.Equal(t, models.FactRuleInvocation, rule.Kind)
	assert.Equal(t, "no-fire-magic", rule.RuleInvocation.Rule)
	assert.False(t, rule.RuleInvocation.Violate)

	rel := facts[4]
	require.Equal(t, models.FactRelation, rel.Kind)
	assert.Equal(t, models.NodeCharacter, rel.Relation.SourceType)
	assert.Equal(t, "dax", rel.Relation.TargetKey)
	assert.Equal(t, "KNOWS", rel.Relation.Relation)
}

func TestParseFactsSkipsProse(t *testing.T) {
	facts, err := ParseFacts("Nothing notable happened in this passage.", 3)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestParseFactsMalformedLine(t *testing.T) {
	_, err := ParseFacts("EVENT|only-a-key|5", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed EVENT")
}

func TestParseFactsUnknownRelationType(t *testing.T) {
	_, err := ParseFacts("RELATION|dragon:smaug|location:erebor|LOCATED_IN", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node type")
}

func TestParseFactsSeqFallback(t *testing.T) {
	facts, err := ParseFacts("LOCATION|mira|harbor|unknown|flashback:false", 9)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, 9, facts[0].LocationChange.Seq)
}

func TestParseFactsFlashbackFlag(t *testing.T) {
	facts, err := ParseFacts("EVENT|the-fall|2|flashback:true|li-hang|citadel|Li Hang falls", 8)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.True(t, facts[0].Event.Flashback)
	assert.Equal(t, 2, facts[0].Event.Seq)
}
