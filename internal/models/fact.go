package models

import "fmt"

// FactKind tags the variant of an extracted candidate fact.
type FactKind string

const (
	FactCharacterState FactKind = "character_state"
	FactLocationChange FactKind = "location_change"
	FactEvent          FactKind = "event"
	FactRuleInvocation FactKind = "rule_invocation"
	FactRelation       FactKind = "relation"
)

// Fact is a tagged variant: exactly one payload field matching Kind is set.
// Modeling facts as typed payloads rather than untyped maps lets the checker
// handle every kind exhaustively and reject unknown kinds explicitly.
type Fact struct {
	Kind FactKind `json:"kind"`

	CharacterState *CharacterStateFact `json:"character_state,omitempty"`
	LocationChange *LocationChangeFact `json:"location_change,omitempty"`
	Event          *EventFact          `json:"event,omitempty"`
	RuleInvocation *RuleInvocationFact `json:"rule_invocation,omitempty"`
	Relation       *RelationFact       `json:"relation,omitempty"`
}

// CharacterStateFact asserts attribute values for a character.
type CharacterStateFact struct {
	Character  string         `json:"character"`
	Attributes map[string]any `json:"attributes"`
	Seq        int            `json:"seq"`
	Flashback  bool           `json:"flashback,omitempty"`
}

// LocationChangeFact asserts a character moved to a location.
type LocationChangeFact struct {
	Character string `json:"character"`
	Location  string `json:"location"`
	Seq       int    `json:"seq"`
	Flashback bool   `json:"flashback,omitempty"`
}

// EventFact asserts an event occurred at a sequence position.
type EventFact struct {
	Key          string   `json:"key"`
	Description  string   `json:"description"`
	Participants []string `json:"participants,omitempty"`
	Location     string   `json:"location,omitempty"`
	Seq          int      `json:"seq"`
	Flashback    bool     `json:"flashback,omitempty"`
}

// RuleInvocationFact asserts generated text invoked a world rule.
type RuleInvocationFact struct {
	Rule    string `json:"rule"`
	Usage   string `json:"usage"`
	Violate bool   `json:"violate,omitempty"`
}

// RelationFact asserts a relation between two entities.
type RelationFact struct {
	SourceType NodeType `json:"source_type"`
	SourceKey  string   `json:"source_key"`
	TargetType NodeType `json:"target_type"`
	TargetKey  string   `json:"target_key"`
	Relation   string   `json:"relation"`
}

// Validate checks that exactly the payload matching Kind is present.
func (f Fact) Validate() error {
	switch f.Kind {
	case FactCharacterState:
		if f.CharacterState == nil || f.CharacterState.Character == "" {
			return fmt.Errorf("character_state fact missing character")
		}
	case FactLocationChange:
		if f.LocationChange == nil || f.LocationChange.Character == "" || f.LocationChange.Location == "" {
			return fmt.Errorf("location_change fact missing character or location")
		}
	case FactEvent:
		if f.Event == nil || f.Event.Key == "" {
			return fmt.Errorf("event fact missing key")
		}
	case FactRuleInvocation:
		if f.RuleInvocation == nil || f.RuleInvocation.Rule == "" {
			return fmt.Errorf("rule_invocation fact missing rule")
		}
	case FactRelation:
		if f.Relation == nil || f.Relation.SourceKey == "" || f.Relation.TargetKey == "" {
			return fmt.Errorf("relation fact missing endpoints")
		}
	default:
		return fmt.Errorf("unknown fact kind %q", f.Kind)
	}
	return nil
}
