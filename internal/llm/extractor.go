package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lorekeep/lorekeep/internal/models"
)

// Extractor turns generated prose into structured candidate facts using the
// LLM with a line-oriented pipe format, the same scheme used for graph
// extraction elsewhere in the codebase.
type Extractor struct {
	model *Model
}

// NewExtractor creates a fact extractor on top of a Model.
func NewExtractor(model *Model) *Extractor {
	return &Extractor{model: model}
}

const extractSystemPrompt = `You are a narrative fact extractor. Extract candidate facts from the given passage.

Output format (one per line, no prose):
CHARACTER_STATE|character_key|seq|flashback:true/false|attr=value;attr=value
LOCATION|character_key|location_key|seq|flashback:true/false
EVENT|event_key|seq|flashback:true/false|participant_keys(comma-separated)|location_key|description
RULE|rule_key|violated:true/false|how the rule was used
RELATION|source_type:source_key|target_type:target_key|relation_label

Guidelines:
- Use lowercase keys with hyphens (e.g., "li-hang", "red-keep")
- seq is the chapter/scene sequence number from the passage metadata
- Mark flashback:true only when the passage is explicitly a flashback
- Emit only facts the passage actually states`

// Extract asks the LLM for candidate facts and parses the response.
// seq is injected so the model tags facts with the request's position.
func (e *Extractor) Extract(ctx context.Context, text string, seq int) ([]models.Fact, error) {
	userPrompt := fmt.Sprintf(`Passage (seq=%d):
%s

Extracted facts:`, seq, text)

	raw, err := e.model.GenerateWithSystem(ctx, extractSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("extract facts: %w", err)
	}
	return ParseFacts(raw, seq)
}

// ParseFacts parses the pipe-format extraction output. Lines that do not
// start with a known tag are skipped (models pad output with prose);
// malformed lines under a known tag are returned as errors so the checker
// can reject rather than guess.
func ParseFacts(raw string, defaultSeq int) ([]models.Fact, error) {
	var facts []models.Fact
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		tag := strings.ToUpper(strings.TrimSpace(parts[0]))

		switch tag {
		case "CHARACTER_STATE":
			f, err := parseCharacterState(parts, defaultSeq)
			if err != nil {
				return nil, err
			}
			facts = append(facts, f)
		case "LOCATION":
			f, err := parseLocation(parts, defaultSeq)
			if err != nil {
				return nil, err
			}
			facts = append(facts, f)
		case "EVENT":
			f, err := parseEvent(parts, defaultSeq)
			if err != nil {
				return nil, err
			}
			facts = append(facts, f)
		case "RULE":
			f, err := parseRule(parts)
			if err != nil {
				return nil, err
			}
			facts = append(facts, f)
		case "RELATION":
			f, err := parseRelation(parts)
			if err != nil {
				return nil, err
			}
			facts = append(facts, f)
		default:
			// Not a fact line; models often add commentary around the list.
			continue
		}
	}
	return facts, nil
}

func parseCharacterState(parts []string, defaultSeq int) (models.Fact, error) {
	if len(parts) < 5 {
		return models.Fact{}, fmt.Errorf("malformed CHARACTER_STATE line: %d fields", len(parts))
	}
	attrs := parseAttrs(parts[4])
	return models.Fact{
		Kind: models.FactCharacterState,
		CharacterState: &models.CharacterStateFact{
			Character:  strings.TrimSpace(parts[1]),
			Seq:        parseSeq(parts[2], defaultSeq),
			Flashback:  parseFlag(parts[3]),
			Attributes: attrs,
		},
	}, nil
}

func parseLocation(parts []string, defaultSeq int) (models.Fact, error) {
	if len(parts) < 5 {
		return models.Fact{}, fmt.Errorf("malformed LOCATION line: %d fields", len(parts))
	}
	return models.Fact{
		Kind: models.FactLocationChange,
		LocationChange: &models.LocationChangeFact{
			Character: strings.TrimSpace(parts[1]),
			Location:  strings.TrimSpace(parts[2]),
			Seq:       parseSeq(parts[3], defaultSeq),
			Flashback: parseFlag(parts[4]),
		},
	}, nil
}

func parseEvent(parts []string, defaultSeq int) (models.Fact, error) {
	if len(parts) < 7 {
		return models.Fact{}, fmt.Errorf("malformed EVENT line: %d fields", len(parts))
	}
	var participants []string
	for _, p := range strings.Split(parts[4], ",") {
		if p = strings.TrimSpace(p); p != "" {
			participants = append(participants, p)
		}
	}
	return models.Fact{
		Kind: models.FactEvent,
		Event: &models.EventFact{
			Key:          strings.TrimSpace(parts[1]),
			Seq:          parseSeq(parts[2], defaultSeq),
			Flashback:    parseFlag(parts[3]),
			Participants: participants,
			Location:     strings.TrimSpace(parts[5]),
			Description:  strings.TrimSpace(parts[6]),
		},
	}, nil
}

func parseRule(parts []string) (models.Fact, error) {
	if len(parts) < 4 {
		return models.Fact{}, fmt.Errorf("malformed RULE line: %d fields", len(parts))
	}
	return models.Fact{
		Kind: models.FactRuleInvocation,
		RuleInvocation: &models.RuleInvocationFact{
			Rule:    strings.TrimSpace(parts[1]),
			Violate: parseFlag(parts[2]),
			Usage:   strings.TrimSpace(parts[3]),
		},
	}, nil
}

func parseRelation(parts []string) (models.Fact, error) {
	if len(parts) < 4 {
		return models.Fact{}, fmt.Errorf("malformed RELATION line: %d fields", len(parts))
	}
	srcType, srcKey, err := splitTypedKey(parts[1])
	if err != nil {
		return models.Fact{}, err
	}
	dstType, dstKey, err := splitTypedKey(parts[2])
	if err != nil {
		return models.Fact{}, err
	}
	return models.Fact{
		Kind: models.FactRelation,
		Relation: &models.RelationFact{
			SourceType: srcType,
			SourceKey:  srcKey,
			TargetType: dstType,
			TargetKey:  dstKey,
			Relation:   strings.TrimSpace(parts[3]),
		},
	}, nil
}

func splitTypedKey(s string) (models.NodeType, string, error) {
	s = strings.TrimSpace(s)
	typ, key, ok := strings.Cut(s, ":")
	if !ok {
		return "", "", fmt.Errorf("malformed typed key %q", s)
	}
	nt := models.NodeType(strings.TrimSpace(typ))
	if !models.ValidNodeType(nt) {
		return "", "", fmt.Errorf("unknown node type %q", typ)
	}
	return nt, strings.TrimSpace(key), nil
}

// parseAttrs parses "k=v;k=v" pairs. Bare "true"/"false" values become bools
// so state flags like dead=true compare cleanly against node attributes.
func parseAttrs(s string) map[string]any {
	attrs := map[string]any{}
	for _, pair := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" {
			continue
		}
		switch strings.ToLower(v) {
		case "true":
			attrs[k] = true
		case "false":
			attrs[k] = false
		default:
			attrs[k] = v
		}
	}
	return attrs
}

func parseSeq(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func parseFlag(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasSuffix(s, "true")
}
