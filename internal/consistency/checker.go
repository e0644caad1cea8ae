// Package consistency validates extracted candidate facts against an
// established knowledge graph state and stages the writes a clean commit
// should apply.
package consistency

import (
	"fmt"
	"log/slog"

	"github.com/lorekeep/lorekeep/internal/db"
	"github.com/lorekeep/lorekeep/internal/errs"
	"github.com/lorekeep/lorekeep/internal/graph"
	"github.com/lorekeep/lorekeep/internal/models"
)

// Result is the outcome of checking one piece of generated content: the
// full finding list plus the graph writes staged for commit. Staged writes
// must only be applied when no blocking finding is present.
type Result struct {
	Findings []models.ConsistencyFinding
	Nodes    []db.NodeUpsert
	Edges    []db.EdgeStage
}

// Blocked reports whether the result contains a blocking finding.
func (r *Result) Blocked() bool {
	return models.HasBlocking(r.Findings)
}

// BlockingError carries the finding list when blocking findings survive the
// retry budget. It unwraps to the consistency sentinel so callers can match
// with errors.Is.
type BlockingError struct {
	Findings []models.ConsistencyFinding
}

func (e *BlockingError) Error() string {
	return fmt.Sprintf("%d blocking consistency findings", countBlocking(e.Findings))
}

func (e *BlockingError) Unwrap() error { return errs.ErrConsistencyBlocking }

func countBlocking(findings []models.ConsistencyFinding) int {
	n := 0
	for _, f := range findings {
		if f.Severity == models.SeverityBlocking {
			n++
		}
	}
	return n
}

// Checker evaluates facts against a graph snapshot. Checks are pure reads
// of the snapshot; snapshot isolation means concurrent commits never change
// the verdict mid-check.
type Checker struct {
	logger *slog.Logger
}

// NewChecker creates a checker.
func NewChecker(logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{logger: logger}
}

// Check validates facts against the snapshot. contentRef identifies the
// generated content in findings. Facts are processed in order; earlier
// staged facts are visible to later ones so one batch stays self-consistent.
func (c *Checker) Check(contentRef string, snap *models.GraphSnapshot, facts []models.Fact) *Result {
	run := &checkRun{
		ref:    contentRef,
		snap:   snap,
		result: &Result{},
		staged: map[string]*db.NodeUpsert{},
	}
	for _, fact := range facts {
		if err := fact.Validate(); err != nil {
			run.finding(models.FindingMalformedFact, models.SeverityBlocking,
				fmt.Sprintf("malformed fact: %v", err))
			continue
		}
		switch fact.Kind {
		case models.FactCharacterState:
			run.checkCharacterState(fact.CharacterState)
		case models.FactLocationChange:
			run.checkLocationChange(fact.LocationChange)
		case models.FactEvent:
			run.checkEvent(fact.Event)
		case models.FactRuleInvocation:
			run.checkRuleInvocation(fact.RuleInvocation)
		case models.FactRelation:
			run.checkRelation(fact.Relation)
		}
	}
	run.materialize()
	c.logger.Debug("consistency check complete",
		"content", contentRef, "facts", len(facts),
		"findings", len(run.result.Findings), "blocking", countBlocking(run.result.Findings),
		"staged_nodes", len(run.result.Nodes), "staged_edges", len(run.result.Edges))
	return run.result
}

type checkRun struct {
	ref    string
	snap   *models.GraphSnapshot
	result *Result
	staged map[string]*db.NodeUpsert
	order  []string
}

// materialize flattens the staged map into the result in staging order.
func (r *checkRun) materialize() {
	for _, id := range r.order {
		r.result.Nodes = append(r.result.Nodes, *r.staged[id])
	}
}

func (r *checkRun) finding(kind models.FindingKind, sev models.Severity, desc string, conflicts ...string) {
	r.result.Findings = append(r.result.Findings, models.ConsistencyFinding{
		ContentRef:  r.ref,
		Kind:        kind,
		Severity:    sev,
		Description: desc,
		Conflicts:   conflicts,
	})
}

// node resolves a node by identity, preferring writes staged earlier in
// this batch over the snapshot.
func (r *checkRun) node(typ models.NodeType, key string) (attrs map[string]any, exists bool) {
	id := models.NodeID(r.snap.Project, typ, key)
	if staged, ok := r.staged[id]; ok {
		return staged.Attributes, true
	}
	if n := r.snap.Node(typ, key); n != nil {
		return n.Attributes, true
	}
	return nil, false
}

// stage records a node write, merging attributes into an earlier staged
// write for the same node.
func (r *checkRun) stage(typ models.NodeType, key string, attrs map[string]any) {
	id := models.NodeID(r.snap.Project, typ, key)
	if existing, ok := r.staged[id]; ok {
		for k, v := range attrs {
			existing.Attributes[k] = v
		}
		return
	}
	up := &db.NodeUpsert{Type: typ, Key: key, Attributes: map[string]any{}}
	if n := r.snap.Node(typ, key); n != nil {
		for k, v := range n.Attributes {
			up.Attributes[k] = v
		}
	}
	for k, v := range attrs {
		up.Attributes[k] = v
	}
	r.staged[id] = up
	r.order = append(r.order, id)
}

func (r *checkRun) stageEdge(sourceID, targetID, relation string) {
	for _, e := range r.result.Edges {
		if e.SourceID == sourceID && e.TargetID == targetID && e.Relation == relation {
			return
		}
	}
	r.result.Edges = append(r.result.Edges, db.EdgeStage{
		SourceID: sourceID, TargetID: targetID, Relation: relation,
	})
}

// deathConflict returns the node id establishing the character's death on
// or before seq: either the character's own dead attribute or a death event
// they participated in. Flashbacks are exempt.
func (r *checkRun) deathConflict(character string, seq int, flashback bool) (string, bool) {
	if flashback {
		return "", false
	}
	charID := models.NodeID(r.snap.Project, models.NodeCharacter, character)
	if attrs, ok := r.node(models.NodeCharacter, character); ok {
		if dead, _ := attrs[models.AttrDead].(bool); dead {
			return charID, true
		}
	}
	for _, ev := range r.snap.CharacterEvents(character) {
		if ev.Flashback() {
			continue
		}
		if dead, _ := ev.Attributes[models.AttrDead].(bool); dead && (seq < 0 || ev.Seq() <= seq) {
			return models.NodeID(r.snap.Project, models.NodeEvent, ev.Key), true
		}
	}
	return "", false
}

// latestSeq returns the highest established event sequence the character
// participates in, or -1 when none.
func (r *checkRun) latestSeq(character string) int {
	max := -1
	for _, ev := range r.snap.CharacterEvents(character) {
		if ev.Flashback() {
			continue
		}
		if s := ev.Seq(); s > max {
			max = s
		}
	}
	return max
}

func (r *checkRun) checkCharacterState(f *models.CharacterStateFact) {
	attrs, exists := r.node(models.NodeCharacter, f.Character)
	if !exists {
		r.stage(models.NodeCharacter, f.Character, f.Attributes)
		return
	}
	if conflict, dead := r.deathConflict(f.Character, f.Seq, f.Flashback); dead {
		if v, ok := f.Attributes[models.AttrDead].(bool); ok && !v {
			r.finding(models.FindingContradiction, models.SeverityBlocking,
				fmt.Sprintf("character %q is established as dead and cannot be revived without a flashback", f.Character),
				conflict)
			return
		}
		if _, restated := f.Attributes[models.AttrDead]; !restated {
			r.finding(models.FindingContradiction, models.SeverityBlocking,
				fmt.Sprintf("character %q is established as dead but is depicted acting", f.Character),
				conflict)
			return
		}
	}
	// Overwriting an established attribute is surfaced as a warning; the
	// change still stages and the replaced value stays auditable on the
	// node's prior attribute set.
	refinement := true
	for k, v := range f.Attributes {
		if prev, ok := attrs[k]; ok && prev != v {
			refinement = false
			r.finding(models.FindingContradiction, models.SeverityWarning,
				fmt.Sprintf("character %q attribute %q changes from %v to %v", f.Character, k, prev, v),
				models.NodeID(r.snap.Project, models.NodeCharacter, f.Character))
		}
	}
	if refinement && len(f.Attributes) > 0 {
		r.finding(models.FindingRefinement, models.SeverityInfo,
			fmt.Sprintf("character %q gains attributes without contradiction", f.Character))
	}
	r.stage(models.NodeCharacter, f.Character, f.Attributes)
}

func (r *checkRun) checkLocationChange(f *models.LocationChangeFact) {
	if conflict, dead := r.deathConflict(f.Character, f.Seq, f.Flashback); dead {
		r.finding(models.FindingContradiction, models.SeverityBlocking,
			fmt.Sprintf("character %q is established as dead but is depicted moving to %q", f.Character, f.Location),
			conflict)
		return
	}
	if _, exists := r.node(models.NodeCharacter, f.Character); !exists {
		r.finding(models.FindingUnknownEntity, models.SeverityWarning,
			fmt.Sprintf("location change for unknown character %q", f.Character))
		r.stage(models.NodeCharacter, f.Character, nil)
	}
	if attrs, exists := r.node(models.NodeCharacter, f.Character); exists {
		if cur, _ := attrs[models.AttrLocation].(string); cur == f.Location && cur != "" {
			r.finding(models.FindingRefinement, models.SeverityInfo,
				fmt.Sprintf("character %q is already at %q", f.Character, f.Location))
		}
	}
	if _, exists := r.node(models.NodeLocation, f.Location); !exists {
		r.stage(models.NodeLocation, f.Location, nil)
	}
	r.stage(models.NodeCharacter, f.Character, map[string]any{models.AttrLocation: f.Location})
	r.stageEdge(
		models.NodeID(r.snap.Project, models.NodeCharacter, f.Character),
		models.NodeID(r.snap.Project, models.NodeLocation, f.Location),
		graph.RelLocatedIn)
}

func (r *checkRun) checkEvent(f *models.EventFact) {
	for _, participant := range f.Participants {
		if conflict, dead := r.deathConflict(participant, f.Seq, f.Flashback); dead {
			r.finding(models.FindingContradiction, models.SeverityBlocking,
				fmt.Sprintf("character %q is established as dead but participates in event %q", participant, f.Key),
				conflict)
			return
		}
		if !f.Flashback {
			if latest := r.latestSeq(participant); latest >= 0 && f.Seq >= 0 && f.Seq < latest {
				r.finding(models.FindingCausalOrder, models.SeverityWarning,
					fmt.Sprintf("event %q at sequence %d precedes character %q's established sequence %d without a flashback tag", f.Key, f.Seq, participant, latest))
			}
		}
		if _, exists := r.node(models.NodeCharacter, participant); !exists {
			r.finding(models.FindingUnknownEntity, models.SeverityWarning,
				fmt.Sprintf("event %q involves unknown character %q", f.Key, participant))
			r.stage(models.NodeCharacter, participant, nil)
		}
	}
	if f.Location != "" {
		if _, exists := r.node(models.NodeLocation, f.Location); !exists {
			r.stage(models.NodeLocation, f.Location, nil)
		}
	}

	attrs := map[string]any{models.AttrSeq: f.Seq}
	if f.Description != "" {
		attrs["description"] = f.Description
	}
	if f.Flashback {
		attrs[models.AttrFlashback] = true
	}
	r.stage(models.NodeEvent, f.Key, attrs)

	eventID := models.NodeID(r.snap.Project, models.NodeEvent, f.Key)
	for _, participant := range f.Participants {
		r.stageEdge(models.NodeID(r.snap.Project, models.NodeCharacter, participant), eventID, graph.RelParticipatedIn)
	}
	if f.Location != "" {
		r.stageEdge(eventID, models.NodeID(r.snap.Project, models.NodeLocation, f.Location), graph.RelOccurredAt)
	}
}

func (r *checkRun) checkRuleInvocation(f *models.RuleInvocationFact) {
	ruleID := models.NodeID(r.snap.Project, models.NodeRule, f.Rule)
	if _, exists := r.node(models.NodeRule, f.Rule); !exists {
		r.finding(models.FindingUnknownEntity, models.SeverityWarning,
			fmt.Sprintf("text invokes unknown rule %q", f.Rule))
		return
	}
	if f.Violate {
		r.finding(models.FindingRuleViolation, models.SeverityBlocking,
			fmt.Sprintf("text violates established rule %q: %s", f.Rule, f.Usage),
			ruleID)
	}
}

func (r *checkRun) checkRelation(f *models.RelationFact) {
	for _, end := range []struct {
		typ models.NodeType
		key string
	}{{f.SourceType, f.SourceKey}, {f.TargetType, f.TargetKey}} {
		if !models.ValidNodeType(end.typ) {
			r.finding(models.FindingMalformedFact, models.SeverityBlocking,
				fmt.Sprintf("relation endpoint has unknown node type %q", end.typ))
			return
		}
		if _, exists := r.node(end.typ, end.key); !exists {
			r.finding(models.FindingUnknownEntity, models.SeverityWarning,
				fmt.Sprintf("relation %q references unknown %s %q", f.Relation, end.typ, end.key))
			r.stage(end.typ, end.key, nil)
		}
	}
	r.stageEdge(
		models.NodeID(r.snap.Project, f.SourceType, f.SourceKey),
		models.NodeID(r.snap.Project, f.TargetType, f.TargetKey),
		f.Relation)
}
