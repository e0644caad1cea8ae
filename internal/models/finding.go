package models

// Severity grades a consistency finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityBlocking Severity = "blocking"
)

// FindingKind names the class of inconsistency detected.
type FindingKind string

const (
	FindingContradiction  FindingKind = "contradiction"
	FindingCausalOrder    FindingKind = "causal_order"
	FindingRuleViolation  FindingKind = "rule_violation"
	FindingRefinement     FindingKind = "refinement"
	FindingUnknownEntity  FindingKind = "unknown_entity"
	FindingMalformedFact  FindingKind = "malformed_fact"
)

// ConsistencyFinding records one validation result for newly generated
// content against the established graph state.
type ConsistencyFinding struct {
	// ContentRef identifies the triggering content (request id).
	ContentRef  string      `json:"content_ref"`
	Kind        FindingKind `json:"kind"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	// Conflicts lists node ids of the established facts contradicted.
	Conflicts []string `json:"conflicts,omitempty"`
}

// HasBlocking reports whether any finding in the list is blocking.
func HasBlocking(findings []ConsistencyFinding) bool {
	for _, f := range findings {
		if f.Severity == SeverityBlocking {
			return true
		}
	}
	return false
}
