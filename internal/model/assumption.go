package model

// AssumptionType categorises an interpretive assumption.
type AssumptionType string

const (
	AssumptionDataContract        AssumptionType = "data_contract"
	AssumptionDataSemantics       AssumptionType = "data_semantics"
	AssumptionEnumeration         AssumptionType = "enumeration"
	AssumptionClosedWorld         AssumptionType = "closed_world"
	AssumptionExternalComputation AssumptionType = "external_computation"
	AssumptionConflictResolution  AssumptionType = "conflict_resolution"
	AssumptionMissingPredicate    AssumptionType = "missing_predicate"
)

var assumptionTypes = map[AssumptionType]struct{}{
	AssumptionDataContract:        {},
	AssumptionDataSemantics:       {},
	AssumptionEnumeration:         {},
	AssumptionClosedWorld:         {},
	AssumptionExternalComputation: {},
	AssumptionConflictResolution:  {},
	AssumptionMissingPredicate:    {},
}

// ValidAssumptionType reports whether t is one of the known categories.
func ValidAssumptionType(t AssumptionType) bool {
	_, ok := assumptionTypes[t]
	return ok
}

// AssumptionAbout pins an assumption to a coordinate inside a rule or
// condition: a predicate in "name/arity" form, optionally narrowed to a body
// atom (0-based), an argument (1-based) and a literal constant.
type AssumptionAbout struct {
	Pred      string  `json:"pred"`
	AtomIndex *int    `json:"atom_index,omitempty"`
	ArgIndex  *int    `json:"arg_index,omitempty"`
	Const     *string `json:"const,omitempty"`
}

// ScopedAssumption is an interpretive note attached to a specific place in a
// rule or condition.
type ScopedAssumption struct {
	About AssumptionAbout `json:"about"`
	Type  AssumptionType  `json:"type"`
	Text  string          `json:"text"`
}
