package model

// ConditionPred is the predicate through which rules reference named
// conditions: meets_condition(Entity, condition_id).
const ConditionPred = "meets_condition"

// ConditionDefinition is a named, reusable bundle of fact templates.
// The id is a stable, globally unique snake_case token used as the second
// argument of meets_condition/2.
type ConditionDefinition struct {
	ID            string             `json:"id"`
	Meaning       string             `json:"meaning_pl"`
	RequiredFacts []Atom             `json:"required_facts"`
	OptionalFacts []Atom             `json:"optional_facts"`
	Provenance    *Provenance        `json:"provenance,omitempty"`
	Assumptions   []ScopedAssumption `json:"assumptions,omitempty"`
	Notes         string             `json:"notes,omitempty"`
}

// AllFacts returns required followed by optional fact templates.
func (c ConditionDefinition) AllFacts() []Atom {
	facts := make([]Atom, 0, len(c.RequiredFacts)+len(c.OptionalFacts))
	facts = append(facts, c.RequiredFacts...)
	facts = append(facts, c.OptionalFacts...)
	return facts
}

// References returns the condition ids this definition depends on through
// meets_condition atoms with a literal id argument.
func (c ConditionDefinition) References() []string {
	var refs []string
	for _, a := range c.AllFacts() {
		if a.Pred == ConditionPred && len(a.Args) == 2 && IsConstant(a.Args[1]) {
			refs = append(refs, a.Args[1])
		}
	}
	return refs
}
