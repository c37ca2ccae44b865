package model

import "strconv"

// DerivedPredicate is the extractor's declaration of a predicate produced by
// its rules: "name/arity" plus a short meaning.
type DerivedPredicate struct {
	Pred    string `json:"pred"`
	Meaning string `json:"meaning"`
}

// Name returns the predicate name without the arity suffix.
func (d DerivedPredicate) Name() string {
	name, _, ok := SplitPredKey(d.Pred)
	if !ok {
		return d.Pred
	}
	return name
}

// Arity returns the declared arity, or -1 when Pred is malformed.
func (d DerivedPredicate) Arity() int {
	_, arity, ok := SplitPredKey(d.Pred)
	if !ok {
		return -1
	}
	return arity
}

// Constant is a domain literal discovered during extraction.
type Constant struct {
	Value   string `json:"value"`
	Meaning string `json:"meaning_pl,omitempty"`
	Domain  string `json:"domain,omitempty"`
}

// Batch is one source fragment's worth of candidate artifacts, produced by
// the external extractor and consumed by the validation engine.
type Batch struct {
	FragmentID        string                `json:"fragment_id"`
	Domain            string                `json:"domain,omitempty"`
	Rules             []Rule                `json:"rules"`
	NewConditions     []ConditionDefinition `json:"new_conditions"`
	DerivedPredicates []DerivedPredicate    `json:"derived_predicates"`
}

// ParseNumber reports whether a literal argument parses as a number, as
// required by the builtin comparison predicates.
func ParseNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
