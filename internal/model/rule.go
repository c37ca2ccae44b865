package model

// Provenance ties a rule or condition back to the document it was extracted
// from: unit identifiers (section/paragraph) plus a verbatim quote.
type Provenance struct {
	Unit  []string `json:"unit"`
	Quote string   `json:"quote"`
}

// Rule is a Horn clause: Head :- Body[0] ∧ ... ∧ Body[n].
//
// Provenance is a pointer and Assumptions distinguishes nil from empty so
// that an extractor payload that omits either field can be told apart from
// one that supplies it empty; the former is a provenance error.
type Rule struct {
	ID          string             `json:"id"`
	Head        Atom               `json:"head"`
	Body        []Atom             `json:"body"`
	Constraints []string           `json:"constraints,omitempty"`
	Provenance  *Provenance        `json:"provenance,omitempty"`
	Assumptions []ScopedAssumption `json:"assumptions,omitempty"`
	Notes       string             `json:"notes,omitempty"`
}

// IsFact reports whether the rule has an empty body, i.e. asserts its head
// unconditionally.
func (r Rule) IsFact() bool {
	return len(r.Body) == 0
}

// PositiveBody returns the non-negated body atoms.
func (r Rule) PositiveBody() []Atom {
	var atoms []Atom
	for _, a := range r.Body {
		if !a.Negated {
			atoms = append(atoms, a)
		}
	}
	return atoms
}

// NegatedBody returns the body atoms negated under NAF.
func (r Rule) NegatedBody() []Atom {
	var atoms []Atom
	for _, a := range r.Body {
		if a.Negated {
			atoms = append(atoms, a)
		}
	}
	return atoms
}
