package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/49nn/ProveNuance2/internal/model"
)

// ValidateCondition checks a named condition definition: id shape, every fact
// template against the manifest (fact templates are body atoms), provenance
// presence and scoped-assumption references. Cycle detection across condition
// references is a separate dictionary-wide pass (ConditionCycles).
func (v *Validator) ValidateCondition(c model.ConditionDefinition) Report {
	var rep Report

	if !model.ValidIdent(c.ID) {
		rep.errorf(CodeConditionIDInvalid, "/id",
			"use a snake_case id such as 'buyer_active'",
			"condition id %q does not match ^[a-z][a-z0-9_]*$", c.ID)
	}

	for i, atom := range c.RequiredFacts {
		v.checkAtom(atom, fmt.Sprintf("/required_facts/%d", i), false, &rep)
	}
	for i, atom := range c.OptionalFacts {
		v.checkAtom(atom, fmt.Sprintf("/optional_facts/%d", i), false, &rep)
	}

	if len(rep.Errors) < MaxErrors {
		v.checkProvenance(c.Provenance, c.Assumptions != nil, &rep)
	}
	if len(rep.Errors) < MaxErrors {
		v.checkAssumptions(c.Assumptions, c.AllFacts(), &rep)
	}

	return rep
}

// ConditionCycles detects cyclic meets_condition references between condition
// definitions. defs must be the whole dictionary view under consideration
// (stored conditions plus the batch's candidates). Each condition on a cycle
// gets one diagnostic naming the full cycle membership.
func ConditionCycles(defs map[string]model.ConditionDefinition) map[string][]Diagnostic {
	edges := make(map[string][]string, len(defs))
	for id, def := range defs {
		for _, ref := range def.References() {
			if _, ok := defs[ref]; ok {
				edges[id] = append(edges[id], ref)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(defs))
	onCycle := make(map[string]struct{})

	var stack []string
	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		stack = append(stack, id)
		for _, next := range edges[id] {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				// Everything from next to the top of the stack is on a cycle.
				for i := len(stack) - 1; i >= 0; i-- {
					onCycle[stack[i]] = struct{}{}
					if stack[i] == next {
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white {
			visit(id)
		}
	}

	if len(onCycle) == 0 {
		return nil
	}

	members := make([]string, 0, len(onCycle))
	for id := range onCycle {
		members = append(members, id)
	}
	sort.Strings(members)

	out := make(map[string][]Diagnostic, len(onCycle))
	for _, id := range members {
		out[id] = append(out[id], Diagnostic{
			Code:        CodeConditionCycle,
			Path:        "/required_facts",
			Message:     fmt.Sprintf("condition %q participates in a cyclic meets_condition reference: %s", id, strings.Join(members, " -> ")),
			ExpectedFix: "break the cycle by inlining one condition's facts or removing the back reference",
			Details:     map[string]any{"cycle": members},
		})
	}
	return out
}
