package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/49nn/ProveNuance2/internal/manifest"
	"github.com/49nn/ProveNuance2/internal/model"
)

// MaxErrors caps the diagnostics collected for a single candidate; later
// stages are skipped once the cap is reached.
const MaxErrors = 20

// builtins are the comparison predicates exempt from manifest lookup. They
// take exactly two arguments, each a variable or a numeric literal.
var builtins = map[string]struct{}{
	"ge": {}, "gt": {}, "le": {}, "lt": {}, "eq": {}, "ne": {},
}

// IsBuiltin reports whether name is a builtin comparison predicate.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// ConditionLookup resolves condition ids for meets_condition/2 referential
// checks. Implementations must treat conditions accepted earlier in the same
// batch as in scope.
type ConditionLookup interface {
	HasCondition(id string) bool
}

// ConditionSet is a ConditionLookup over a plain id set.
type ConditionSet map[string]struct{}

// HasCondition implements ConditionLookup.
func (s ConditionSet) HasCondition(id string) bool {
	_, ok := s[id]
	return ok
}

// Validator checks candidate rules and conditions against one manifest
// snapshot and one condition scope. It holds no mutable state and is safe
// for concurrent use.
type Validator struct {
	m     *manifest.Manifest
	conds ConditionLookup
}

// New creates a Validator over the given manifest snapshot and condition
// scope.
func New(m *manifest.Manifest, conds ConditionLookup) *Validator {
	if conds == nil {
		conds = ConditionSet{}
	}
	return &Validator{m: m, conds: conds}
}

// ValidateRule runs every structural check on a single candidate rule:
// predicate/arity/position checks per atom, value domains, variable safety,
// provenance presence and scoped-assumption references. Stratification is a
// separate whole-program pass (see Stratify).
func (v *Validator) ValidateRule(r model.Rule) Report {
	var rep Report

	v.checkAtom(r.Head, "/head", true, &rep)
	for i, atom := range r.Body {
		v.checkAtom(atom, fmt.Sprintf("/body/%d", i), false, &rep)
	}

	if len(rep.Errors) < MaxErrors {
		v.checkSafety(r, &rep)
	}
	if len(rep.Errors) < MaxErrors {
		v.checkFactShape(r, &rep)
	}
	if len(r.Constraints) > 0 {
		rep.warnf(WarnConstraintsNotEmpty, "/constraints",
			"rule carries %d non-Horn constraint(s); an empty list is preferred", len(r.Constraints))
	}
	if len(rep.Errors) < MaxErrors {
		v.checkProvenance(r.Provenance, r.Assumptions != nil, &rep)
	}
	if len(rep.Errors) < MaxErrors {
		v.checkAssumptions(r.Assumptions, r.Body, &rep)
	}

	return rep
}

// checkAtom applies the per-atom contract from the manifest: positive head,
// existence, arity, head/body/negated-body permission, value domain for
// literal arguments, closed-world head ban, builtin shape, and meets_condition
// referential integrity. Variable naming is checked for every argument.
func (v *Validator) checkAtom(a model.Atom, path string, inHead bool, rep *Report) {
	// A Horn rule has exactly one positive head atom.
	if inHead && a.Negated {
		rep.errorf(CodeHeadNegated, path+"/negated",
			"set negated=false on the head; move the negation into the body or invert the predicate",
			"rule head %q is negated; a Horn rule head must be a positive atom", a.Pred)
	}

	for i, arg := range a.Args {
		if model.IsVariable(arg) && !model.ValidVariableName(arg) {
			rep.errorf(CodeVarNaming, fmt.Sprintf("%s/args/%d", path, i),
				fmt.Sprintf("rename %q to a valid variable such as '?X' or '?Offer1'", arg),
				"variable %q does not match ^?[A-Za-z][A-Za-z0-9_]*$", arg)
		}
	}

	if IsBuiltin(a.Pred) {
		v.checkBuiltin(a, path, inHead, rep)
		return
	}

	entry, ok := v.m.ByName(a.Pred)
	if !ok {
		if v.m.AllowUnlisted() {
			rep.warnf(WarnPredUnlisted, path+"/pred",
				"predicate %q is not listed in the manifest (permissive mode)", a.Pred)
			return
		}
		rep.errorf(CodePredUnknown, path+"/pred",
			fmt.Sprintf("use a manifest predicate or add %q to the manifest", a.Pred),
			"predicate %q does not exist in the manifest", a.Pred)
		return
	}

	if len(a.Args) != entry.Arity {
		rep.errorf(CodeArityMismatch, path+"/args",
			fmt.Sprintf("supply exactly %d argument(s) for %q", entry.Arity, a.Pred),
			"predicate %q requires %d argument(s), got %d", a.Pred, entry.Arity, len(a.Args))
	}

	if inHead {
		if !entry.AllowedInHead {
			rep.errorf(CodePredNotAllowedInHead, path+"/pred",
				"use a derived or both predicate as the rule head, or set allowed_in.head=true in the manifest",
				"predicate %q (io=%s) may not be a rule head", a.Pred, entry.IO)
		}
		if v.m.IsClosedWorld(entry.Pred) {
			rep.errorf(CodeClosedWorldAsserted, path+"/pred",
				fmt.Sprintf("remove %q from the head; closed-world predicates may only appear under negation", a.Pred),
				"closed-world predicate %q asserted positively as a rule head", entry.Pred)
		}
	} else if a.Negated {
		if !entry.AllowedInNegatedBody && !v.m.IsClosedWorld(entry.Pred) {
			rep.errorf(CodeNegationNotAllowed, path+"/pred",
				fmt.Sprintf("add %q to policy.naf_closed_world_predicates or set allowed_in.negated_body=true", entry.Pred),
				"negation (NAF) of predicate %q is not permitted", a.Pred)
		}
	} else {
		if !entry.AllowedInBody {
			rep.errorf(CodePredNotAllowedInBody, path+"/pred",
				fmt.Sprintf("check allowed_in.body for %q in the manifest", a.Pred),
				"predicate %q may not appear in a rule body", a.Pred)
		}
	}

	if entry.HasValueDomain() {
		k := entry.EnumArgIndex - 1
		if k < len(a.Args) {
			arg := a.Args[k]
			if model.IsConstant(arg) && !entry.AllowsValue(arg) {
				rep.errorf(CodeEnumValueInvalid, fmt.Sprintf("%s/args/%d", path, k),
					fmt.Sprintf("use one of: %s", strings.Join(sortedValues(entry.AllowedValues), ", ")),
					"value %q is outside the declared domain of %q (argument %d)", arg, a.Pred, entry.EnumArgIndex)
			}
		}
	}

	if a.Pred == model.ConditionPred && len(a.Args) == 2 {
		if id := a.Args[1]; model.IsConstant(id) && !v.conds.HasCondition(id) {
			rep.errorf(CodeConditionUnknown, fmt.Sprintf("%s/args/1", path),
				fmt.Sprintf("reference an existing condition id or define %q in new_conditions", id),
				"condition id %q does not exist in the condition dictionary", id)
		}
	}
}

// checkBuiltin validates the shape of a builtin comparison atom. Builtins
// never appear in the manifest and are body-only.
func (v *Validator) checkBuiltin(a model.Atom, path string, inHead bool, rep *Report) {
	if inHead {
		rep.errorf(CodePredNotAllowedInHead, path+"/pred",
			"builtin comparisons may only appear in a rule body",
			"builtin predicate %q may not be a rule head", a.Pred)
	}
	if len(a.Args) != 2 {
		rep.errorf(CodeBuiltinArity, path+"/args",
			fmt.Sprintf("supply exactly 2 arguments for %q", a.Pred),
			"builtin predicate %q requires 2 argument(s), got %d", a.Pred, len(a.Args))
		return
	}
	for i, arg := range a.Args {
		if model.IsVariable(arg) {
			continue
		}
		if !model.ParseNumber(arg) {
			rep.errorf(CodeBuiltinNonNumeric, fmt.Sprintf("%s/args/%d", path, i),
				fmt.Sprintf("use a variable or a numeric literal as argument %d of %q", i+1, a.Pred),
				"non-numeric literal %q in builtin comparison %q", arg, a.Pred)
		}
	}
}

// checkSafety enforces the Datalog range restriction: every head variable and
// every variable under negation must be bound by a positive body atom.
func (v *Validator) checkSafety(r model.Rule, rep *Report) {
	bound := make(map[string]struct{})
	for _, atom := range r.Body {
		if atom.Negated {
			continue
		}
		for _, arg := range atom.Args {
			if model.IsVariable(arg) {
				bound[arg] = struct{}{}
			}
		}
	}

	for _, arg := range r.Head.Args {
		if model.IsVariable(arg) {
			if _, ok := bound[arg]; !ok {
				rep.errorf(CodeVarUnboundHead, "/head/args",
					fmt.Sprintf("add a positive body atom that grounds %q", arg),
					"head variable %q is not bound by any positive body atom", arg)
			}
		}
	}

	for i, atom := range r.Body {
		if !atom.Negated {
			continue
		}
		for _, arg := range atom.Args {
			if model.IsVariable(arg) {
				if _, ok := bound[arg]; !ok {
					rep.errorf(CodeVarUnboundNegated, fmt.Sprintf("/body/%d", i),
						fmt.Sprintf("add a positive atom that grounds %q before negating body[%d]", arg, i),
						"variable %q in negated atom body[%d] is not bound by the positive body", arg, i)
				}
			}
		}
	}
}

// checkFactShape flags rules with an empty body whose head predicate is not
// marked derived: unusual, but not unsound.
func (v *Validator) checkFactShape(r model.Rule, rep *Report) {
	if !r.IsFact() {
		return
	}
	entry, ok := v.m.ByName(r.Head.Pred)
	if !ok {
		return
	}
	if entry.IO != manifest.IODerived && entry.IO != manifest.IOBoth {
		rep.warnf(WarnFactNonDerivedHead, "/body",
			"rule asserts %q unconditionally but its io is %q, not derived", r.Head.Pred, entry.IO)
	}
}

// checkProvenance enforces presence of the provenance and assumptions fields.
// Empty unit/quote are tolerated with warnings.
func (v *Validator) checkProvenance(prov *model.Provenance, hasAssumptions bool, rep *Report) {
	if prov == nil {
		rep.errorf(CodeProvenanceMissing, "/provenance",
			"supply a provenance object with unit and quote (both may be empty)",
			"provenance field is missing")
	} else {
		if len(prov.Unit) == 0 {
			rep.warnf(WarnProvenanceEmptyUnit, "/provenance/unit",
				"provenance.unit is empty; supply a section identifier such as [\"3.1(b)\"]")
		}
		if strings.TrimSpace(prov.Quote) == "" {
			rep.warnf(WarnProvenanceEmptyQuote, "/provenance/quote",
				"provenance.quote is empty; supply a short verbatim fragment from the source")
		}
	}
	if !hasAssumptions {
		rep.errorf(CodeAssumptionsMissing, "/assumptions",
			"supply an assumptions list (an empty list is valid)",
			"assumptions field is missing")
	}
}

// checkAssumptions validates each scoped assumption's references into the
// manifest and into the rule body, and requires a closed_world assumption for
// every closed-world predicate used under negation.
func (v *Validator) checkAssumptions(assumptions []model.ScopedAssumption, body []model.Atom, rep *Report) {
	// Closed-world predicates negated in the body need explicit coverage.
	negatedCW := make(map[string]struct{})
	for _, atom := range body {
		if !atom.Negated {
			continue
		}
		if entry, ok := v.m.ByName(atom.Pred); ok && v.m.IsClosedWorld(entry.Pred) {
			negatedCW[entry.Pred] = struct{}{}
		}
	}

	covered := make(map[string]struct{})
	for i, a := range assumptions {
		if a.Type == model.AssumptionClosedWorld {
			covered[a.About.Pred] = struct{}{}
		}
		v.checkAssumption(a, i, body, rep)
	}

	var missing []string
	for pred := range negatedCW {
		if _, ok := covered[pred]; !ok {
			missing = append(missing, pred)
		}
	}
	sort.Strings(missing)
	for _, pred := range missing {
		rep.errorf(CodeAssumptionRequiredCW, "/assumptions",
			fmt.Sprintf("add an assumption {about:{pred:%q}, type:\"closed_world\", text:\"...\"}", pred),
			"predicate %q is negated under NAF and listed as closed-world; a closed_world assumption is required", pred)
	}
}

func (v *Validator) checkAssumption(a model.ScopedAssumption, idx int, body []model.Atom, rep *Report) {
	base := fmt.Sprintf("/assumptions/%d", idx)

	if !model.ValidAssumptionType(a.Type) {
		rep.errorf(CodeAssumptionTypeBad, base+"/type",
			"use one of the declared assumption types",
			"assumption type %q is not recognised", a.Type)
		return
	}

	// Resolve about.pred: prefer the exact "name/arity" key, fall back to the
	// bare name.
	entry, ok := v.m.ByPred(a.About.Pred)
	if !ok {
		name := a.About.Pred
		if n, _, split := model.SplitPredKey(a.About.Pred); split {
			name = n
		}
		entry, ok = v.m.ByName(name)
	}
	if !ok {
		rep.errorf(CodeAssumptionPredInvalid, base+"/about/pred",
			"use the 'name/arity' form of a manifest predicate",
			"predicate %q referenced by the assumption does not exist in the manifest", a.About.Pred)
		return
	}

	if a.About.AtomIndex == nil {
		return
	}
	atomIdx := *a.About.AtomIndex
	if atomIdx < 0 || atomIdx >= len(body) {
		rep.errorf(CodeAssumptionBadAtomIndex, base+"/about/atom_index",
			fmt.Sprintf("use an atom_index in 0..%d", len(body)-1),
			"atom_index=%d is outside the rule body (%d atom(s))", atomIdx, len(body))
		return
	}

	if a.About.ArgIndex == nil {
		return
	}
	argIdx := *a.About.ArgIndex
	if argIdx < 1 || argIdx > entry.Arity {
		rep.errorf(CodeAssumptionBadArgIndex, base+"/about/arg_index",
			fmt.Sprintf("use an arg_index in 1..%d", entry.Arity),
			"arg_index=%d is outside 1..%d for %q", argIdx, entry.Arity, entry.Pred)
		return
	}

	if a.About.Const == nil {
		return
	}
	refArgs := body[atomIdx].Args
	k := argIdx - 1
	if k < len(refArgs) {
		actual := refArgs[k]
		if model.IsConstant(actual) && actual != *a.About.Const {
			rep.errorf(CodeAssumptionConstMismatch, base+"/about/const",
				fmt.Sprintf("change const to %q or fix atom_index/arg_index", actual),
				"const=%q does not match body[%d].args[%d]=%q", *a.About.Const, atomIdx, k, actual)
		}
	}
}

func sortedValues(set map[string]struct{}) []string {
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}
