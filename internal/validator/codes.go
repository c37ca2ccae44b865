// Package validator statically checks candidate Horn rules and named
// conditions against a predicate manifest snapshot, and checks that the
// global rule set stays stratifiable. It is pure: all state comes in through
// the manifest and condition lookup passed at construction.
package validator

import "fmt"

// Class groups diagnostic codes into the error taxonomy exposed to callers.
type Class string

const (
	ClassSchema         Class = "SchemaViolation"
	ClassPolicy         Class = "PolicyViolation"
	ClassReferential    Class = "ReferentialError"
	ClassStratification Class = "StratificationError"
	ClassProvenance     Class = "ProvenanceError"
	ClassConflict       Class = "ConflictError"
	ClassPersistence    Class = "PersistenceError"
)

// Code is a stable machine-readable diagnostic identifier. The E_ constants
// mirror the upstream extraction contract so repair prompts stay stable.
type Code string

const (
	// Schema violations
	CodePredUnknown          Code = "E_PRED_UNKNOWN"
	CodeArityMismatch        Code = "E_ARITY_MISMATCH"
	CodeBuiltinArity         Code = "E_BUILTIN_ARITY"
	CodeBuiltinNonNumeric    Code = "E_BUILTIN_NON_NUMERIC"
	CodeVarNaming            Code = "E_VAR_NAMING"
	CodeConditionIDInvalid   Code = "E_CONDITION_ID_INVALID"
	CodeRuleIDInvalid        Code = "E_RULE_ID_INVALID"
	CodeAssumptionTypeBad    Code = "E_ASSUMPTION_TYPE_INVALID"

	// Policy violations
	CodeHeadNegated          Code = "E_HEAD_NEGATED"
	CodePredNotAllowedInHead Code = "E_PRED_NOT_ALLOWED_IN_HEAD"
	CodePredNotAllowedInBody Code = "E_PRED_NOT_ALLOWED_IN_BODY"
	CodeNegationNotAllowed   Code = "E_NEGATION_NOT_ALLOWED_FOR_PRED"
	CodeClosedWorldAsserted  Code = "E_CLOSED_WORLD_ASSERTED"
	CodeEnumValueInvalid     Code = "E_ENUM_VALUE_INVALID"
	CodeVarUnboundHead       Code = "E_VAR_UNBOUND_HEAD"
	CodeVarUnboundNegated    Code = "E_VAR_UNBOUND_NEGATED"

	// Referential errors
	CodeConditionUnknown Code = "E_CONDITION_UNKNOWN"
	CodeConditionCycle   Code = "E_CONDITION_CYCLE"

	// Stratification
	CodeStratificationCycle Code = "E_STRATIFICATION_CYCLE"

	// Provenance
	CodeProvenanceMissing  Code = "E_PROVENANCE_MISSING"
	CodeAssumptionsMissing Code = "E_ASSUMPTIONS_MISSING"

	// Assumption referential checks
	CodeAssumptionPredInvalid   Code = "E_ASSUMPTION_PRED_INVALID"
	CodeAssumptionBadAtomIndex  Code = "E_ASSUMPTION_BAD_ATOM_INDEX"
	CodeAssumptionBadArgIndex   Code = "E_ASSUMPTION_BAD_ARG_INDEX"
	CodeAssumptionConstMismatch Code = "E_ASSUMPTION_CONST_MISMATCH"
	CodeAssumptionRequiredCW    Code = "E_ASSUMPTION_REQUIRED_CLOSED_WORLD"

	// Conflict / persistence
	CodeConflictingDuplicate Code = "E_CONFLICTING_DUPLICATE"
	CodePersistence          Code = "E_PERSISTENCE"
)

// Warning codes. Warnings never block acceptance.
const (
	WarnFactNonDerivedHead   = "W_FACT_NON_DERIVED_HEAD"
	WarnConstraintsNotEmpty  = "W_CONSTRAINTS_NOT_EMPTY"
	WarnProvenanceEmptyUnit  = "W_PROVENANCE_EMPTY_UNIT"
	WarnProvenanceEmptyQuote = "W_PROVENANCE_EMPTY_QUOTE"
	WarnPredUnlisted         = "W_PRED_UNLISTED"
)

// Class maps a code to its taxonomy class.
func (c Code) Class() Class {
	switch c {
	case CodePredUnknown, CodeArityMismatch, CodeBuiltinArity, CodeBuiltinNonNumeric,
		CodeVarNaming, CodeConditionIDInvalid, CodeRuleIDInvalid, CodeAssumptionTypeBad:
		return ClassSchema
	case CodeHeadNegated, CodePredNotAllowedInHead, CodePredNotAllowedInBody, CodeNegationNotAllowed,
		CodeClosedWorldAsserted, CodeEnumValueInvalid, CodeVarUnboundHead, CodeVarUnboundNegated:
		return ClassPolicy
	case CodeConditionUnknown, CodeConditionCycle,
		CodeAssumptionPredInvalid, CodeAssumptionBadAtomIndex,
		CodeAssumptionBadArgIndex, CodeAssumptionConstMismatch, CodeAssumptionRequiredCW:
		return ClassReferential
	case CodeStratificationCycle:
		return ClassStratification
	case CodeProvenanceMissing, CodeAssumptionsMissing:
		return ClassProvenance
	case CodeConflictingDuplicate:
		return ClassConflict
	case CodePersistence:
		return ClassPersistence
	}
	return ClassSchema
}

// Diagnostic is one structured validation error: a stable code, a
// JSON-Pointer-style path into the offending payload, a human message and a
// mechanical fix hint for the upstream extractor.
type Diagnostic struct {
	Code        Code           `json:"code"`
	Path        string         `json:"path"`
	Message     string         `json:"message"`
	ExpectedFix string         `json:"expected_fix,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// Class returns the taxonomy class of the diagnostic.
func (d Diagnostic) Class() Class {
	return d.Code.Class()
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s: %s", d.Code, d.Path, d.Message)
}

// Warning is a non-blocking finding.
type Warning struct {
	Code    string `json:"code"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Report is the verdict for one candidate rule or condition. Errors are
// accumulated, not fail-fast, so the caller can surface every defect at once.
type Report struct {
	Errors   []Diagnostic `json:"errors"`
	Warnings []Warning    `json:"warnings"`
}

// Valid reports whether the candidate passed (warnings do not count).
func (r *Report) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Report) errorf(code Code, path, fix string, format string, args ...any) {
	r.Errors = append(r.Errors, Diagnostic{
		Code:        code,
		Path:        path,
		Message:     fmt.Sprintf(format, args...),
		ExpectedFix: fix,
	})
}

func (r *Report) warnf(code, path string, format string, args ...any) {
	r.Warnings = append(r.Warnings, Warning{
		Code:    code,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	})
}
