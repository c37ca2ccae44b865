// Package manifest holds the predicate manifest and policy: the closed set of
// predicates the validator accepts, with their shapes and usage constraints.
//
// A Manifest is an immutable snapshot. Loading a new manifest never mutates an
// existing one; callers that want hot reload install a fresh snapshot and let
// in-flight validations finish against the one they started with.
package manifest

import (
	"errors"
	"fmt"

	"github.com/49nn/ProveNuance2/internal/model"
)

// ErrSchemaViolation marks manifest construction failures: bad arity,
// signature length mismatch, out-of-range value domains, duplicate entries.
var ErrSchemaViolation = errors.New("manifest schema violation")

// Arity bounds for manifest predicates.
const (
	MinArity = 1
	MaxArity = 16
)

// IO describes the data-flow direction of a predicate.
type IO string

const (
	IOInput   IO = "input"   // supplied as EDB facts
	IODerived IO = "derived" // produced by rules
	IOBoth    IO = "both"    // either; use with care
)

// Kind describes the predicate's role in the domain model.
type Kind string

const (
	KindDomain    Kind = "domain"
	KindCondition Kind = "condition"
	KindDecision  Kind = "decision"
	KindUI        Kind = "ui"
	KindAudit     Kind = "audit"
	KindBuiltin   Kind = "builtin"
)

// WhitelistMode values for Policy.
const (
	WhitelistAllowOnlyListed = "allow_only_listed"
	WhitelistAllowUnlisted   = "allow_unlisted"
)

// AllowedIn controls where a predicate may appear in a Horn rule.
type AllowedIn struct {
	Head        bool `yaml:"head" json:"head"`
	Body        bool `yaml:"body" json:"body"`
	NegatedBody bool `yaml:"negated_body" json:"negated_body"`
}

// ValueDomain restricts one argument position (1-based) to an enumerated set
// of literal values.
type ValueDomain struct {
	EnumArgIndex  int      `yaml:"enum_arg_index" json:"enum_arg_index"`
	AllowedValues []string `yaml:"allowed_values" json:"allowed_values"`
}

// PredicateSpec is one manifest entry as written in the manifest file.
type PredicateSpec struct {
	Name        string       `yaml:"name" json:"name"`
	Arity       int          `yaml:"arity" json:"arity"`
	Pred        string       `yaml:"pred,omitempty" json:"pred,omitempty"`
	Signature   []string     `yaml:"signature" json:"signature"`
	IO          IO           `yaml:"io" json:"io"`
	Kind        Kind         `yaml:"kind" json:"kind"`
	Meaning     string       `yaml:"meaning_pl,omitempty" json:"meaning_pl,omitempty"`
	Domain      string       `yaml:"domain,omitempty" json:"domain,omitempty"`
	AllowedIn   *AllowedIn   `yaml:"allowed_in,omitempty" json:"allowed_in,omitempty"`
	ValueDomain *ValueDomain `yaml:"value_domain,omitempty" json:"value_domain,omitempty"`
	Notes       string       `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// CanonicalPred returns the "name/arity" identifier for the spec.
func (s PredicateSpec) CanonicalPred() string {
	if s.Pred != "" {
		return s.Pred
	}
	return model.PredKey(s.Name, s.Arity)
}

// Policy is the manifest-wide usage policy.
type Policy struct {
	WhitelistMode            string   `yaml:"whitelist_mode" json:"whitelist_mode"`
	NAFClosedWorldPredicates []string `yaml:"naf_closed_world_predicates" json:"naf_closed_world_predicates"`
}

// Entry is the flattened, lookup-ready form of a PredicateSpec.
type Entry struct {
	Name                 string
	Arity                int
	Pred                 string
	Signature            []string
	IO                   IO
	Kind                 Kind
	Meaning              string
	Domain               string
	AllowedInHead        bool
	AllowedInBody        bool
	AllowedInNegatedBody bool
	EnumArgIndex         int // 1-based; 0 when no value domain
	AllowedValues        map[string]struct{}
	Notes                string
}

// HasValueDomain reports whether the entry carries an enum constraint.
func (e *Entry) HasValueDomain() bool {
	return e.EnumArgIndex > 0
}

// AllowsValue reports whether v is admitted by the entry's value domain.
// Entries without a value domain admit everything.
func (e *Entry) AllowsValue(v string) bool {
	if !e.HasValueDomain() {
		return true
	}
	_, ok := e.AllowedValues[v]
	return ok
}

// Manifest is an immutable snapshot of predicate specs plus policy.
type Manifest struct {
	version     string
	policy      Policy
	specs       []PredicateSpec
	byName      map[string]*Entry
	byPred      map[string]*Entry
	closedWorld map[string]struct{}
}

// New builds a Manifest from specs and policy, failing with a wrapped
// ErrSchemaViolation on the first structurally invalid spec.
func New(specs []PredicateSpec, policy Policy) (*Manifest, error) {
	if policy.WhitelistMode == "" {
		policy.WhitelistMode = WhitelistAllowOnlyListed
	}
	if policy.WhitelistMode != WhitelistAllowOnlyListed && policy.WhitelistMode != WhitelistAllowUnlisted {
		return nil, fmt.Errorf("%w: unknown whitelist_mode %q", ErrSchemaViolation, policy.WhitelistMode)
	}

	m := &Manifest{
		policy:      policy,
		specs:       specs,
		byName:      make(map[string]*Entry, len(specs)),
		byPred:      make(map[string]*Entry, len(specs)),
		closedWorld: make(map[string]struct{}, len(policy.NAFClosedWorldPredicates)),
	}

	for _, spec := range specs {
		entry, err := buildEntry(spec)
		if err != nil {
			return nil, err
		}
		// One lexical name has one arity, so the name check also guards the
		// "name/arity" pred key.
		if _, dup := m.byName[entry.Name]; dup {
			return nil, fmt.Errorf("%w: predicate %q registered twice", ErrSchemaViolation, entry.Name)
		}
		m.byName[entry.Name] = entry
		m.byPred[entry.Pred] = entry
	}

	for _, pred := range policy.NAFClosedWorldPredicates {
		if _, _, ok := model.SplitPredKey(pred); !ok {
			return nil, fmt.Errorf("%w: naf_closed_world entry %q is not in name/arity form", ErrSchemaViolation, pred)
		}
		m.closedWorld[pred] = struct{}{}
	}

	return m, nil
}

func buildEntry(spec PredicateSpec) (*Entry, error) {
	if !model.ValidIdent(spec.Name) {
		return nil, fmt.Errorf("%w: predicate name %q is not snake_case", ErrSchemaViolation, spec.Name)
	}
	if spec.Arity < MinArity || spec.Arity > MaxArity {
		return nil, fmt.Errorf("%w: predicate %q arity %d outside %d..%d",
			ErrSchemaViolation, spec.Name, spec.Arity, MinArity, MaxArity)
	}
	if len(spec.Signature) != spec.Arity {
		return nil, fmt.Errorf("%w: predicate %q has %d signature entries for arity %d",
			ErrSchemaViolation, spec.Name, len(spec.Signature), spec.Arity)
	}
	if spec.Pred != "" && spec.Pred != model.PredKey(spec.Name, spec.Arity) {
		return nil, fmt.Errorf("%w: predicate %q declares pred %q, want %q",
			ErrSchemaViolation, spec.Name, spec.Pred, model.PredKey(spec.Name, spec.Arity))
	}

	io := spec.IO
	if io == "" {
		io = IOInput
	}
	kind := spec.Kind
	if kind == "" {
		kind = KindDomain
	}
	domain := spec.Domain
	if domain == "" {
		domain = "generic"
	}

	head, body, negated := defaultAllowedIn(io)
	if spec.AllowedIn != nil {
		head = spec.AllowedIn.Head
		body = spec.AllowedIn.Body
		negated = spec.AllowedIn.NegatedBody
	}

	entry := &Entry{
		Name:                 spec.Name,
		Arity:                spec.Arity,
		Pred:                 spec.CanonicalPred(),
		Signature:            spec.Signature,
		IO:                   io,
		Kind:                 kind,
		Meaning:              spec.Meaning,
		Domain:               domain,
		AllowedInHead:        head,
		AllowedInBody:        body,
		AllowedInNegatedBody: negated,
		Notes:                spec.Notes,
	}

	if vd := spec.ValueDomain; vd != nil {
		if vd.EnumArgIndex < 1 || vd.EnumArgIndex > spec.Arity {
			return nil, fmt.Errorf("%w: predicate %q value_domain index %d outside 1..%d",
				ErrSchemaViolation, spec.Name, vd.EnumArgIndex, spec.Arity)
		}
		if len(vd.AllowedValues) == 0 {
			return nil, fmt.Errorf("%w: predicate %q value_domain has no allowed values", ErrSchemaViolation, spec.Name)
		}
		entry.EnumArgIndex = vd.EnumArgIndex
		entry.AllowedValues = make(map[string]struct{}, len(vd.AllowedValues))
		for _, v := range vd.AllowedValues {
			entry.AllowedValues[v] = struct{}{}
		}
	}

	return entry, nil
}

// defaultAllowedIn derives position permissions from the io direction when a
// spec has no explicit allowed_in:
//
//	input   → head=false (EDB facts are not derived by rules)
//	derived → head=true, negated_body=false
//	both    → head=true, negated_body=true
func defaultAllowedIn(io IO) (head, body, negated bool) {
	switch io {
	case IOInput:
		return false, true, false
	case IODerived:
		return true, true, false
	default:
		return true, true, true
	}
}

// ByName looks up an entry by predicate name.
func (m *Manifest) ByName(name string) (*Entry, bool) {
	e, ok := m.byName[name]
	return e, ok
}

// ByPred looks up an entry by "name/arity".
func (m *Manifest) ByPred(pred string) (*Entry, bool) {
	e, ok := m.byPred[pred]
	return e, ok
}

// IsClosedWorld reports whether pred ("name/arity") is on the policy's
// closed-world list.
func (m *Manifest) IsClosedWorld(pred string) bool {
	_, ok := m.closedWorld[pred]
	return ok
}

// AllowUnlisted reports whether the policy tolerates predicates absent from
// the manifest.
func (m *Manifest) AllowUnlisted() bool {
	return m.policy.WhitelistMode == WhitelistAllowUnlisted
}

// Policy returns a copy of the manifest policy.
func (m *Manifest) Policy() Policy {
	return m.policy
}

// Specs returns the specs this manifest was built from.
func (m *Manifest) Specs() []PredicateSpec {
	return m.specs
}

// Version returns the manifest file's version tag, if any.
func (m *Manifest) Version() string {
	return m.version
}

// Len returns the number of registered predicates.
func (m *Manifest) Len() int {
	return len(m.byName)
}
