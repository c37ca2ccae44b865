// Package model provides the shared data model for extracted Horn rules,
// named conditions and their provenance. This package sits at the bottom of
// the import graph: every other package depends on it and it depends only on
// the standard library.
package model

import (
	"fmt"
	"regexp"
	"strings"
)

// Variable tokens look like ?X, ?Offer1, ?BidPrice.
var variablePattern = regexp.MustCompile(`^\?[A-Za-z][A-Za-z0-9_]*$`)

// Predicate and condition identifiers are snake_case.
var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Atom is a single logical atom: pred(args...), optionally negated under
// stratified negation-as-failure.
//
// Arguments are strings: a leading '?' marks a variable, anything else is a
// literal constant.
type Atom struct {
	Pred    string   `json:"pred"`
	Args    []string `json:"args"`
	Negated bool     `json:"negated,omitempty"`
}

// Key returns the "name/arity" form of the atom's predicate.
func (a Atom) Key() string {
	return PredKey(a.Pred, len(a.Args))
}

// Variables returns the variable tokens appearing in the atom's arguments.
func (a Atom) Variables() []string {
	var vars []string
	for _, arg := range a.Args {
		if IsVariable(arg) {
			vars = append(vars, arg)
		}
	}
	return vars
}

func (a Atom) String() string {
	s := fmt.Sprintf("%s(%s)", a.Pred, strings.Join(a.Args, ", "))
	if a.Negated {
		return "not " + s
	}
	return s
}

// IsVariable reports whether arg is a variable token (leading '?').
func IsVariable(arg string) bool {
	return strings.HasPrefix(arg, "?")
}

// IsConstant reports whether arg is a literal constant.
func IsConstant(arg string) bool {
	return arg != "" && !strings.HasPrefix(arg, "?")
}

// ValidVariableName reports whether a variable token matches the canonical
// pattern ^?[A-Za-z][A-Za-z0-9_]*$.
func ValidVariableName(arg string) bool {
	return variablePattern.MatchString(arg)
}

// ValidIdent reports whether s is a valid snake_case identifier, as required
// for predicate names and condition ids.
func ValidIdent(s string) bool {
	return identPattern.MatchString(s)
}

// PredKey builds the canonical "name/arity" predicate identifier.
func PredKey(name string, arity int) string {
	return fmt.Sprintf("%s/%d", name, arity)
}

// SplitPredKey splits a "name/arity" identifier. ok is false when the string
// is not in that form.
func SplitPredKey(key string) (name string, arity int, ok bool) {
	i := strings.LastIndex(key, "/")
	if i <= 0 || i == len(key)-1 {
		return "", 0, false
	}
	name = key[:i]
	for _, r := range key[i+1:] {
		if r < '0' || r > '9' {
			return "", 0, false
		}
		arity = arity*10 + int(r-'0')
	}
	return name, arity, true
}
