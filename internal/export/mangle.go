// Package export renders the persisted rule set as a Mangle program and
// round-checks the output through the Mangle parser.
package export

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/mangle/parse"

	"github.com/49nn/ProveNuance2/internal/model"
	"github.com/49nn/ProveNuance2/internal/store"
)

// Exporter reads rules from a store and emits Mangle source.
type Exporter struct {
	store *store.Store
}

// New builds an exporter over an open store.
func New(st *store.Store) *Exporter {
	return &Exporter{store: st}
}

// Program renders every stored rule as one Mangle unit, grouped by fragment,
// and verifies that the result parses before returning it.
func (e *Exporter) Program(ctx context.Context) (string, error) {
	rules, err := e.store.AllRules(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load rules for export: %w", err)
	}
	text := Render(rules)
	if err := Verify(text); err != nil {
		return "", err
	}
	return text, nil
}

// Render formats stored rules as Mangle source without verifying it.
func Render(rules []store.StoredRule) string {
	var b strings.Builder
	b.WriteString("# Generated rule export. Do not edit.\n")

	lastFragment := ""
	for _, sr := range rules {
		if sr.FragmentID != lastFragment {
			fmt.Fprintf(&b, "\n# fragment %s\n", sr.FragmentID)
			lastFragment = sr.FragmentID
		}
		b.WriteString(renderRule(sr.Rule))
		b.WriteByte('\n')
	}
	return b.String()
}

// Verify round-checks rendered source through the Mangle parser.
func Verify(program string) error {
	if _, err := parse.Unit(strings.NewReader(program)); err != nil {
		return fmt.Errorf("exported program failed to parse: %w", err)
	}
	return nil
}

func renderRule(r model.Rule) string {
	head := renderAtom(r.Head)
	if len(r.Body) == 0 {
		return head + "."
	}
	parts := make([]string, len(r.Body))
	for i, a := range r.Body {
		parts[i] = renderAtom(a)
	}
	return head + " :- " + strings.Join(parts, ", ") + "."
}

func renderAtom(a model.Atom) string {
	args := make([]string, len(a.Args))
	for i, arg := range a.Args {
		args[i] = renderArg(arg)
	}
	s := fmt.Sprintf("%s(%s)", a.Pred, strings.Join(args, ", "))
	if a.Negated {
		return "!" + s
	}
	return s
}

// renderArg maps ?snake variables to Mangle's uppercase-first form, passes
// numbers through and quotes everything else as a string constant.
func renderArg(arg string) string {
	if model.IsVariable(arg) {
		return mangleVar(arg)
	}
	if model.ParseNumber(arg) {
		return arg
	}
	return strconv.Quote(arg)
}

func mangleVar(v string) string {
	name := strings.TrimPrefix(v, "?")
	if name == "" {
		return "_"
	}
	runes := []rune(name)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
