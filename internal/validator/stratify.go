package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/49nn/ProveNuance2/internal/model"
)

// StratRule is the slice of a rule the stratification pass needs: who defines
// what in terms of predicate names. The key identifies the rule globally as
// "fragment_id/rule_id".
type StratRule struct {
	Key  string
	Head string
	Body []model.Atom
}

// RuleKey builds the global rule identifier used in stratification
// diagnostics.
func RuleKey(fragmentID, ruleID string) string {
	return fragmentID + "/" + ruleID
}

type depEdge struct {
	from    string // body predicate
	to      string // head predicate
	negated bool
	ruleKey string
}

// Stratify checks that the program formed by rules admits a stratification:
// no dependency cycle may contain a negative edge. The graph is built over
// predicate names with an edge from each body predicate to the head
// predicate, labeled negative when the body atom is negated; builtin
// comparisons contribute no edges.
//
// The returned map carries one diagnostic per participating rule, keyed by
// rule key; it is nil when the program is stratifiable.
func Stratify(rules []StratRule) map[string][]Diagnostic {
	var edges []depEdge
	nodes := make(map[string]struct{})
	for _, r := range rules {
		nodes[r.Head] = struct{}{}
		for _, atom := range r.Body {
			if IsBuiltin(atom.Pred) {
				continue
			}
			nodes[atom.Pred] = struct{}{}
			edges = append(edges, depEdge{
				from:    atom.Pred,
				to:      r.Head,
				negated: atom.Negated,
				ruleKey: r.Key,
			})
		}
	}

	sccOf := tarjanSCC(nodes, edges)

	// An SCC is offending when it contains an internal negative edge.
	offending := make(map[int]struct{})
	for _, e := range edges {
		if e.negated && sccOf[e.from] == sccOf[e.to] {
			offending[sccOf[e.from]] = struct{}{}
		}
	}
	if len(offending) == 0 {
		return nil
	}

	// Collect, per offending SCC, the member predicates and every rule
	// contributing an edge inside it.
	sccPreds := make(map[int][]string)
	for pred, id := range sccOf {
		if _, ok := offending[id]; ok {
			sccPreds[id] = append(sccPreds[id], pred)
		}
	}
	sccRules := make(map[int]map[string]struct{})
	for _, e := range edges {
		id := sccOf[e.from]
		if id != sccOf[e.to] {
			continue
		}
		if _, ok := offending[id]; !ok {
			continue
		}
		if sccRules[id] == nil {
			sccRules[id] = make(map[string]struct{})
		}
		sccRules[id][e.ruleKey] = struct{}{}
	}

	out := make(map[string][]Diagnostic)
	for id := range offending {
		preds := sccPreds[id]
		sort.Strings(preds)
		keys := make([]string, 0, len(sccRules[id]))
		for k := range sccRules[id] {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		diag := Diagnostic{
			Code: CodeStratificationCycle,
			Path: "/body",
			Message: fmt.Sprintf(
				"negation cycle through predicate(s) %s makes the program non-stratifiable (rules: %s)",
				strings.Join(preds, ", "), strings.Join(keys, ", ")),
			ExpectedFix: "remove the negation from the cycle or split the mutually dependent predicates",
			Details: map[string]any{
				"predicates": preds,
				"rules":      keys,
			},
		}
		for _, k := range keys {
			out[k] = append(out[k], diag)
		}
	}
	return out
}

// tarjanSCC assigns a strongly-connected-component id to every node.
// Iterative Tarjan to avoid deep recursion on large programs.
func tarjanSCC(nodes map[string]struct{}, edges []depEdge) map[string]int {
	adj := make(map[string][]string, len(nodes))
	for _, e := range edges {
		adj[e.from] = append(adj[e.from], e.to)
	}

	index := make(map[string]int, len(nodes))
	low := make(map[string]int, len(nodes))
	onStack := make(map[string]bool, len(nodes))
	sccOf := make(map[string]int, len(nodes))
	var stack []string
	counter := 0
	sccID := 0

	type frame struct {
		node string
		next int
	}

	ordered := make([]string, 0, len(nodes))
	for n := range nodes {
		ordered = append(ordered, n)
	}
	sort.Strings(ordered)

	for _, start := range ordered {
		if _, seen := index[start]; seen {
			continue
		}
		frames := []frame{{node: start}}
		index[start] = counter
		low[start] = counter
		counter++
		stack = append(stack, start)
		onStack[start] = true

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			if f.next < len(adj[f.node]) {
				next := adj[f.node][f.next]
				f.next++
				if _, seen := index[next]; !seen {
					index[next] = counter
					low[next] = counter
					counter++
					stack = append(stack, next)
					onStack[next] = true
					frames = append(frames, frame{node: next})
				} else if onStack[next] {
					if index[next] < low[f.node] {
						low[f.node] = index[next]
					}
				}
				continue
			}

			// Node finished: pop an SCC if this is a root.
			if low[f.node] == index[f.node] {
				for {
					top := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[top] = false
					sccOf[top] = sccID
					if top == f.node {
						break
					}
				}
				sccID++
			}
			node := f.node
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].node
				if low[node] < low[parent] {
					low[parent] = low[node]
				}
			}
		}
	}

	return sccOf
}
