package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/49nn/ProveNuance2/internal/model"
)

func TestStratifyAcceptsNegationOutsideCycles(t *testing.T) {
	rules := []StratRule{
		{
			Key:  RuleKey("frag_a", "r1"),
			Head: "export_blocked",
			Body: []model.Atom{
				{Pred: "offer_item", Args: []string{"?O", "?I"}},
				{Pred: "license_present", Args: []string{"?I", "?D"}, Negated: true},
			},
		},
		{
			Key:  RuleKey("frag_a", "r2"),
			Head: "flagged",
			Body: []model.Atom{{Pred: "export_blocked", Args: []string{"?I", "?D"}}},
		},
	}
	assert.Nil(t, Stratify(rules))
}

func TestStratifyAcceptsPositiveCycle(t *testing.T) {
	rules := []StratRule{
		{Key: "f/r1", Head: "reachable", Body: []model.Atom{{Pred: "edge", Args: []string{"?A", "?B"}}}},
		{Key: "f/r2", Head: "reachable", Body: []model.Atom{
			{Pred: "reachable", Args: []string{"?A", "?B"}},
			{Pred: "edge", Args: []string{"?B", "?C"}},
		}},
	}
	assert.Nil(t, Stratify(rules))
}

func TestStratifyRejectsMutualNegation(t *testing.T) {
	rules := []StratRule{
		{Key: "f1/r_a", Head: "a", Body: []model.Atom{
			{Pred: "src", Args: []string{"?X"}},
			{Pred: "b", Args: []string{"?X"}, Negated: true},
		}},
		{Key: "f2/r_b", Head: "b", Body: []model.Atom{
			{Pred: "src", Args: []string{"?X"}},
			{Pred: "a", Args: []string{"?X"}, Negated: true},
		}},
	}

	diags := Stratify(rules)
	require.Len(t, diags, 2, "both contributing rules must be named")

	d := diags["f1/r_a"][0]
	assert.Equal(t, CodeStratificationCycle, d.Code)
	assert.Equal(t, []string{"a", "b"}, d.Details["predicates"])
	assert.Equal(t, []string{"f1/r_a", "f2/r_b"}, d.Details["rules"])

	// Dropping either rule makes the program stratifiable again.
	assert.Nil(t, Stratify(rules[:1]))
	assert.Nil(t, Stratify(rules[1:]))
}

func TestStratifyRejectsNegativeSelfLoop(t *testing.T) {
	rules := []StratRule{
		{Key: "f/r1", Head: "p", Body: []model.Atom{
			{Pred: "src", Args: []string{"?X"}},
			{Pred: "p", Args: []string{"?X"}, Negated: true},
		}},
	}
	diags := Stratify(rules)
	require.Contains(t, diags, "f/r1")
	assert.Equal(t, CodeStratificationCycle, diags["f/r1"][0].Code)
}

func TestStratifyIgnoresBuiltins(t *testing.T) {
	rules := []StratRule{
		{Key: "f/r1", Head: "ge_like", Body: []model.Atom{
			{Pred: "src", Args: []string{"?X"}},
			{Pred: "ge", Args: []string{"?X", "10"}},
		}},
	}
	assert.Nil(t, Stratify(rules))
}

func TestStratifyLongerNegativeCycle(t *testing.T) {
	rules := []StratRule{
		{Key: "f/r1", Head: "a", Body: []model.Atom{{Pred: "b", Args: []string{"?X"}}}},
		{Key: "f/r2", Head: "b", Body: []model.Atom{{Pred: "c", Args: []string{"?X"}}}},
		{Key: "f/r3", Head: "c", Body: []model.Atom{{Pred: "a", Args: []string{"?X"}, Negated: true}}},
	}
	diags := Stratify(rules)
	require.NotNil(t, diags)
	assert.Len(t, diags, 3, "every rule on the cycle is named")
	assert.Equal(t, []string{"a", "b", "c"}, diags["f/r1"][0].Details["predicates"])
}
