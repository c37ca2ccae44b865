package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/49nn/ProveNuance2/internal/model"
)

func highValueCondition() model.ConditionDefinition {
	return model.ConditionDefinition{
		ID:      "high_value",
		Meaning: "the item is high value for export control purposes",
		RequiredFacts: []model.Atom{
			{Pred: "item_category", Args: []string{"?Item", "dual_use"}},
		},
		OptionalFacts: []model.Atom{
			{Pred: "offer_item", Args: []string{"?Offer", "?Item"}},
		},
		Provenance:  prov(),
		Assumptions: emptyAssumptions(),
	}
}

func TestValidConditionAccepted(t *testing.T) {
	v := New(auctionManifest(t), nil)
	rep := v.ValidateCondition(highValueCondition())
	assert.True(t, rep.Valid(), "unexpected errors: %v", rep.Errors)
}

func TestConditionIDMustBeSnakeCase(t *testing.T) {
	v := New(auctionManifest(t), nil)
	c := highValueCondition()
	c.ID = "HighValue"
	rep := v.ValidateCondition(c)
	assert.Contains(t, codes(rep.Errors), CodeConditionIDInvalid)
}

func TestConditionFactsValidatedAsBodyAtoms(t *testing.T) {
	v := New(auctionManifest(t), nil)

	c := highValueCondition()
	c.RequiredFacts[0].Pred = "mystery"
	rep := v.ValidateCondition(c)
	assert.Contains(t, codes(rep.Errors), CodePredUnknown)

	c = highValueCondition()
	c.OptionalFacts[0].Args = []string{"?Offer"}
	rep = v.ValidateCondition(c)
	assert.Contains(t, codes(rep.Errors), CodeArityMismatch)

	c = highValueCondition()
	c.RequiredFacts[0].Args[1] = "contraband"
	rep = v.ValidateCondition(c)
	assert.Contains(t, codes(rep.Errors), CodeEnumValueInvalid)
}

func TestConditionProvenanceRequired(t *testing.T) {
	v := New(auctionManifest(t), nil)

	c := highValueCondition()
	c.Provenance = nil
	rep := v.ValidateCondition(c)
	assert.Contains(t, codes(rep.Errors), CodeProvenanceMissing)

	c = highValueCondition()
	c.Assumptions = nil
	rep = v.ValidateCondition(c)
	assert.Contains(t, codes(rep.Errors), CodeAssumptionsMissing)
}

func TestConditionMayReferenceOtherConditions(t *testing.T) {
	v := New(auctionManifest(t), ConditionSet{"declared_origin": {}})
	c := highValueCondition()
	c.RequiredFacts = append(c.RequiredFacts,
		model.Atom{Pred: "meets_condition", Args: []string{"?Item", "declared_origin"}})
	rep := v.ValidateCondition(c)
	assert.True(t, rep.Valid(), "unexpected errors: %v", rep.Errors)

	c.RequiredFacts[1].Args[1] = "undeclared"
	rep = v.ValidateCondition(c)
	assert.Contains(t, codes(rep.Errors), CodeConditionUnknown)
}

func conditionReferencing(id string, refs ...string) model.ConditionDefinition {
	c := model.ConditionDefinition{
		ID:          id,
		Provenance:  prov(),
		Assumptions: emptyAssumptions(),
	}
	for _, ref := range refs {
		c.RequiredFacts = append(c.RequiredFacts,
			model.Atom{Pred: model.ConditionPred, Args: []string{"?E", ref}})
	}
	return c
}

func TestConditionCyclesDetected(t *testing.T) {
	defs := map[string]model.ConditionDefinition{
		"a": conditionReferencing("a", "b"),
		"b": conditionReferencing("b", "a"),
		"c": conditionReferencing("c", "a"),
		"d": conditionReferencing("d"),
	}

	cyclic := ConditionCycles(defs)
	require.Contains(t, cyclic, "a")
	require.Contains(t, cyclic, "b")
	assert.NotContains(t, cyclic, "c", "referencing a cyclic condition is not itself cyclic")
	assert.NotContains(t, cyclic, "d")
	assert.Equal(t, CodeConditionCycle, cyclic["a"][0].Code)
	assert.Equal(t, []string{"a", "b"}, cyclic["a"][0].Details["cycle"])
}

func TestConditionCyclesSelfReference(t *testing.T) {
	defs := map[string]model.ConditionDefinition{
		"solo": conditionReferencing("solo", "solo"),
	}
	cyclic := ConditionCycles(defs)
	require.Contains(t, cyclic, "solo")
}

func TestConditionCyclesCleanDictionary(t *testing.T) {
	defs := map[string]model.ConditionDefinition{
		"a": conditionReferencing("a", "b"),
		"b": conditionReferencing("b"),
	}
	assert.Nil(t, ConditionCycles(defs))
}
