package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/49nn/ProveNuance2/internal/manifest"
	"github.com/49nn/ProveNuance2/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testManifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	m, err := manifest.New([]manifest.PredicateSpec{
		{Name: "offer_item", Arity: 2, Signature: []string{"offer_id", "item"}, IO: manifest.IOInput, Kind: manifest.KindDomain},
		{
			Name: "item_category", Arity: 2, Signature: []string{"item", "category"},
			IO: manifest.IOInput, Kind: manifest.KindDomain, Meaning: "item belongs to a customs category",
			ValueDomain: &manifest.ValueDomain{EnumArgIndex: 2, AllowedValues: []string{"weapon", "dual_use", "consumer"}},
		},
		{Name: "license_present", Arity: 2, Signature: []string{"item", "dest"}, IO: manifest.IOInput, Kind: manifest.KindDomain},
		{Name: "export_blocked", Arity: 2, Signature: []string{"item", "dest"}, IO: manifest.IODerived, Kind: manifest.KindDecision},
	}, manifest.Policy{
		WhitelistMode:            manifest.WhitelistAllowOnlyListed,
		NAFClosedWorldPredicates: []string{"license_present/2"},
	})
	if err != nil {
		t.Fatalf("Failed to build manifest: %v", err)
	}
	return m
}

func testRule(id string) model.Rule {
	return model.Rule{
		ID:   id,
		Head: model.Atom{Pred: "export_blocked", Args: []string{"?Item", "?Dest"}},
		Body: []model.Atom{
			{Pred: "offer_item", Args: []string{"?Offer", "?Item"}},
			{Pred: "item_category", Args: []string{"?Item", "dual_use"}},
			{Pred: "license_present", Args: []string{"?Item", "?Dest"}, Negated: true},
		},
		Provenance: &model.Provenance{Unit: []string{"3.1(b)"}, Quote: "no export without a license"},
		Assumptions: []model.ScopedAssumption{{
			About: model.AssumptionAbout{Pred: "license_present/2"},
			Type:  model.AssumptionClosedWorld,
			Text:  "absence of a license record means no license",
		}},
	}
}

func TestOpenCreatesSchemaOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rules.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open store at %s: %v", path, err)
	}
	defer s.Close()

	if _, err := s.AllRules(context.Background()); err != nil {
		t.Fatalf("Schema not initialized: %v", err)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadManifest(ctx); !errors.Is(err, ErrNoManifest) {
		t.Fatalf("Expected ErrNoManifest on empty store, got %v", err)
	}

	m := testManifest(t)
	if err := s.SaveManifest(ctx, m); err != nil {
		t.Fatalf("SaveManifest failed: %v", err)
	}

	loaded, err := s.LoadManifest(ctx)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if loaded.Len() != m.Len() {
		t.Errorf("Loaded %d predicates, want %d", loaded.Len(), m.Len())
	}
	if !loaded.IsClosedWorld("license_present/2") {
		t.Error("Closed-world policy lost on round trip")
	}

	entry, ok := loaded.ByName("item_category")
	if !ok {
		t.Fatal("item_category missing after round trip")
	}
	if !entry.HasValueDomain() || !entry.AllowsValue("dual_use") || entry.AllowsValue("contraband") {
		t.Error("Value domain lost on round trip")
	}
	if entry.Meaning != "item belongs to a customs category" {
		t.Errorf("Meaning lost on round trip: %q", entry.Meaning)
	}

	input, _ := loaded.ByName("offer_item")
	if input.AllowedInHead || !input.AllowedInBody {
		t.Error("allowed_in defaults lost on round trip")
	}
}

func TestCommitFragmentIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	commit := FragmentCommit{
		FragmentID: "frag_1",
		Domain:     "auction",
		Rules:      []model.Rule{testRule("r1")},
		Conditions: []model.ConditionDefinition{{
			ID:            "high_value",
			Meaning:       "item is high value",
			RequiredFacts: []model.Atom{{Pred: "item_category", Args: []string{"?I", "dual_use"}}},
			Provenance:    &model.Provenance{Unit: []string{"2"}, Quote: "high value items"},
			Assumptions:   []model.ScopedAssumption{},
		}},
		Constants: []model.Constant{{Value: "dual_use", Domain: "auction"}},
	}

	if err := s.CommitFragment(ctx, commit); err != nil {
		t.Fatalf("First commit failed: %v", err)
	}
	first, err := s.AllRules(ctx)
	if err != nil {
		t.Fatalf("AllRules failed: %v", err)
	}

	if err := s.CommitFragment(ctx, commit); err != nil {
		t.Fatalf("Second commit failed: %v", err)
	}
	second, err := s.AllRules(ctx)
	if err != nil {
		t.Fatalf("AllRules failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Re-commit changed stored rules:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if len(second) != 1 {
		t.Errorf("Expected 1 rule after re-commit, got %d", len(second))
	}
}

func TestRuleOverwriteSameKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := testRule("r1")
	if err := s.CommitFragment(ctx, FragmentCommit{FragmentID: "frag_1", Domain: "auction", Rules: []model.Rule{r}}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	r.Body = r.Body[:2] // drop the negated atom
	if err := s.CommitFragment(ctx, FragmentCommit{FragmentID: "frag_1", Domain: "auction", Rules: []model.Rule{r}}); err != nil {
		t.Fatalf("Overwrite commit failed: %v", err)
	}

	rules, err := s.RulesByFragment(ctx, "frag_1")
	if err != nil {
		t.Fatalf("RulesByFragment failed: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("Expected 1 rule, got %d", len(rules))
	}
	if len(rules[0].Rule.Body) != 2 {
		t.Errorf("Body not overwritten: %d atoms", len(rules[0].Rule.Body))
	}
}

func TestRulesByHeadPred(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CommitFragment(ctx, FragmentCommit{
		FragmentID: "frag_1", Domain: "auction", Rules: []model.Rule{testRule("r1"), testRule("r2")},
	}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	rules, err := s.RulesByHeadPred(ctx, "export_blocked/2")
	if err != nil {
		t.Fatalf("RulesByHeadPred failed: %v", err)
	}
	if len(rules) != 2 {
		t.Errorf("Expected 2 rules for export_blocked/2, got %d", len(rules))
	}

	none, err := s.RulesByHeadPred(ctx, "flagged/1")
	if err != nil {
		t.Fatalf("RulesByHeadPred failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Expected no rules for flagged/1, got %d", len(none))
	}
}

func TestConditionMeaningCoalesce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := model.ConditionDefinition{
		ID:            "buyer_active",
		Meaning:       "the buyer account is in good standing",
		RequiredFacts: []model.Atom{{Pred: "offer_item", Args: []string{"?O", "?I"}}},
		Provenance:    &model.Provenance{Unit: []string{"1"}, Quote: "active buyers"},
		Assumptions:   []model.ScopedAssumption{},
	}
	if err := s.CommitFragment(ctx, FragmentCommit{FragmentID: "f1", Conditions: []model.ConditionDefinition{first}}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	second := first
	second.Meaning = "a different reading"
	second.RequiredFacts = []model.Atom{{Pred: "item_category", Args: []string{"?I", "consumer"}}}
	if err := s.CommitFragment(ctx, FragmentCommit{FragmentID: "f2", Conditions: []model.ConditionDefinition{second}}); err != nil {
		t.Fatalf("Re-commit failed: %v", err)
	}

	got, err := s.Condition(ctx, "buyer_active")
	if err != nil {
		t.Fatalf("Condition lookup failed: %v", err)
	}
	if got.Meaning != first.Meaning {
		t.Errorf("First non-empty meaning must win, got %q", got.Meaning)
	}
	if len(got.RequiredFacts) != 1 || got.RequiredFacts[0].Pred != "item_category" {
		t.Errorf("Fact lists must be replaced wholesale, got %+v", got.RequiredFacts)
	}

	// An empty stored meaning is filled by the next non-empty one.
	empty := first
	empty.ID = "origin_declared"
	empty.Meaning = ""
	if err := s.CommitFragment(ctx, FragmentCommit{FragmentID: "f3", Conditions: []model.ConditionDefinition{empty}}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	filled := empty
	filled.Meaning = "origin paperwork was filed"
	if err := s.CommitFragment(ctx, FragmentCommit{FragmentID: "f4", Conditions: []model.ConditionDefinition{filled}}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	got, err = s.Condition(ctx, "origin_declared")
	if err != nil {
		t.Fatalf("Condition lookup failed: %v", err)
	}
	if got.Meaning != "origin paperwork was filed" {
		t.Errorf("Empty meaning should be filled, got %q", got.Meaning)
	}
}

func TestConditionNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Condition(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestAssumptionOverwriteNotDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sa := StoredAssumption{
		FragmentID: "f1",
		SourceType: SourceRule,
		SourceID:   "r1",
		Domain:     "auction",
		Assumption: model.ScopedAssumption{
			About: model.AssumptionAbout{Pred: "license_present/2"},
			Type:  model.AssumptionClosedWorld,
			Text:  "first reading",
		},
	}
	if err := s.CommitFragment(ctx, FragmentCommit{FragmentID: "f1", Assumptions: []StoredAssumption{sa}}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	sa.Assumption.Text = "revised reading"
	if err := s.CommitFragment(ctx, FragmentCommit{FragmentID: "f1", Assumptions: []StoredAssumption{sa}}); err != nil {
		t.Fatalf("Re-commit failed: %v", err)
	}

	got, err := s.AssumptionsByType(ctx, model.AssumptionClosedWorld)
	if err != nil {
		t.Fatalf("AssumptionsByType failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 assumption row, got %d", len(got))
	}
	if got[0].Assumption.Text != "revised reading" {
		t.Errorf("Text not overwritten: %q", got[0].Assumption.Text)
	}

	byPred, err := s.AssumptionsByAboutPred(ctx, "license_present/2")
	if err != nil {
		t.Fatalf("AssumptionsByAboutPred failed: %v", err)
	}
	if len(byPred) != 1 {
		t.Errorf("Expected 1 assumption by pred, got %d", len(byPred))
	}
}

func TestConstantMeaningAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	commit := func(c model.Constant) {
		t.Helper()
		if err := s.CommitFragment(ctx, FragmentCommit{FragmentID: "f1", Constants: []model.Constant{c}}); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
	}

	commit(model.Constant{Value: "dual_use", Domain: "auction"})
	commit(model.Constant{Value: "dual_use", Meaning: "may have military applications", Domain: "auction"})
	commit(model.Constant{Value: "dual_use", Meaning: "a later contradictory meaning", Domain: "auction"})

	got, err := s.Constants(ctx)
	if err != nil {
		t.Fatalf("Constants failed: %v", err)
	}
	c, ok := got["dual_use"]
	if !ok {
		t.Fatal("Constant dual_use missing")
	}
	if c.Meaning != "may have military applications" {
		t.Errorf("First non-empty meaning must stick, got %q", c.Meaning)
	}
}

func TestDerivedPredicateMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	commit := func(frag string, d StoredDerived) {
		t.Helper()
		if err := s.CommitFragment(ctx, FragmentCommit{FragmentID: frag, Derived: []StoredDerived{d}}); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
	}

	commit("f1", StoredDerived{Pred: model.DerivedPredicate{Pred: "flagged/1"}, Domain: "auction", SourceFragmentID: "f1"})
	commit("f2", StoredDerived{
		Pred:             model.DerivedPredicate{Pred: "flagged/1", Meaning: "item needs manual review"},
		Domain:           "auction",
		SourceFragmentID: "f2",
	})

	got, err := s.DerivedPredicates(ctx)
	if err != nil {
		t.Fatalf("DerivedPredicates failed: %v", err)
	}
	d, ok := got["flagged/1"]
	if !ok {
		t.Fatal("Derived predicate flagged/1 missing")
	}
	if d.Pred.Meaning != "item needs manual review" {
		t.Errorf("Later non-empty meaning must win, got %q", d.Pred.Meaning)
	}
	if d.SourceFragmentID != "f2" {
		t.Errorf("Source fragment must follow the latest writer, got %q", d.SourceFragmentID)
	}
}

func TestQuoteCappedAt400(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := testRule("r1")
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'q'
	}
	r.Provenance.Quote = string(long)

	if err := s.CommitFragment(ctx, FragmentCommit{FragmentID: "f1", Rules: []model.Rule{r}}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	rules, err := s.AllRules(ctx)
	if err != nil {
		t.Fatalf("AllRules failed: %v", err)
	}
	if got := len(rules[0].Rule.Provenance.Quote); got != 400 {
		t.Errorf("Quote should be capped at 400 chars, got %d", got)
	}
}
