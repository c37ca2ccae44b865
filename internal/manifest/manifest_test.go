package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpecs() []PredicateSpec {
	return []PredicateSpec{
		{Name: "offer_item", Arity: 2, Signature: []string{"offer_id", "item"}, IO: IOInput, Kind: KindDomain},
		{Name: "export_allowed", Arity: 2, Signature: []string{"item", "dest"}, IO: IODerived, Kind: KindDecision},
		{Name: "audit_entry", Arity: 3, Signature: []string{"id", "actor", "action"}, IO: IOBoth, Kind: KindAudit},
		{
			Name: "item_category", Arity: 2, Signature: []string{"item", "category"},
			IO: IOInput, Kind: KindDomain,
			ValueDomain: &ValueDomain{EnumArgIndex: 2, AllowedValues: []string{"weapon", "dual_use", "consumer"}},
		},
		{Name: "license_present", Arity: 2, Signature: []string{"item", "dest"}, IO: IOInput, Kind: KindDomain},
	}
}

func testPolicy() Policy {
	return Policy{
		WhitelistMode:            WhitelistAllowOnlyListed,
		NAFClosedWorldPredicates: []string{"license_present/2"},
	}
}

func TestNewDefaultsByIO(t *testing.T) {
	m, err := New(testSpecs(), testPolicy())
	require.NoError(t, err)

	input, ok := m.ByName("offer_item")
	require.True(t, ok)
	assert.False(t, input.AllowedInHead)
	assert.True(t, input.AllowedInBody)
	assert.False(t, input.AllowedInNegatedBody)

	derived, ok := m.ByName("export_allowed")
	require.True(t, ok)
	assert.True(t, derived.AllowedInHead)
	assert.True(t, derived.AllowedInBody)
	assert.False(t, derived.AllowedInNegatedBody)

	both, ok := m.ByName("audit_entry")
	require.True(t, ok)
	assert.True(t, both.AllowedInHead)
	assert.True(t, both.AllowedInBody)
	assert.True(t, both.AllowedInNegatedBody)
}

func TestNewExplicitAllowedInWins(t *testing.T) {
	specs := testSpecs()
	specs[0].AllowedIn = &AllowedIn{Head: true, Body: true, NegatedBody: true}
	m, err := New(specs, testPolicy())
	require.NoError(t, err)

	e, ok := m.ByName("offer_item")
	require.True(t, ok)
	assert.True(t, e.AllowedInHead)
	assert.True(t, e.AllowedInNegatedBody)
}

func TestNewRejectsBadSpecs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*[]PredicateSpec, *Policy)
	}{
		{"uppercase name", func(s *[]PredicateSpec, p *Policy) { (*s)[0].Name = "OfferItem" }},
		{"zero arity", func(s *[]PredicateSpec, p *Policy) { (*s)[0].Arity = 0; (*s)[0].Signature = nil }},
		{"arity above max", func(s *[]PredicateSpec, p *Policy) {
			(*s)[0].Arity = 17
			(*s)[0].Signature = make([]string, 17)
		}},
		{"signature length mismatch", func(s *[]PredicateSpec, p *Policy) { (*s)[0].Signature = []string{"only_one"} }},
		{"pred inconsistent with name/arity", func(s *[]PredicateSpec, p *Policy) { (*s)[0].Pred = "offer_item/3" }},
		{"duplicate name", func(s *[]PredicateSpec, p *Policy) { (*s)[1].Name = (*s)[0].Name; (*s)[1].Arity = (*s)[0].Arity }},
		{"duplicate name different arity", func(s *[]PredicateSpec, p *Policy) { (*s)[2].Name = (*s)[0].Name }},
		{"enum index out of range", func(s *[]PredicateSpec, p *Policy) { (*s)[3].ValueDomain.EnumArgIndex = 3 }},
		{"closed world key malformed", func(s *[]PredicateSpec, p *Policy) { p.NAFClosedWorldPredicates = []string{"license_present"} }},
		{"bad whitelist mode", func(s *[]PredicateSpec, p *Policy) { p.WhitelistMode = "sometimes" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			specs := testSpecs()
			policy := testPolicy()
			tc.mutate(&specs, &policy)
			_, err := New(specs, policy)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSchemaViolation)
		})
	}
}

func TestLookupsAndPolicy(t *testing.T) {
	m, err := New(testSpecs(), testPolicy())
	require.NoError(t, err)

	byPred, ok := m.ByPred("license_present/2")
	require.True(t, ok)
	assert.Equal(t, "license_present", byPred.Name)

	_, ok = m.ByName("nonexistent")
	assert.False(t, ok)

	assert.True(t, m.IsClosedWorld("license_present/2"))
	assert.False(t, m.IsClosedWorld("offer_item/2"))
	assert.False(t, m.AllowUnlisted())
	assert.Equal(t, 5, m.Len())
}

func TestValueDomain(t *testing.T) {
	m, err := New(testSpecs(), testPolicy())
	require.NoError(t, err)

	e, ok := m.ByName("item_category")
	require.True(t, ok)
	require.True(t, e.HasValueDomain())
	assert.True(t, e.AllowsValue("dual_use"))
	assert.False(t, e.AllowsValue("contraband"))

	plain, ok := m.ByName("offer_item")
	require.True(t, ok)
	assert.False(t, plain.HasValueDomain())
	assert.True(t, plain.AllowsValue("anything"))
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	doc := `version: "2026-08-01"
policy:
  whitelist_mode: allow_only_listed
  naf_closed_world_predicates:
    - license_present/2
predicates:
  - name: offer_item
    arity: 2
    signature: [offer_id, item]
    io: input
    kind: domain
  - name: export_allowed
    arity: 2
    signature: [item, dest]
    io: derived
    kind: decision
  - name: license_present
    arity: 2
    signature: [item, dest]
    io: input
    kind: domain
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-01", m.Version())
	assert.Equal(t, 3, m.Len())
	assert.True(t, m.IsClosedWorld("license_present/2"))
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	doc := `{
  "version": "1",
  "policy": {"whitelist_mode": "allow_unlisted", "naf_closed_world_predicates": []},
  "predicates": [
    {"name": "signal", "arity": 1, "signature": ["src"], "io": "input", "kind": "domain"}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.True(t, m.AllowUnlisted())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
