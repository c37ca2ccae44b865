package engine

import (
	"github.com/google/uuid"

	"github.com/49nn/ProveNuance2/internal/validator"
)

// ItemKind distinguishes what a rejection or warning attaches to.
type ItemKind string

const (
	KindRule      ItemKind = "rule"
	KindCondition ItemKind = "condition"
	KindBatch     ItemKind = "batch"
)

// RejectedItem carries every diagnostic for one rejected artifact.
type RejectedItem struct {
	Kind        ItemKind               `json:"kind"`
	ID          string                 `json:"id"`
	Diagnostics []validator.Diagnostic `json:"diagnostics"`
}

// ItemWarning carries non-blocking findings for an accepted artifact.
type ItemWarning struct {
	Kind     ItemKind            `json:"kind"`
	ID       string              `json:"id"`
	Warnings []validator.Warning `json:"warnings"`
}

// BatchReport is the per-fragment ingest verdict: which artifacts landed,
// which were rejected and why, and whether the commit happened.
type BatchReport struct {
	RunID              uuid.UUID      `json:"run_id"`
	FragmentID         string         `json:"fragment_id"`
	ManifestEpoch      uint64         `json:"manifest_epoch"`
	AcceptedRules      []string       `json:"accepted_rules"`
	AcceptedConditions []string       `json:"accepted_conditions"`
	Rejected           []RejectedItem `json:"rejected,omitempty"`
	Warnings           []ItemWarning  `json:"warnings,omitempty"`
	Committed          bool           `json:"committed"`
}

// Clean reports whether every artifact in the batch was accepted.
func (r *BatchReport) Clean() bool {
	return len(r.Rejected) == 0
}

func (r *BatchReport) reject(kind ItemKind, id string, diags []validator.Diagnostic) {
	r.Rejected = append(r.Rejected, RejectedItem{Kind: kind, ID: id, Diagnostics: diags})
}

func (r *BatchReport) warn(kind ItemKind, id string, warns []validator.Warning) {
	if len(warns) == 0 {
		return
	}
	r.Warnings = append(r.Warnings, ItemWarning{Kind: kind, ID: id, Warnings: warns})
}
