package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/49nn/ProveNuance2/internal/model"
)

// Verbatim quotes are capped at the persistence boundary.
const maxQuoteLen = 400

// StoredRule is a rule as read back from storage.
type StoredRule struct {
	FragmentID string
	Domain     string
	Rule       model.Rule
}

// upsertRuleTx writes one rule keyed by (fragment_id, rule_id). Re-ingestion
// of the same key overwrites head, body, constraints, provenance and notes
// wholesale; the row's domain is set on first insert and kept thereafter.
func upsertRuleTx(ctx context.Context, tx *sql.Tx, fragmentID, domain string, r model.Rule) error {
	headArgs, err := json.Marshal(r.Head.Args)
	if err != nil {
		return fmt.Errorf("failed to encode head args for rule %q: %w", r.ID, err)
	}
	body, err := json.Marshal(emptyAsList(r.Body))
	if err != nil {
		return fmt.Errorf("failed to encode body for rule %q: %w", r.ID, err)
	}
	constraints, err := json.Marshal(emptyStringsAsList(r.Constraints))
	if err != nil {
		return fmt.Errorf("failed to encode constraints for rule %q: %w", r.ID, err)
	}
	unit, quote := flattenProvenance(r.Provenance)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rule (
			fragment_id, rule_id, head_pred, head_args, body, constraints,
			prov_unit, prov_quote, domain, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fragment_id, rule_id) DO UPDATE SET
			head_pred = excluded.head_pred,
			head_args = excluded.head_args,
			body = excluded.body,
			constraints = excluded.constraints,
			prov_unit = excluded.prov_unit,
			prov_quote = excluded.prov_quote,
			notes = excluded.notes`,
		fragmentID, r.ID, r.Head.Key(), string(headArgs), string(body), string(constraints),
		unit, quote, domain, r.Notes)
	if err != nil {
		return fmt.Errorf("failed to upsert rule %s/%s: %w", fragmentID, r.ID, err)
	}
	return nil
}

// AllRules loads every stored rule; the stratification pass needs the whole
// program, not one fragment's slice of it.
func (s *Store) AllRules(ctx context.Context) ([]StoredRule, error) {
	return s.queryRules(ctx,
		`SELECT fragment_id, rule_id, head_pred, head_args, body, constraints,
		        prov_unit, prov_quote, domain, notes
		 FROM rule ORDER BY fragment_id, rule_id`)
}

// RulesByHeadPred loads the validated rules defining the given head
// predicate, the query shape the downstream solver consumes.
func (s *Store) RulesByHeadPred(ctx context.Context, headPred string) ([]StoredRule, error) {
	return s.queryRules(ctx,
		`SELECT fragment_id, rule_id, head_pred, head_args, body, constraints,
		        prov_unit, prov_quote, domain, notes
		 FROM rule WHERE head_pred = ? ORDER BY fragment_id, rule_id`, headPred)
}

// RulesByFragment loads the rules committed for one fragment.
func (s *Store) RulesByFragment(ctx context.Context, fragmentID string) ([]StoredRule, error) {
	return s.queryRules(ctx,
		`SELECT fragment_id, rule_id, head_pred, head_args, body, constraints,
		        prov_unit, prov_quote, domain, notes
		 FROM rule WHERE fragment_id = ? ORDER BY rule_id`, fragmentID)
}

func (s *Store) queryRules(ctx context.Context, query string, args ...any) ([]StoredRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var out []StoredRule
	for rows.Next() {
		var (
			sr                                            StoredRule
			headPred, headArgs, body, constraints, unitJS string
		)
		sr.Rule.Provenance = &model.Provenance{}
		if err := rows.Scan(&sr.FragmentID, &sr.Rule.ID, &headPred, &headArgs,
			&body, &constraints, &unitJS, &sr.Rule.Provenance.Quote, &sr.Domain, &sr.Rule.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		// head_pred is stored in "name/arity" form.
		if name, _, ok := model.SplitPredKey(headPred); ok {
			sr.Rule.Head.Pred = name
		} else {
			sr.Rule.Head.Pred = headPred
		}
		if err := json.Unmarshal([]byte(headArgs), &sr.Rule.Head.Args); err != nil {
			return nil, fmt.Errorf("failed to decode head args for rule %q: %w", sr.Rule.ID, err)
		}
		if err := json.Unmarshal([]byte(body), &sr.Rule.Body); err != nil {
			return nil, fmt.Errorf("failed to decode body for rule %q: %w", sr.Rule.ID, err)
		}
		if err := json.Unmarshal([]byte(constraints), &sr.Rule.Constraints); err != nil {
			return nil, fmt.Errorf("failed to decode constraints for rule %q: %w", sr.Rule.ID, err)
		}
		if err := json.Unmarshal([]byte(unitJS), &sr.Rule.Provenance.Unit); err != nil {
			return nil, fmt.Errorf("failed to decode provenance unit for rule %q: %w", sr.Rule.ID, err)
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// flattenProvenance encodes provenance for storage: unit as JSON, quote
// trimmed to the cap. A nil provenance should have been rejected by
// validation; it degrades to empty fields rather than a panic.
func flattenProvenance(p *model.Provenance) (unitJSON, quote string) {
	if p == nil {
		return "[]", ""
	}
	data, err := json.Marshal(emptyStringsAsList(p.Unit))
	if err != nil {
		data = []byte("[]")
	}
	quote = p.Quote
	if len(quote) > maxQuoteLen {
		quote = quote[:maxQuoteLen]
	}
	return string(data), quote
}

func emptyAsList(atoms []model.Atom) []model.Atom {
	if atoms == nil {
		return []model.Atom{}
	}
	return atoms
}

func emptyStringsAsList(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
