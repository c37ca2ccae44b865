package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/49nn/ProveNuance2/internal/model"
)

// StoredDerived is a discovered head predicate with the fragment that
// first (or most recently) asserted it.
type StoredDerived struct {
	Pred             model.DerivedPredicate
	Domain           string
	SourceFragmentID string
}

// upsertDerivedPredicateTx records a discovered head predicate. The meaning
// merges like condition meanings do; domain and source fragment follow the
// latest writer.
func upsertDerivedPredicateTx(ctx context.Context, tx *sql.Tx, d StoredDerived) error {
	name := d.Pred.Name()
	arity := d.Pred.Arity()
	sig := make([]string, arity)
	for i := range sig {
		sig[i] = "any"
	}
	sigB, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to encode signature for %s: %w", d.Pred.Pred, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO derived_predicate (
			pred, name, arity, signature, meaning, domain, source_fragment_id
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pred) DO UPDATE SET
			meaning = COALESCE(NULLIF(excluded.meaning, ''), meaning),
			domain = excluded.domain,
			source_fragment_id = excluded.source_fragment_id`,
		d.Pred.Pred, name, arity, string(sigB), d.Pred.Meaning, d.Domain, d.SourceFragmentID)
	if err != nil {
		return fmt.Errorf("failed to upsert derived predicate %s: %w", d.Pred.Pred, err)
	}
	return nil
}

// DerivedPredicates returns every discovered head predicate keyed by
// "name/arity".
func (s *Store) DerivedPredicates(ctx context.Context) (map[string]StoredDerived, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pred, meaning, domain, source_fragment_id
		 FROM derived_predicate ORDER BY pred`)
	if err != nil {
		return nil, fmt.Errorf("failed to query derived predicates: %w", err)
	}
	defer rows.Close()

	out := make(map[string]StoredDerived)
	for rows.Next() {
		var d StoredDerived
		if err := rows.Scan(&d.Pred.Pred, &d.Pred.Meaning, &d.Domain, &d.SourceFragmentID); err != nil {
			return nil, fmt.Errorf("failed to scan derived predicate row: %w", err)
		}
		out[d.Pred.Pred] = d
	}
	return out, rows.Err()
}
