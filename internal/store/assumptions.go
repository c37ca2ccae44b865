package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/49nn/ProveNuance2/internal/model"
)

// Source types for assumption rows.
const (
	SourceRule      = "rule"
	SourceCondition = "condition"
)

// StoredAssumption is a scoped assumption flattened with its source
// coordinates, the shape audit tooling queries.
type StoredAssumption struct {
	FragmentID string
	SourceType string
	SourceID   string
	Domain     string
	Assumption model.ScopedAssumption
}

// upsertAssumptionTx writes one assumption keyed by (fragment_id,
// source_type, source_id, about_pred, type). Re-extraction overwrites the
// text and the about coordinates; it never creates a duplicate row.
func upsertAssumptionTx(ctx context.Context, tx *sql.Tx, sa StoredAssumption) error {
	a := sa.Assumption
	_, err := tx.ExecContext(ctx,
		`INSERT INTO assumption (
			fragment_id, source_type, source_id,
			about_pred, about_atom_index, about_arg_index, about_const,
			type, text, domain
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fragment_id, source_type, source_id, about_pred, type) DO UPDATE SET
			text = excluded.text,
			about_atom_index = excluded.about_atom_index,
			about_arg_index = excluded.about_arg_index,
			about_const = excluded.about_const`,
		sa.FragmentID, sa.SourceType, sa.SourceID,
		a.About.Pred, nullableInt(a.About.AtomIndex), nullableInt(a.About.ArgIndex),
		nullableString(a.About.Const), string(a.Type), a.Text, sa.Domain)
	if err != nil {
		return fmt.Errorf("failed to upsert assumption for %s %s/%s: %w",
			sa.SourceType, sa.FragmentID, sa.SourceID, err)
	}
	return nil
}

// AssumptionsByType returns every assumption of the given category.
func (s *Store) AssumptionsByType(ctx context.Context, t model.AssumptionType) ([]StoredAssumption, error) {
	return s.queryAssumptions(ctx,
		`SELECT fragment_id, source_type, source_id, about_pred, about_atom_index,
		        about_arg_index, about_const, type, text, domain
		 FROM assumption WHERE type = ?
		 ORDER BY fragment_id, source_type, source_id, about_pred`, string(t))
}

// AssumptionsByAboutPred returns every assumption touching the given
// predicate ("name/arity").
func (s *Store) AssumptionsByAboutPred(ctx context.Context, pred string) ([]StoredAssumption, error) {
	return s.queryAssumptions(ctx,
		`SELECT fragment_id, source_type, source_id, about_pred, about_atom_index,
		        about_arg_index, about_const, type, text, domain
		 FROM assumption WHERE about_pred = ?
		 ORDER BY fragment_id, source_type, source_id, type`, pred)
}

func (s *Store) queryAssumptions(ctx context.Context, query string, args ...any) ([]StoredAssumption, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assumptions: %w", err)
	}
	defer rows.Close()

	var out []StoredAssumption
	for rows.Next() {
		var (
			sa                 StoredAssumption
			atomIdx, argIdx    sql.NullInt64
			constVal, typeName sql.NullString
		)
		if err := rows.Scan(&sa.FragmentID, &sa.SourceType, &sa.SourceID,
			&sa.Assumption.About.Pred, &atomIdx, &argIdx, &constVal,
			&typeName, &sa.Assumption.Text, &sa.Domain); err != nil {
			return nil, fmt.Errorf("failed to scan assumption row: %w", err)
		}
		if atomIdx.Valid {
			v := int(atomIdx.Int64)
			sa.Assumption.About.AtomIndex = &v
		}
		if argIdx.Valid {
			v := int(argIdx.Int64)
			sa.Assumption.About.ArgIndex = &v
		}
		if constVal.Valid {
			v := constVal.String
			sa.Assumption.About.Const = &v
		}
		if typeName.Valid {
			sa.Assumption.Type = model.AssumptionType(typeName.String)
		}
		out = append(out, sa)
	}
	return out, rows.Err()
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
