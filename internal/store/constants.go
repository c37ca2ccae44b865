package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/49nn/ProveNuance2/internal/model"
)

// upsertConstantTx records a constant symbol. Constants accumulate: a
// meaning already on disk wins over a later empty one, and a non-empty
// stored meaning is never replaced.
func upsertConstantTx(ctx context.Context, tx *sql.Tx, c model.Constant) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO constant (value, meaning, domain) VALUES (?, ?, ?)
		ON CONFLICT(value) DO UPDATE SET
			meaning = COALESCE(NULLIF(meaning, ''), excluded.meaning)`,
		c.Value, c.Meaning, c.Domain)
	if err != nil {
		return fmt.Errorf("failed to upsert constant %q: %w", c.Value, err)
	}
	return nil
}

// Constants returns every recorded constant keyed by value.
func (s *Store) Constants(ctx context.Context) (map[string]model.Constant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value, meaning, domain FROM constant ORDER BY value`)
	if err != nil {
		return nil, fmt.Errorf("failed to query constants: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.Constant)
	for rows.Next() {
		var c model.Constant
		if err := rows.Scan(&c.Value, &c.Meaning, &c.Domain); err != nil {
			return nil, fmt.Errorf("failed to scan constant row: %w", err)
		}
		out[c.Value] = c
	}
	return out, rows.Err()
}
