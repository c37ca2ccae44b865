package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/49nn/ProveNuance2/internal/model"
)

// ErrNotFound is returned by point lookups when the key does not exist.
var ErrNotFound = errors.New("not found")

// upsertConditionTx writes one condition keyed by id. Merge policy follows
// re-ingestion semantics: fact lists and provenance are replaced wholesale by
// the newer extraction, while meaning and notes keep their first non-empty
// value (coalesce-if-empty).
func upsertConditionTx(ctx context.Context, tx *sql.Tx, domain string, c model.ConditionDefinition) error {
	required, err := json.Marshal(emptyAsList(c.RequiredFacts))
	if err != nil {
		return fmt.Errorf("failed to encode required facts for condition %q: %w", c.ID, err)
	}
	optional, err := json.Marshal(emptyAsList(c.OptionalFacts))
	if err != nil {
		return fmt.Errorf("failed to encode optional facts for condition %q: %w", c.ID, err)
	}
	unit, quote := flattenProvenance(c.Provenance)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO condition (
			id, meaning, required_facts, optional_facts,
			prov_unit, prov_quote, domain, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			meaning = COALESCE(NULLIF(meaning, ''), excluded.meaning),
			required_facts = excluded.required_facts,
			optional_facts = excluded.optional_facts,
			prov_unit = excluded.prov_unit,
			prov_quote = excluded.prov_quote,
			notes = COALESCE(NULLIF(notes, ''), excluded.notes)`,
		c.ID, c.Meaning, string(required), string(optional), unit, quote, domain, c.Notes)
	if err != nil {
		return fmt.Errorf("failed to upsert condition %q: %w", c.ID, err)
	}
	return nil
}

// Condition loads one condition definition by id.
func (s *Store) Condition(ctx context.Context, id string) (model.ConditionDefinition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, meaning, required_facts, optional_facts, prov_unit, prov_quote, notes
		 FROM condition WHERE id = ?`, id)
	c, err := scanCondition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ConditionDefinition{}, fmt.Errorf("condition %q: %w", id, ErrNotFound)
	}
	return c, err
}

// Conditions returns the whole condition dictionary keyed by id. This is the
// snapshot reused across extraction calls on the same domain.
func (s *Store) Conditions(ctx context.Context) (map[string]model.ConditionDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meaning, required_facts, optional_facts, prov_unit, prov_quote, notes
		 FROM condition ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query conditions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.ConditionDefinition)
	for rows.Next() {
		c, err := scanCondition(rows)
		if err != nil {
			return nil, err
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCondition(row rowScanner) (model.ConditionDefinition, error) {
	var (
		c                            model.ConditionDefinition
		required, optional, unitJSON string
	)
	c.Provenance = &model.Provenance{}
	if err := row.Scan(&c.ID, &c.Meaning, &required, &optional, &unitJSON,
		&c.Provenance.Quote, &c.Notes); err != nil {
		return model.ConditionDefinition{}, err
	}
	if err := json.Unmarshal([]byte(required), &c.RequiredFacts); err != nil {
		return model.ConditionDefinition{}, fmt.Errorf("failed to decode required facts for %q: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(optional), &c.OptionalFacts); err != nil {
		return model.ConditionDefinition{}, fmt.Errorf("failed to decode optional facts for %q: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(unitJSON), &c.Provenance.Unit); err != nil {
		return model.ConditionDefinition{}, fmt.Errorf("failed to decode provenance unit for %q: %w", c.ID, err)
	}
	return c, nil
}
