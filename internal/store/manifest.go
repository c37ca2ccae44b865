package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/49nn/ProveNuance2/internal/manifest"
)

// ErrNoManifest is returned by LoadManifest when no manifest has been seeded.
var ErrNoManifest = errors.New("no manifest stored")

// SaveManifest persists the manifest snapshot: the singleton policy row plus
// one row per predicate spec. Manifest updates are explicit operations; rule
// ingestion never touches these tables.
func (s *Store) SaveManifest(ctx context.Context, m *manifest.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin manifest transaction: %w", err)
	}
	defer tx.Rollback()

	policy := m.Policy()
	closedWorld, err := json.Marshal(policy.NAFClosedWorldPredicates)
	if err != nil {
		return fmt.Errorf("failed to encode closed-world list: %w", err)
	}
	if policy.NAFClosedWorldPredicates == nil {
		closedWorld = []byte("[]")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO manifest_policy (id, version, whitelist_mode, naf_closed_world)
		 VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   version = excluded.version,
		   whitelist_mode = excluded.whitelist_mode,
		   naf_closed_world = excluded.naf_closed_world`,
		m.Version(), policy.WhitelistMode, string(closedWorld))
	if err != nil {
		return fmt.Errorf("failed to upsert manifest policy: %w", err)
	}

	for _, spec := range m.Specs() {
		if err := upsertPredicateTx(ctx, tx, spec); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit manifest: %w", err)
	}
	return nil
}

func upsertPredicateTx(ctx context.Context, tx *sql.Tx, spec manifest.PredicateSpec) error {
	signature, err := json.Marshal(spec.Signature)
	if err != nil {
		return fmt.Errorf("failed to encode signature for %q: %w", spec.Name, err)
	}

	io := spec.IO
	if io == "" {
		io = manifest.IOInput
	}
	kind := spec.Kind
	if kind == "" {
		kind = manifest.KindDomain
	}
	domain := spec.Domain
	if domain == "" {
		domain = "generic"
	}

	headB, bodyB, negB := allowedInColumns(spec)
	var enumIdx, allowedValues any
	if vd := spec.ValueDomain; vd != nil {
		enumIdx = vd.EnumArgIndex
		data, err := json.Marshal(vd.AllowedValues)
		if err != nil {
			return fmt.Errorf("failed to encode value domain for %q: %w", spec.Name, err)
		}
		allowedValues = string(data)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO predicate (
			name, arity, pred, signature, io, kind, meaning, domain,
			allowed_in_head, allowed_in_body, allowed_in_negated_body,
			enum_arg_index, allowed_values, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			arity = excluded.arity,
			pred = excluded.pred,
			signature = excluded.signature,
			io = excluded.io,
			kind = excluded.kind,
			meaning = excluded.meaning,
			domain = excluded.domain,
			allowed_in_head = excluded.allowed_in_head,
			allowed_in_body = excluded.allowed_in_body,
			allowed_in_negated_body = excluded.allowed_in_negated_body,
			enum_arg_index = excluded.enum_arg_index,
			allowed_values = excluded.allowed_values,
			notes = excluded.notes`,
		spec.Name, spec.Arity, spec.CanonicalPred(), string(signature), string(io), string(kind),
		spec.Meaning, domain, headB, bodyB, negB, enumIdx, allowedValues, spec.Notes)
	if err != nil {
		return fmt.Errorf("failed to upsert predicate %q: %w", spec.Name, err)
	}
	return nil
}

// LoadManifest rebuilds the manifest snapshot from storage.
func (s *Store) LoadManifest(ctx context.Context) (*manifest.Manifest, error) {
	var version, mode, closedWorldJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT version, whitelist_mode, naf_closed_world FROM manifest_policy WHERE id = 1`).
		Scan(&version, &mode, &closedWorldJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoManifest
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest policy: %w", err)
	}

	var closedWorld []string
	if err := json.Unmarshal([]byte(closedWorldJSON), &closedWorld); err != nil {
		return nil, fmt.Errorf("failed to decode closed-world list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, arity, signature, io, kind, meaning, domain,
		        allowed_in_head, allowed_in_body, allowed_in_negated_body,
		        enum_arg_index, allowed_values, notes
		 FROM predicate ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to load predicates: %w", err)
	}
	defer rows.Close()

	var specs []manifest.PredicateSpec
	for rows.Next() {
		var (
			spec          manifest.PredicateSpec
			signatureJSON string
			head, body    bool
			negated       bool
			enumIdx       sql.NullInt64
			valuesJSON    sql.NullString
		)
		if err := rows.Scan(&spec.Name, &spec.Arity, &signatureJSON, &spec.IO, &spec.Kind,
			&spec.Meaning, &spec.Domain, &head, &body, &negated, &enumIdx, &valuesJSON, &spec.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan predicate row: %w", err)
		}
		if err := json.Unmarshal([]byte(signatureJSON), &spec.Signature); err != nil {
			return nil, fmt.Errorf("failed to decode signature for %q: %w", spec.Name, err)
		}
		spec.AllowedIn = &manifest.AllowedIn{Head: head, Body: body, NegatedBody: negated}
		if enumIdx.Valid && valuesJSON.Valid {
			vd := &manifest.ValueDomain{EnumArgIndex: int(enumIdx.Int64)}
			if err := json.Unmarshal([]byte(valuesJSON.String), &vd.AllowedValues); err != nil {
				return nil, fmt.Errorf("failed to decode value domain for %q: %w", spec.Name, err)
			}
			spec.ValueDomain = vd
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return manifest.FromFile(manifest.File{
		Version: version,
		Policy: manifest.Policy{
			WhitelistMode:            mode,
			NAFClosedWorldPredicates: closedWorld,
		},
		Predicates: specs,
	})
}

func allowedInColumns(spec manifest.PredicateSpec) (head, body, negated bool) {
	if spec.AllowedIn != nil {
		return spec.AllowedIn.Head, spec.AllowedIn.Body, spec.AllowedIn.NegatedBody
	}
	io := spec.IO
	if io == "" {
		io = manifest.IOInput
	}
	switch io {
	case manifest.IOInput:
		return false, true, false
	case manifest.IODerived:
		return true, true, false
	default:
		return true, true, true
	}
}
