package store

// Schema notes:
//   - rule upserts must leave rows byte-for-byte identical when the payload
//     is unchanged, so no column is auto-touched on conflict.
//   - quote columns are capped at 400 chars by the write path, not the schema.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS manifest_policy (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version TEXT NOT NULL DEFAULT '',
		whitelist_mode TEXT NOT NULL,
		naf_closed_world TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS predicate (
		name TEXT PRIMARY KEY,
		arity INTEGER NOT NULL,
		pred TEXT NOT NULL UNIQUE,
		signature TEXT NOT NULL,
		io TEXT NOT NULL,
		kind TEXT NOT NULL,
		meaning TEXT NOT NULL DEFAULT '',
		domain TEXT NOT NULL DEFAULT 'generic',
		allowed_in_head INTEGER NOT NULL,
		allowed_in_body INTEGER NOT NULL,
		allowed_in_negated_body INTEGER NOT NULL,
		enum_arg_index INTEGER,
		allowed_values TEXT,
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS derived_predicate (
		pred TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		arity INTEGER NOT NULL,
		signature TEXT NOT NULL,
		io TEXT NOT NULL DEFAULT 'derived',
		kind TEXT NOT NULL DEFAULT 'auto_discovered',
		meaning TEXT NOT NULL DEFAULT '',
		domain TEXT NOT NULL DEFAULT 'generic',
		source_fragment_id TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS condition (
		id TEXT PRIMARY KEY,
		meaning TEXT NOT NULL DEFAULT '',
		required_facts TEXT NOT NULL,
		optional_facts TEXT NOT NULL,
		prov_unit TEXT NOT NULL,
		prov_quote TEXT NOT NULL,
		domain TEXT NOT NULL DEFAULT 'generic',
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS rule (
		fragment_id TEXT NOT NULL,
		rule_id TEXT NOT NULL,
		head_pred TEXT NOT NULL,
		head_args TEXT NOT NULL,
		body TEXT NOT NULL,
		constraints TEXT NOT NULL DEFAULT '[]',
		prov_unit TEXT NOT NULL,
		prov_quote TEXT NOT NULL,
		domain TEXT NOT NULL DEFAULT 'generic',
		notes TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (fragment_id, rule_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rule_head_pred ON rule(head_pred)`,
	`CREATE TABLE IF NOT EXISTS assumption (
		fragment_id TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		about_pred TEXT NOT NULL,
		about_atom_index INTEGER,
		about_arg_index INTEGER,
		about_const TEXT,
		type TEXT NOT NULL,
		text TEXT NOT NULL,
		domain TEXT NOT NULL DEFAULT 'generic',
		PRIMARY KEY (fragment_id, source_type, source_id, about_pred, type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assumption_about_pred ON assumption(about_pred)`,
	`CREATE INDEX IF NOT EXISTS idx_assumption_type ON assumption(type)`,
	`CREATE TABLE IF NOT EXISTS constant (
		value TEXT PRIMARY KEY,
		meaning TEXT NOT NULL DEFAULT '',
		domain TEXT NOT NULL DEFAULT 'generic'
	)`,
}

func (s *Store) initSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
