// Package store persists validated manifests, rules, conditions, constants
// and assumptions in SQLite. Every write path is an idempotent upsert keyed
// by the entity's natural key; nothing is ever hard-deleted.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database holding the rule base.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger installs a logger; the default is a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open initializes the SQLite database at path, creating the parent directory
// and schema as needed. Pass ":memory:" for an ephemeral store.
func Open(path string, opts ...Option) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		s.logger.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		s.logger.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}
	// WAL already provides crash recovery; NORMAL trades nothing we need.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		s.logger.Debug("failed to set sqlite synchronous=NORMAL", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		s.logger.Debug("failed to enable sqlite foreign_keys", zap.Error(err))
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.logger.Debug("store opened", zap.String("path", path))

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for tests and maintenance tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}
