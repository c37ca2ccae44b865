// Package engine orchestrates batch validation and persistence: parallel
// per-fragment validation feeding a single stratify-and-commit writer.
package engine

import (
	"sync"

	"go.uber.org/zap"

	"github.com/49nn/ProveNuance2/internal/manifest"
	"github.com/49nn/ProveNuance2/internal/store"
)

// Engine validates extractor batches against the active manifest and commits
// the accepted artifacts. A single Engine is safe for concurrent Ingest
// calls; only the stratify-and-commit section is serialized.
type Engine struct {
	store *store.Store

	mu       sync.RWMutex
	manifest *manifest.Manifest
	epoch    uint64

	// commitMu covers global stratification plus the fragment commit, so
	// the rule set a batch is checked against is the rule set it joins.
	commitMu sync.Mutex

	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger replaces the default nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New builds an engine over an open store and an initial manifest.
func New(st *store.Store, m *manifest.Manifest, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		manifest: m,
		epoch:    1,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetManifest swaps in a new manifest and advances the epoch. In-flight
// batches finish against the manifest they started with.
func (e *Engine) SetManifest(m *manifest.Manifest) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manifest = m
	e.epoch++
	e.logger.Info("manifest updated",
		zap.String("version", m.Version()),
		zap.Uint64("epoch", e.epoch))
	return e.epoch
}

// Manifest returns the active manifest and its epoch.
func (e *Engine) Manifest() (*manifest.Manifest, uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.manifest, e.epoch
}

// Store exposes the underlying store for read-side tooling.
func (e *Engine) Store() *store.Store {
	return e.store
}
