package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/49nn/ProveNuance2/internal/model"
)

// FragmentCommit is the full accepted payload of one batch. Everything in
// it lands in a single transaction or not at all.
type FragmentCommit struct {
	FragmentID  string
	Domain      string
	Rules       []model.Rule
	Conditions  []model.ConditionDefinition
	Assumptions []StoredAssumption
	Constants   []model.Constant
	Derived     []StoredDerived
}

// CommitFragment persists an accepted batch atomically. Re-committing an
// identical payload leaves every row unchanged.
func (s *Store) CommitFragment(ctx context.Context, c FragmentCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commit for fragment %s: %w", c.FragmentID, err)
	}
	defer tx.Rollback()

	for _, cond := range c.Conditions {
		if err := upsertConditionTx(ctx, tx, c.Domain, cond); err != nil {
			return err
		}
	}
	for _, r := range c.Rules {
		if err := upsertRuleTx(ctx, tx, c.FragmentID, c.Domain, r); err != nil {
			return err
		}
	}
	for _, sa := range c.Assumptions {
		if err := upsertAssumptionTx(ctx, tx, sa); err != nil {
			return err
		}
	}
	for _, d := range c.Derived {
		if err := upsertDerivedPredicateTx(ctx, tx, d); err != nil {
			return err
		}
	}
	for _, k := range c.Constants {
		if err := upsertConstantTx(ctx, tx, k); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fragment %s: %w", c.FragmentID, err)
	}

	s.logger.Info("fragment committed",
		zap.String("fragment_id", c.FragmentID),
		zap.Int("rules", len(c.Rules)),
		zap.Int("conditions", len(c.Conditions)),
		zap.Int("assumptions", len(c.Assumptions)))
	return nil
}
