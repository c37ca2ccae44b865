package engine

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/49nn/ProveNuance2/internal/manifest"
	"github.com/49nn/ProveNuance2/internal/model"
	"github.com/49nn/ProveNuance2/internal/store"
	"github.com/49nn/ProveNuance2/internal/validator"
)

// condScope resolves condition references against the persisted dictionary
// plus the ids introduced by the batch under validation.
type condScope struct {
	stored map[string]model.ConditionDefinition
	batch  map[string]struct{}
}

func (s condScope) HasCondition(id string) bool {
	if _, ok := s.batch[id]; ok {
		return true
	}
	_, ok := s.stored[id]
	return ok
}

// Ingest validates one batch and commits the accepted artifacts. Validation
// runs against the manifest active when the call starts; the dictionary-wide
// and rule-set-wide consistency checks and the commit run under the writer
// lock. A batch
// that fails to commit returns a report with Committed=false, not an error;
// the error return covers store read failures only.
func (e *Engine) Ingest(ctx context.Context, b model.Batch) (*BatchReport, error) {
	m, epoch := e.Manifest()
	rep := &BatchReport{
		RunID:         uuid.New(),
		FragmentID:    b.FragmentID,
		ManifestEpoch: epoch,
	}

	rules, conds := dedupeBatch(b, rep)

	storedConds, err := e.store.Conditions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load condition dictionary: %w", err)
	}

	// Conditions validate first so rules in the same batch can reference
	// them. Every batch condition id is in scope here; cross-references
	// between new conditions are legal as long as they stay acyclic.
	scope := condScope{stored: storedConds, batch: make(map[string]struct{}, len(conds))}
	for _, c := range conds {
		scope.batch[c.ID] = struct{}{}
	}
	v := validator.New(m, scope)

	var acceptedConds []model.ConditionDefinition
	for _, c := range conds {
		r := v.ValidateCondition(c)
		rep.warn(KindCondition, c.ID, r.Warnings)
		if !r.Valid() {
			rep.reject(KindCondition, c.ID, r.Errors)
			continue
		}
		acceptedConds = append(acceptedConds, c)
	}
	acceptedConds = e.dropConditionCycles(storedConds, acceptedConds, rep)

	// Rules only see conditions that survived. The scope map is shared
	// with the validator, so prune it in place.
	survived := make(map[string]struct{}, len(acceptedConds))
	for _, c := range acceptedConds {
		survived[c.ID] = struct{}{}
	}
	for id := range scope.batch {
		if _, ok := survived[id]; !ok {
			delete(scope.batch, id)
		}
	}

	var acceptedRules []model.Rule
	for _, r := range rules {
		if !model.ValidIdent(r.ID) {
			rep.reject(KindRule, r.ID, []validator.Diagnostic{{
				Code:        validator.CodeRuleIDInvalid,
				Path:        "/id",
				Message:     fmt.Sprintf("rule id %q is not a valid identifier", r.ID),
				ExpectedFix: "use lowercase snake_case ids such as r1 or no_export_dual_use",
			}})
			continue
		}
		res := v.ValidateRule(r)
		rep.warn(KindRule, r.ID, res.Warnings)
		if !res.Valid() {
			rep.reject(KindRule, r.ID, res.Errors)
			continue
		}
		acceptedRules = append(acceptedRules, r)
	}

	if len(acceptedRules) == 0 && len(acceptedConds) == 0 {
		e.logger.Warn("batch produced nothing to commit",
			zap.String("fragment_id", b.FragmentID),
			zap.Int("rejected", len(rep.Rejected)))
		return rep, nil
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	// A concurrent batch may have rewritten stored conditions since the
	// pre-lock snapshot, so the cycle check runs once more on the committed
	// dictionary. Rules referencing a condition dropped here fall with it.
	if len(acceptedConds) > 0 {
		current, err := e.store.Conditions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to reload condition dictionary: %w", err)
		}
		before := len(acceptedConds)
		acceptedConds = e.dropConditionCycles(current, acceptedConds, rep)
		if len(acceptedConds) < before {
			acceptedRules = dropDanglingConditionRefs(acceptedRules, acceptedConds, current, rep)
		}
	}
	if len(acceptedRules) == 0 && len(acceptedConds) == 0 {
		return rep, nil
	}

	acceptedRules, err = e.dropStratificationCycles(ctx, b.FragmentID, acceptedRules, rep)
	if err != nil {
		return nil, err
	}
	if len(acceptedRules) == 0 && len(acceptedConds) == 0 {
		return rep, nil
	}

	commit := e.buildCommit(m, b, acceptedRules, acceptedConds)
	if err := e.store.CommitFragment(ctx, commit); err != nil {
		e.logger.Error("fragment commit failed",
			zap.String("fragment_id", b.FragmentID), zap.Error(err))
		rep.reject(KindBatch, b.FragmentID, []validator.Diagnostic{{
			Code:    validator.CodePersistence,
			Path:    "",
			Message: err.Error(),
		}})
		return rep, nil
	}

	for _, r := range acceptedRules {
		rep.AcceptedRules = append(rep.AcceptedRules, r.ID)
	}
	for _, c := range acceptedConds {
		rep.AcceptedConditions = append(rep.AcceptedConditions, c.ID)
	}
	rep.Committed = true
	return rep, nil
}

// IngestAll validates batches concurrently, up to workers at a time.
// Reports come back in input order. Commits still serialize on the writer
// lock, so the combined rule set stays stratified no matter the interleaving.
func (e *Engine) IngestAll(ctx context.Context, batches []model.Batch, workers int) ([]*BatchReport, error) {
	if workers < 1 {
		workers = 1
	}
	reports := make([]*BatchReport, len(batches))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, b := range batches {
		i, b := i, b
		g.Go(func() error {
			rep, err := e.Ingest(ctx, b)
			if err != nil {
				return fmt.Errorf("fragment %s: %w", b.FragmentID, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// dedupeBatch collapses repeated ids. Byte-identical repeats keep one copy;
// divergent repeats reject every occurrence of that id.
func dedupeBatch(b model.Batch, rep *BatchReport) ([]model.Rule, []model.ConditionDefinition) {
	var rules []model.Rule
	seenRules := make(map[string]int) // id -> index in rules, -1 once conflicted
	for _, r := range b.Rules {
		idx, seen := seenRules[r.ID]
		if !seen {
			seenRules[r.ID] = len(rules)
			rules = append(rules, r)
			continue
		}
		if idx >= 0 && reflect.DeepEqual(rules[idx], r) {
			continue
		}
		if idx >= 0 {
			rules = append(rules[:idx], rules[idx+1:]...)
			for id, j := range seenRules {
				if j > idx {
					seenRules[id] = j - 1
				}
			}
			seenRules[r.ID] = -1
			rep.reject(KindRule, r.ID, []validator.Diagnostic{{
				Code:        validator.CodeConflictingDuplicate,
				Path:        "/rules",
				Message:     fmt.Sprintf("rule id %q appears multiple times with divergent content", r.ID),
				ExpectedFix: "give each distinct rule its own id",
			}})
		}
	}

	var conds []model.ConditionDefinition
	seenConds := make(map[string]int)
	for _, c := range b.NewConditions {
		idx, seen := seenConds[c.ID]
		if !seen {
			seenConds[c.ID] = len(conds)
			conds = append(conds, c)
			continue
		}
		if idx >= 0 && reflect.DeepEqual(conds[idx], c) {
			continue
		}
		if idx >= 0 {
			conds = append(conds[:idx], conds[idx+1:]...)
			for id, j := range seenConds {
				if j > idx {
					seenConds[id] = j - 1
				}
			}
			seenConds[c.ID] = -1
			rep.reject(KindCondition, c.ID, []validator.Diagnostic{{
				Code:        validator.CodeConflictingDuplicate,
				Path:        "/new_conditions",
				Message:     fmt.Sprintf("condition id %q appears multiple times with divergent content", c.ID),
				ExpectedFix: "give each distinct condition its own id",
			}})
		}
	}
	return rules, conds
}

// dropConditionCycles rejects batch conditions whose references form a cycle
// through the combined dictionary.
func (e *Engine) dropConditionCycles(stored map[string]model.ConditionDefinition, accepted []model.ConditionDefinition, rep *BatchReport) []model.ConditionDefinition {
	if len(accepted) == 0 {
		return accepted
	}
	combined := make(map[string]model.ConditionDefinition, len(stored)+len(accepted))
	for id, c := range stored {
		combined[id] = c
	}
	for _, c := range accepted {
		combined[c.ID] = c
	}
	cyclic := validator.ConditionCycles(combined)
	if len(cyclic) == 0 {
		return accepted
	}
	kept := accepted[:0]
	for _, c := range accepted {
		if diags, ok := cyclic[c.ID]; ok {
			rep.reject(KindCondition, c.ID, diags)
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// dropDanglingConditionRefs rejects rules whose meets_condition references
// point at batch conditions that did not survive the under-lock cycle
// re-check. Stored conditions are never deleted, so only batch ids can
// dangle.
func dropDanglingConditionRefs(rules []model.Rule, conds []model.ConditionDefinition, stored map[string]model.ConditionDefinition, rep *BatchReport) []model.Rule {
	survived := make(map[string]struct{}, len(conds))
	for _, c := range conds {
		survived[c.ID] = struct{}{}
	}

	kept := rules[:0]
	for _, r := range rules {
		dangling := ""
		for _, a := range r.Body {
			if a.Pred != model.ConditionPred || len(a.Args) != 2 || !model.IsConstant(a.Args[1]) {
				continue
			}
			id := a.Args[1]
			if _, ok := survived[id]; ok {
				continue
			}
			if _, ok := stored[id]; ok {
				continue
			}
			dangling = id
			break
		}
		if dangling != "" {
			rep.reject(KindRule, r.ID, []validator.Diagnostic{{
				Code:        validator.CodeConditionUnknown,
				Path:        "/body",
				Message:     fmt.Sprintf("rule references condition %q, which was rejected in this batch", dangling),
				ExpectedFix: "fix the rejected condition or reference an existing one",
			}})
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// dropStratificationCycles checks the accepted rules against everything on
// disk. Stored rules with the same fragment and rule id are superseded by
// the batch, so an edit that fixes a cycle is judged on the edited form.
// Caller holds commitMu.
func (e *Engine) dropStratificationCycles(ctx context.Context, fragmentID string, accepted []model.Rule, rep *BatchReport) ([]model.Rule, error) {
	if len(accepted) == 0 {
		return accepted, nil
	}
	stored, err := e.store.AllRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored rules for stratification: %w", err)
	}

	superseded := make(map[string]struct{}, len(accepted))
	for _, r := range accepted {
		superseded[validator.RuleKey(fragmentID, r.ID)] = struct{}{}
	}

	var strat []validator.StratRule
	for _, sr := range stored {
		key := validator.RuleKey(sr.FragmentID, sr.Rule.ID)
		if _, ok := superseded[key]; ok {
			continue
		}
		strat = append(strat, validator.StratRule{Key: key, Head: sr.Rule.Head.Pred, Body: sr.Rule.Body})
	}
	for _, r := range accepted {
		strat = append(strat, validator.StratRule{
			Key:  validator.RuleKey(fragmentID, r.ID),
			Head: r.Head.Pred,
			Body: r.Body,
		})
	}

	cyclic := validator.Stratify(strat)
	if len(cyclic) == 0 {
		return accepted, nil
	}
	kept := accepted[:0]
	for _, r := range accepted {
		if diags, ok := cyclic[validator.RuleKey(fragmentID, r.ID)]; ok {
			rep.reject(KindRule, r.ID, diags)
			continue
		}
		kept = append(kept, r)
	}
	return kept, nil
}

// buildCommit assembles the transactional payload: rules, conditions, their
// flattened assumptions, discovered head predicates and harvested constants.
func (e *Engine) buildCommit(m *manifest.Manifest, b model.Batch, rules []model.Rule, conds []model.ConditionDefinition) store.FragmentCommit {
	domain := b.Domain
	if domain == "" {
		domain = "generic"
	}
	c := store.FragmentCommit{
		FragmentID: b.FragmentID,
		Domain:     domain,
		Rules:      rules,
		Conditions: conds,
	}

	for _, r := range rules {
		for _, a := range r.Assumptions {
			c.Assumptions = append(c.Assumptions, store.StoredAssumption{
				FragmentID: b.FragmentID,
				SourceType: store.SourceRule,
				SourceID:   r.ID,
				Domain:     domain,
				Assumption: a,
			})
		}
	}
	for _, cond := range conds {
		for _, a := range cond.Assumptions {
			c.Assumptions = append(c.Assumptions, store.StoredAssumption{
				FragmentID: b.FragmentID,
				SourceType: store.SourceCondition,
				SourceID:   cond.ID,
				Domain:     domain,
				Assumption: a,
			})
		}
	}

	constants := make(map[string]model.Constant)

	// Declared derived predicates. Arity 0 declarations are constants in
	// disguise and land in the constant table instead.
	derived := make(map[string]store.StoredDerived)
	for _, d := range b.DerivedPredicates {
		switch {
		case d.Arity() < 0:
			continue
		case d.Arity() == 0:
			constants[d.Name()] = model.Constant{Value: d.Name(), Meaning: d.Meaning, Domain: domain}
		default:
			derived[d.Pred] = store.StoredDerived{
				Pred:             d,
				Domain:           domain,
				SourceFragmentID: b.FragmentID,
			}
		}
	}

	// Heads outside the manifest are auto-discovered, keeping the declared
	// meaning when the batch supplied one.
	for _, r := range rules {
		pred := model.PredKey(r.Head.Pred, len(r.Head.Args))
		if _, known := m.ByPred(pred); known {
			continue
		}
		if _, declared := derived[pred]; declared {
			continue
		}
		derived[pred] = store.StoredDerived{
			Pred:             model.DerivedPredicate{Pred: pred},
			Domain:           domain,
			SourceFragmentID: b.FragmentID,
		}
	}

	harvest := func(atoms []model.Atom) {
		for _, a := range atoms {
			for i, arg := range a.Args {
				if a.Pred == model.ConditionPred && i == 1 {
					continue
				}
				if model.IsVariable(arg) || model.ParseNumber(arg) {
					continue
				}
				if _, ok := constants[arg]; !ok {
					constants[arg] = model.Constant{Value: arg, Domain: domain}
				}
			}
		}
	}
	for _, r := range rules {
		harvest([]model.Atom{r.Head})
		harvest(r.Body)
	}
	for _, cond := range conds {
		harvest(cond.AllFacts())
	}

	for _, pred := range sortedKeys(derived) {
		c.Derived = append(c.Derived, derived[pred])
	}
	for _, v := range sortedKeys(constants) {
		c.Constants = append(c.Constants, constants[v])
	}
	return c
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
