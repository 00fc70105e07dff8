// Package memory provides an in-memory implementation of the rule repository.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"casbin-mongodb-adapter/internal/core/domain"
	"casbin-mongodb-adapter/internal/core/ports/driven"
)

// ErrDuplicateRule is returned when a rule identical to a stored one is added.
var ErrDuplicateRule = errors.New("duplicate rule")

// RuleRepositoryImpl implements driven.RuleRepository in process memory.
// Rules are unique on ptype and all six fields, like the MongoDB index.
type RuleRepositoryImpl struct {
	mu     sync.RWMutex
	rules  []domain.Rule
	nextID int
}

// NewRuleRepository creates a new RuleRepositoryImpl.
func NewRuleRepository() *RuleRepositoryImpl {
	return &RuleRepositoryImpl{nextID: 1}
}

var _ driven.RuleRepository = (*RuleRepositoryImpl)(nil)

func (r *RuleRepositoryImpl) SaveRules(_ context.Context, rules []domain.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked("save rules", rules)
}

func (r *RuleRepositoryImpl) ClearRules(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = nil
	return nil
}

func (r *RuleRepositoryImpl) LoadRules(context.Context) ([]domain.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules := make([]domain.Rule, len(r.rules))
	copy(rules, r.rules)
	return rules, nil
}

func (r *RuleRepositoryImpl) AddRule(_ context.Context, rule domain.Rule) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.insertLocked("add rule", []domain.Rule{rule}); err != nil {
		return false, err
	}
	return true, nil
}

func (r *RuleRepositoryImpl) AddRules(_ context.Context, rules []domain.Rule) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.insertLocked("add rules", rules); err != nil {
		return false, err
	}
	return len(rules) > 0, nil
}

func (r *RuleRepositoryImpl) RemoveRule(_ context.Context, ptype string, values []string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(ptype, 0, values, false), nil
}

func (r *RuleRepositoryImpl) RemoveRules(_ context.Context, ptype string, rules [][]string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := false
	for _, values := range rules {
		if r.removeLocked(ptype, 0, values, false) {
			removed = true
		}
	}
	return removed, nil
}

func (r *RuleRepositoryImpl) RemoveFilteredRules(_ context.Context, ptype string, fieldIndex int, fieldValues []string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(ptype, fieldIndex, fieldValues, true), nil
}

// Len returns the number of stored rules.
func (r *RuleRepositoryImpl) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// insertLocked stores all rules or none of them.
func (r *RuleRepositoryImpl) insertLocked(op string, rules []domain.Rule) error {
	seen := make(map[[domain.MaxFields + 1]string]struct{}, len(r.rules)+len(rules))
	for _, stored := range r.rules {
		seen[ruleKey(stored)] = struct{}{}
	}
	for _, rule := range rules {
		key := ruleKey(rule)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: %s: %w: %s %v", domain.ErrStorage, op, ErrDuplicateRule, rule.PType, rule.Values())
		}
		seen[key] = struct{}{}
	}

	for _, rule := range rules {
		rule.ID = strconv.Itoa(r.nextID)
		r.nextID++
		r.rules = append(r.rules, rule)
	}
	return nil
}

// removeLocked deletes the rules of ptype whose fields from fieldIndex on
// match values. With wildcard set an empty value matches any stored value.
func (r *RuleRepositoryImpl) removeLocked(ptype string, fieldIndex int, values []string, wildcard bool) bool {
	kept := r.rules[:0]
	removed := false
	for _, rule := range r.rules {
		if rule.PType == ptype && fieldsMatch(rule.Fields(), fieldIndex, values, wildcard) {
			removed = true
			continue
		}
		kept = append(kept, rule)
	}
	r.rules = kept
	return removed
}

func fieldsMatch(fields [domain.MaxFields]string, fieldIndex int, values []string, wildcard bool) bool {
	for i := fieldIndex; i < domain.MaxFields; i++ {
		var want string
		if i-fieldIndex < len(values) {
			want = values[i-fieldIndex]
		}
		if wildcard && want == "" {
			continue
		}
		if fields[i] != want {
			return false
		}
	}
	return true
}

func ruleKey(rule domain.Rule) [domain.MaxFields + 1]string {
	return [domain.MaxFields + 1]string{rule.PType, rule.V0, rule.V1, rule.V2, rule.V3, rule.V4, rule.V5}
}
