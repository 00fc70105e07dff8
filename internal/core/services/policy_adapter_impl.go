package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"

	"casbin-mongodb-adapter/internal/core/domain"
	"casbin-mongodb-adapter/internal/core/ports/driven"
	"casbin-mongodb-adapter/internal/core/ports/driving"
)

// DefaultTimeout bounds storage calls made through the context-free
// casbin adapter methods.
const DefaultTimeout = 10 * time.Second

var (
	_ persist.Adapter         = (*PolicyAdapter)(nil)
	_ persist.BatchAdapter    = (*PolicyAdapter)(nil)
	_ persist.FilteredAdapter = (*PolicyAdapter)(nil)
	_ persist.ContextAdapter  = (*PolicyAdapter)(nil)
	_ driving.PolicyStore     = (*PolicyAdapter)(nil)
)

// PolicyAdapter is a casbin storage adapter backed by a RuleRepository.
type PolicyAdapter struct {
	repo          driven.RuleRepository
	logger        *slog.Logger
	timeout       time.Duration
	replaceOnSave bool
	filtered      atomic.Bool
}

// AdapterOption configures a PolicyAdapter.
type AdapterOption func(*PolicyAdapter)

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *PolicyAdapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithTimeout sets the deadline applied by the context-free methods.
func WithTimeout(timeout time.Duration) AdapterOption {
	return func(a *PolicyAdapter) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

// WithReplaceOnSave makes SavePolicy clear the store before inserting,
// which is what casbin's Enforcer.SavePolicy expects.
func WithReplaceOnSave() AdapterOption {
	return func(a *PolicyAdapter) {
		a.replaceOnSave = true
	}
}

// NewPolicyAdapter creates a new PolicyAdapter.
func NewPolicyAdapter(repo driven.RuleRepository, opts ...AdapterOption) *PolicyAdapter {
	a := &PolicyAdapter{
		repo:    repo,
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *PolicyAdapter) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.timeout)
}

// LoadPolicy loads all policy rules from the storage.
func (a *PolicyAdapter) LoadPolicy(m model.Model) error {
	ctx, cancel := a.withTimeout()
	defer cancel()
	return a.LoadPolicyCtx(ctx, m)
}

// LoadPolicyCtx loads all policy rules from the storage.
func (a *PolicyAdapter) LoadPolicyCtx(ctx context.Context, m model.Model) error {
	rules, err := a.repo.LoadRules(ctx)
	if err != nil {
		return err
	}

	loaded := 0
	for _, rule := range rules {
		if loadRule(m, rule.Section(), rule.PType, rule.Values()) {
			loaded++
		}
	}
	a.filtered.Store(false)

	a.logger.Debug("policy loaded", "records", len(rules), "rules", loaded)
	return nil
}

// LoadFilteredPolicy loads the policy rules that pass filter. The filter
// must be a domain.Filter or *domain.Filter; nil loads everything.
func (a *PolicyAdapter) LoadFilteredPolicy(m model.Model, filter interface{}) error {
	ctx, cancel := a.withTimeout()
	defer cancel()
	return a.LoadFilteredPolicyCtx(ctx, m, filter)
}

// LoadFilteredPolicyCtx loads the policy rules that pass filter.
func (a *PolicyAdapter) LoadFilteredPolicyCtx(ctx context.Context, m model.Model, filter interface{}) error {
	var f domain.Filter
	switch v := filter.(type) {
	case nil:
		return a.LoadPolicyCtx(ctx, m)
	case domain.Filter:
		f = v
	case *domain.Filter:
		if v == nil {
			return a.LoadPolicyCtx(ctx, m)
		}
		f = *v
	default:
		return fmt.Errorf("%w: unsupported filter type %T", domain.ErrInvalidFilter, filter)
	}

	rules, err := a.repo.LoadRules(ctx)
	if err != nil {
		return err
	}

	loaded := 0
	for _, rule := range rules {
		section, values := rule.Section(), rule.Values()
		if len(values) == 0 || !f.Accepts(section, values) {
			continue
		}
		if loadRule(m, section, rule.PType, values) {
			loaded++
		}
	}
	a.filtered.Store(!f.IsEmpty())

	a.logger.Debug("filtered policy loaded", "records", len(rules), "rules", loaded, "filtered", a.filtered.Load())
	return nil
}

// loadRule inserts values under m[section][ptype]. Rules for sections or
// ptypes the model does not define are skipped.
func loadRule(m model.Model, section, ptype string, values []string) bool {
	if section == "" || len(values) == 0 {
		return false
	}
	assertions, ok := m[section]
	if !ok {
		return false
	}
	if _, ok := assertions[ptype]; !ok {
		return false
	}
	if err := m.AddPolicy(section, ptype, values); err != nil {
		return false
	}
	return true
}

// IsFiltered returns true if the loaded policy has been filtered.
func (a *PolicyAdapter) IsFiltered() bool {
	return a.filtered.Load()
}

// IsFilteredCtx returns true if the loaded policy has been filtered.
func (a *PolicyAdapter) IsFilteredCtx(context.Context) bool {
	return a.filtered.Load()
}

// SavePolicy saves all policy rules to the storage.
func (a *PolicyAdapter) SavePolicy(m model.Model) error {
	ctx, cancel := a.withTimeout()
	defer cancel()
	return a.SavePolicyCtx(ctx, m)
}

// SavePolicyCtx saves every "p" and "g" rule of the model. Existing
// records are kept unless the adapter was built WithReplaceOnSave.
func (a *PolicyAdapter) SavePolicyCtx(ctx context.Context, m model.Model) error {
	var rules []domain.Rule
	for _, section := range []string{domain.SectionPolicy, domain.SectionGrouping} {
		for ptype, ast := range m[section] {
			mapped, err := a.mapRules(ptype, ast.Policy)
			if err != nil {
				return err
			}
			rules = append(rules, mapped...)
		}
	}

	if a.replaceOnSave {
		if err := a.repo.ClearRules(ctx); err != nil {
			return err
		}
	}
	if len(rules) == 0 {
		return nil
	}
	if err := a.repo.SaveRules(ctx, rules); err != nil {
		return err
	}

	a.logger.Debug("policy saved", "rules", len(rules))
	return nil
}

// ClearPolicy removes every stored rule.
func (a *PolicyAdapter) ClearPolicy(ctx context.Context) error {
	return a.repo.ClearRules(ctx)
}

// AddPolicy adds a policy rule to the storage.
func (a *PolicyAdapter) AddPolicy(sec string, ptype string, rule []string) error {
	ctx, cancel := a.withTimeout()
	defer cancel()
	return a.AddPolicyCtx(ctx, sec, ptype, rule)
}

// AddPolicyCtx adds a policy rule to the storage.
func (a *PolicyAdapter) AddPolicyCtx(ctx context.Context, _ string, ptype string, rule []string) error {
	_, err := a.InsertPolicy(ctx, ptype, rule)
	return err
}

// InsertPolicy adds a policy rule and reports whether it was stored.
// Rules with a blank ptype or no values are not stored.
func (a *PolicyAdapter) InsertPolicy(ctx context.Context, ptype string, rule []string) (bool, error) {
	record, ok, err := domain.NewRule(ptype, rule)
	if err != nil {
		return false, err
	}
	if !ok {
		a.logger.Debug("policy rule rejected", "ptype", ptype, "rule", rule)
		return false, nil
	}
	return a.repo.AddRule(ctx, record)
}

// AddPolicies adds policy rules to the storage.
func (a *PolicyAdapter) AddPolicies(sec string, ptype string, rules [][]string) error {
	ctx, cancel := a.withTimeout()
	defer cancel()
	return a.AddPoliciesCtx(ctx, sec, ptype, rules)
}

// AddPoliciesCtx adds policy rules to the storage.
func (a *PolicyAdapter) AddPoliciesCtx(ctx context.Context, _ string, ptype string, rules [][]string) error {
	_, err := a.InsertPolicies(ctx, ptype, rules)
	return err
}

// InsertPolicies adds policy rules in a single batch. Rejected rules are
// dropped from the batch; an empty batch stores nothing and returns false.
func (a *PolicyAdapter) InsertPolicies(ctx context.Context, ptype string, rules [][]string) (bool, error) {
	records, err := a.mapRules(ptype, rules)
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}
	return a.repo.AddRules(ctx, records)
}

// RemovePolicy removes a policy rule from the storage.
func (a *PolicyAdapter) RemovePolicy(sec string, ptype string, rule []string) error {
	ctx, cancel := a.withTimeout()
	defer cancel()
	return a.RemovePolicyCtx(ctx, sec, ptype, rule)
}

// RemovePolicyCtx removes a policy rule from the storage.
func (a *PolicyAdapter) RemovePolicyCtx(ctx context.Context, _ string, ptype string, rule []string) error {
	_, err := a.DeletePolicy(ctx, ptype, rule)
	return err
}

// DeletePolicy removes the record matching ptype and every field of rule
// exactly, and reports whether one was removed.
func (a *PolicyAdapter) DeletePolicy(ctx context.Context, ptype string, rule []string) (bool, error) {
	if err := checkRemovable(ptype, rule); err != nil {
		return false, err
	}
	if ptype == "" || len(rule) == 0 {
		return false, nil
	}
	return a.repo.RemoveRule(ctx, ptype, domain.PadValues(rule, 0))
}

// RemovePolicies removes policy rules from the storage.
func (a *PolicyAdapter) RemovePolicies(sec string, ptype string, rules [][]string) error {
	ctx, cancel := a.withTimeout()
	defer cancel()
	return a.RemovePoliciesCtx(ctx, sec, ptype, rules)
}

// RemovePoliciesCtx removes policy rules from the storage.
func (a *PolicyAdapter) RemovePoliciesCtx(ctx context.Context, _ string, ptype string, rules [][]string) error {
	_, err := a.DeletePolicies(ctx, ptype, rules)
	return err
}

// DeletePolicies removes each rule in turn. A failure part way leaves the
// earlier removals applied unless the repository runs them atomically.
func (a *PolicyAdapter) DeletePolicies(ctx context.Context, ptype string, rules [][]string) (bool, error) {
	if ptype == "" || len(rules) == 0 {
		return false, nil
	}
	padded := make([][]string, 0, len(rules))
	for _, rule := range rules {
		if err := checkRemovable(ptype, rule); err != nil {
			return false, err
		}
		if len(rule) == 0 {
			continue
		}
		padded = append(padded, domain.PadValues(rule, 0))
	}
	if len(padded) == 0 {
		return false, nil
	}
	return a.repo.RemoveRules(ctx, ptype, padded)
}

// RemoveFilteredPolicy removes policy rules that match the filter from the storage.
func (a *PolicyAdapter) RemoveFilteredPolicy(sec string, ptype string, fieldIndex int, fieldValues ...string) error {
	ctx, cancel := a.withTimeout()
	defer cancel()
	return a.RemoveFilteredPolicyCtx(ctx, sec, ptype, fieldIndex, fieldValues...)
}

// RemoveFilteredPolicyCtx removes policy rules that match the filter from the storage.
func (a *PolicyAdapter) RemoveFilteredPolicyCtx(ctx context.Context, _ string, ptype string, fieldIndex int, fieldValues ...string) error {
	_, err := a.DeleteFilteredPolicy(ctx, ptype, fieldIndex, fieldValues...)
	return err
}

// DeleteFilteredPolicy removes every record of ptype whose fields from
// fieldIndex on equal the non-empty fieldValues. Empty values leave their
// position unconstrained. Nothing is queried when the arguments cannot
// constrain any field.
func (a *PolicyAdapter) DeleteFilteredPolicy(ctx context.Context, ptype string, fieldIndex int, fieldValues ...string) (bool, error) {
	if !domain.ValidFilterArgs(fieldIndex, fieldValues) {
		a.logger.Debug("filtered removal skipped", "ptype", ptype, "field_index", fieldIndex, "field_values", fieldValues)
		return false, nil
	}
	return a.repo.RemoveFilteredRules(ctx, ptype, fieldIndex, domain.PadValues(fieldValues, fieldIndex))
}

func (a *PolicyAdapter) mapRules(ptype string, rules [][]string) ([]domain.Rule, error) {
	records := make([]domain.Rule, 0, len(rules))
	for _, rule := range rules {
		record, ok, err := domain.NewRule(ptype, rule)
		if err != nil {
			return nil, err
		}
		if !ok {
			a.logger.Debug("policy rule dropped", "ptype", ptype, "rule", rule)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func checkRemovable(ptype string, rule []string) error {
	if len(rule) > domain.MaxFields {
		return fmt.Errorf("%w: rule %v of %q has more than %d values", domain.ErrInvalidInput, rule, ptype, domain.MaxFields)
	}
	return nil
}
