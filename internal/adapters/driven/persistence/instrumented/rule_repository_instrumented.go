package instrumented

import (
	"context"
	"time"

	"casbin-mongodb-adapter/internal/core/domain"
	"casbin-mongodb-adapter/internal/core/ports/driven"
)

// RuleRepositoryImpl decorates a driven.RuleRepository with metrics.
type RuleRepositoryImpl struct {
	next    driven.RuleRepository
	metrics *Metrics
}

var (
	_ driven.RuleRepository = (*RuleRepositoryImpl)(nil)
	_ driven.HealthChecker  = (*RuleRepositoryImpl)(nil)
)

// NewRuleRepository wraps next.
func NewRuleRepository(next driven.RuleRepository, metrics *Metrics) *RuleRepositoryImpl {
	return &RuleRepositoryImpl{next: next, metrics: metrics}
}

func (r *RuleRepositoryImpl) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.metrics.OperationsTotal.WithLabelValues(op, result).Inc()
	r.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (r *RuleRepositoryImpl) SaveRules(ctx context.Context, rules []domain.Rule) (err error) {
	defer func(start time.Time) { r.observe("save_rules", start, err) }(time.Now())
	return r.next.SaveRules(ctx, rules)
}

func (r *RuleRepositoryImpl) ClearRules(ctx context.Context) (err error) {
	defer func(start time.Time) { r.observe("clear_rules", start, err) }(time.Now())
	return r.next.ClearRules(ctx)
}

func (r *RuleRepositoryImpl) LoadRules(ctx context.Context) (rules []domain.Rule, err error) {
	defer func(start time.Time) { r.observe("load_rules", start, err) }(time.Now())
	return r.next.LoadRules(ctx)
}

func (r *RuleRepositoryImpl) AddRule(ctx context.Context, rule domain.Rule) (added bool, err error) {
	defer func(start time.Time) { r.observe("add_rule", start, err) }(time.Now())
	return r.next.AddRule(ctx, rule)
}

func (r *RuleRepositoryImpl) AddRules(ctx context.Context, rules []domain.Rule) (added bool, err error) {
	defer func(start time.Time) { r.observe("add_rules", start, err) }(time.Now())
	return r.next.AddRules(ctx, rules)
}

func (r *RuleRepositoryImpl) RemoveRule(ctx context.Context, ptype string, values []string) (removed bool, err error) {
	defer func(start time.Time) { r.observe("remove_rule", start, err) }(time.Now())
	return r.next.RemoveRule(ctx, ptype, values)
}

func (r *RuleRepositoryImpl) RemoveRules(ctx context.Context, ptype string, rules [][]string) (removed bool, err error) {
	defer func(start time.Time) { r.observe("remove_rules", start, err) }(time.Now())
	return r.next.RemoveRules(ctx, ptype, rules)
}

func (r *RuleRepositoryImpl) RemoveFilteredRules(ctx context.Context, ptype string, fieldIndex int, fieldValues []string) (removed bool, err error) {
	defer func(start time.Time) { r.observe("remove_filtered_rules", start, err) }(time.Now())
	return r.next.RemoveFilteredRules(ctx, ptype, fieldIndex, fieldValues)
}

// Ping forwards to the wrapped repository when it can be probed.
func (r *RuleRepositoryImpl) Ping(ctx context.Context) error {
	if hc, ok := r.next.(driven.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}
