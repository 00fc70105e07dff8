package driven

import (
	"context"

	"casbin-mongodb-adapter/internal/core/domain"
)

// RuleRepository defines the interface for casbin rule persistence.
// Remove operations report whether any record was deleted.
type RuleRepository interface {
	SaveRules(ctx context.Context, rules []domain.Rule) error
	ClearRules(ctx context.Context) error
	LoadRules(ctx context.Context) ([]domain.Rule, error)
	AddRule(ctx context.Context, rule domain.Rule) (bool, error)
	AddRules(ctx context.Context, rules []domain.Rule) (bool, error)
	RemoveRule(ctx context.Context, ptype string, values []string) (bool, error)
	RemoveRules(ctx context.Context, ptype string, rules [][]string) (bool, error)
	RemoveFilteredRules(ctx context.Context, ptype string, fieldIndex int, fieldValues []string) (bool, error)
}

// HealthChecker is implemented by repositories that can probe their backend.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
