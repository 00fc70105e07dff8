package driving

import (
	"context"

	"github.com/casbin/casbin/v2/model"

	"casbin-mongodb-adapter/internal/core/domain"
)

// PolicyStore defines the storage operations of the casbin adapter with
// their outcome visible to the caller.
type PolicyStore interface {
	LoadPolicyCtx(ctx context.Context, m model.Model) error
	LoadFilteredPolicyCtx(ctx context.Context, m model.Model, filter interface{}) error
	SavePolicyCtx(ctx context.Context, m model.Model) error
	ClearPolicy(ctx context.Context) error
	IsFiltered() bool
	InsertPolicy(ctx context.Context, ptype string, rule []string) (bool, error)
	InsertPolicies(ctx context.Context, ptype string, rules [][]string) (bool, error)
	DeletePolicy(ctx context.Context, ptype string, rule []string) (bool, error)
	DeletePolicies(ctx context.Context, ptype string, rules [][]string) (bool, error)
	DeleteFilteredPolicy(ctx context.Context, ptype string, fieldIndex int, fieldValues ...string) (bool, error)
}

// AuthorizationService defines the policy management and enforcement
// operations served over the API.
type AuthorizationService interface {
	GetPolicies(ptype string) ([][]string, error)
	AddPolicy(ptype string, rule []string) (bool, error)
	RemovePolicy(ptype string, rule []string) (bool, error)
	RemoveFilteredPolicy(ptype string, fieldIndex int, fieldValues ...string) (bool, error)
	LoadFilteredPolicy(filter domain.Filter) error
	ReloadPolicy() error
	Enforce(request domain.EnforceRequest) (bool, error)
	Ping(ctx context.Context) error
}
