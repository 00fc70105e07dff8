package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"

	"casbin-mongodb-adapter/internal/core/domain"
	"casbin-mongodb-adapter/internal/core/ports/driven"
	"casbin-mongodb-adapter/internal/core/ports/driving"
)

// RBACWithDomainsModel is the model used when no model file is configured.
const RBACWithDomainsModel = `[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[role_definition]
g = _, _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub, r.dom) && r.dom == p.dom && r.obj == p.obj && r.act == p.act`

// RBACModel is a domain-less role model.
const RBACModel = `[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act`

// LoadModel reads the model at path, or returns the RBAC-with-domains
// model when path is empty.
func LoadModel(path string) (model.Model, error) {
	if path == "" {
		m, err := model.NewModelFromString(RBACWithDomainsModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create default model: %w", err)
		}
		return m, nil
	}
	m, err := model.NewModelFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", path, err)
	}
	return m, nil
}

// AuthorizationServiceConfig holds the collaborators of the service.
// Watcher and Health are optional.
type AuthorizationServiceConfig struct {
	Model   model.Model
	Adapter persist.Adapter
	Watcher persist.Watcher
	Health  driven.HealthChecker
	Logger  *slog.Logger
}

// AuthorizationServiceImpl implements the AuthorizationService interface on
// top of a synced casbin enforcer.
type AuthorizationServiceImpl struct {
	enforcer *casbin.SyncedEnforcer
	health   driven.HealthChecker
	logger   *slog.Logger
}

var _ driving.AuthorizationService = (*AuthorizationServiceImpl)(nil)

// NewAuthorizationServiceImpl creates the enforcer, loads the stored policy
// and enables auto-save so every mutation goes through the adapter.
func NewAuthorizationServiceImpl(cfg AuthorizationServiceConfig) (*AuthorizationServiceImpl, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("%w: model is required", domain.ErrInvalidInput)
	}
	if cfg.Adapter == nil {
		return nil, fmt.Errorf("%w: adapter is required", domain.ErrInvalidInput)
	}

	enforcer, err := casbin.NewSyncedEnforcer(cfg.Model, cfg.Adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}
	enforcer.EnableAutoSave(true)

	s := &AuthorizationServiceImpl{
		enforcer: enforcer,
		health:   cfg.Health,
		logger:   logger,
	}

	if cfg.Watcher != nil {
		if err := enforcer.SetWatcher(cfg.Watcher); err != nil {
			return nil, fmt.Errorf("failed to set watcher: %w", err)
		}
		if err := cfg.Watcher.SetUpdateCallback(s.onPolicyUpdate); err != nil {
			return nil, fmt.Errorf("failed to set watcher callback: %w", err)
		}
	}

	return s, nil
}

func (s *AuthorizationServiceImpl) onPolicyUpdate(msg string) {
	s.logger.Info("policy update received", "message", msg)
	if err := s.enforcer.LoadPolicy(); err != nil {
		s.logger.Error("failed to reload policy", "error", err)
	}
}

// Enforcer returns the underlying enforcer.
func (s *AuthorizationServiceImpl) Enforcer() *casbin.SyncedEnforcer {
	return s.enforcer
}

func (s *AuthorizationServiceImpl) GetPolicies(ptype string) ([][]string, error) {
	if err := s.checkPType(ptype); err != nil {
		return nil, err
	}
	if isGrouping(ptype) {
		return s.enforcer.GetNamedGroupingPolicy(ptype)
	}
	return s.enforcer.GetNamedPolicy(ptype)
}

func (s *AuthorizationServiceImpl) AddPolicy(ptype string, rule []string) (bool, error) {
	if err := s.checkPType(ptype); err != nil {
		return false, err
	}
	if isGrouping(ptype) {
		return s.enforcer.AddNamedGroupingPolicy(ptype, rule)
	}
	return s.enforcer.AddNamedPolicy(ptype, rule)
}

func (s *AuthorizationServiceImpl) RemovePolicy(ptype string, rule []string) (bool, error) {
	if err := s.checkPType(ptype); err != nil {
		return false, err
	}
	if isGrouping(ptype) {
		return s.enforcer.RemoveNamedGroupingPolicy(ptype, rule)
	}
	return s.enforcer.RemoveNamedPolicy(ptype, rule)
}

func (s *AuthorizationServiceImpl) RemoveFilteredPolicy(ptype string, fieldIndex int, fieldValues ...string) (bool, error) {
	if err := s.checkPType(ptype); err != nil {
		return false, err
	}
	if !domain.ValidFilterArgs(fieldIndex, fieldValues) {
		return false, nil
	}
	// the enforcer indexes stored tuples up to fieldIndex+len(fieldValues)
	if tokens := len(s.enforcer.GetModel()[ptype[:1]][ptype].Tokens); fieldIndex+len(fieldValues) > tokens {
		return false, fmt.Errorf("%w: field_index %d with %d values exceeds the %d fields of %q",
			domain.ErrInvalidInput, fieldIndex, len(fieldValues), tokens, ptype)
	}
	if isGrouping(ptype) {
		return s.enforcer.RemoveFilteredNamedGroupingPolicy(ptype, fieldIndex, fieldValues...)
	}
	return s.enforcer.RemoveFilteredNamedPolicy(ptype, fieldIndex, fieldValues...)
}

func (s *AuthorizationServiceImpl) LoadFilteredPolicy(filter domain.Filter) error {
	return s.enforcer.LoadFilteredPolicy(filter)
}

func (s *AuthorizationServiceImpl) ReloadPolicy() error {
	return s.enforcer.LoadPolicy()
}

// Enforce checks the request; the domain is only passed when set.
func (s *AuthorizationServiceImpl) Enforce(req domain.EnforceRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}
	if req.Domain != "" {
		return s.enforcer.Enforce(req.Subject, req.Domain, req.Object, req.Action)
	}
	return s.enforcer.Enforce(req.Subject, req.Object, req.Action)
}

func (s *AuthorizationServiceImpl) Ping(ctx context.Context) error {
	if s.health == nil {
		return nil
	}
	if err := s.health.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// checkPType rejects ptypes the model does not define.
func (s *AuthorizationServiceImpl) checkPType(ptype string) error {
	if ptype == "" {
		return fmt.Errorf("%w: ptype cannot be empty", domain.ErrInvalidInput)
	}
	m := s.enforcer.GetModel()
	section := ptype[:1]
	if _, ok := m[section][ptype]; !ok {
		return fmt.Errorf("%w: ptype %q is not defined by the model", domain.ErrInvalidInput, ptype)
	}
	return nil
}

func isGrouping(ptype string) bool {
	return strings.HasPrefix(ptype, domain.SectionGrouping)
}
