package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casbin-mongodb-adapter/internal/adapters/driven/persistence/memory"
	"casbin-mongodb-adapter/internal/core/domain"
)

// recordingRepository counts the calls that reach storage and can be told
// to fail every call.
type recordingRepository struct {
	*memory.RuleRepositoryImpl
	calls int
	err   error
}

func newRecordingRepository() *recordingRepository {
	return &recordingRepository{RuleRepositoryImpl: memory.NewRuleRepository()}
}

func (r *recordingRepository) fail() error {
	r.calls++
	if r.err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorage, r.err)
	}
	return nil
}

func (r *recordingRepository) SaveRules(ctx context.Context, rules []domain.Rule) error {
	if err := r.fail(); err != nil {
		return err
	}
	return r.RuleRepositoryImpl.SaveRules(ctx, rules)
}

func (r *recordingRepository) ClearRules(ctx context.Context) error {
	if err := r.fail(); err != nil {
		return err
	}
	return r.RuleRepositoryImpl.ClearRules(ctx)
}

func (r *recordingRepository) LoadRules(ctx context.Context) ([]domain.Rule, error) {
	if err := r.fail(); err != nil {
		return nil, err
	}
	return r.RuleRepositoryImpl.LoadRules(ctx)
}

func (r *recordingRepository) AddRule(ctx context.Context, rule domain.Rule) (bool, error) {
	if err := r.fail(); err != nil {
		return false, err
	}
	return r.RuleRepositoryImpl.AddRule(ctx, rule)
}

func (r *recordingRepository) AddRules(ctx context.Context, rules []domain.Rule) (bool, error) {
	if err := r.fail(); err != nil {
		return false, err
	}
	return r.RuleRepositoryImpl.AddRules(ctx, rules)
}

func (r *recordingRepository) RemoveRule(ctx context.Context, ptype string, values []string) (bool, error) {
	if err := r.fail(); err != nil {
		return false, err
	}
	return r.RuleRepositoryImpl.RemoveRule(ctx, ptype, values)
}

func (r *recordingRepository) RemoveRules(ctx context.Context, ptype string, rules [][]string) (bool, error) {
	if err := r.fail(); err != nil {
		return false, err
	}
	return r.RuleRepositoryImpl.RemoveRules(ctx, ptype, rules)
}

func (r *recordingRepository) RemoveFilteredRules(ctx context.Context, ptype string, fieldIndex int, fieldValues []string) (bool, error) {
	if err := r.fail(); err != nil {
		return false, err
	}
	return r.RuleRepositoryImpl.RemoveFilteredRules(ctx, ptype, fieldIndex, fieldValues)
}

func newTestModel(t *testing.T) model.Model {
	t.Helper()
	m, err := model.NewModelFromString(RBACModel)
	require.NoError(t, err)
	m.ClearPolicy()
	return m
}

func policies(m model.Model, sec, ptype string) [][]string {
	ast, ok := m[sec][ptype]
	if !ok {
		return nil
	}
	return ast.Policy
}

func TestPolicyAdapter_LoadPolicy(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	adapter := NewPolicyAdapter(repo)

	added, err := adapter.InsertPolicy(ctx, "p", []string{"alice", "data1", "read"})
	require.NoError(t, err)
	require.True(t, added)

	m := newTestModel(t)
	require.NoError(t, adapter.LoadPolicyCtx(ctx, m))

	assert.Equal(t, [][]string{{"alice", "data1", "read"}}, policies(m, "p", "p"))
	assert.Empty(t, policies(m, "g", "g"))
	assert.False(t, adapter.IsFiltered())
}

func TestPolicyAdapter_LoadPolicySkipsUnknownPTypes(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	adapter := NewPolicyAdapter(repo)

	_, err := adapter.InsertPolicies(ctx, "p2", [][]string{{"alice", "data1", "read"}})
	require.NoError(t, err)
	_, err = adapter.InsertPolicy(ctx, "g", []string{"alice", "admin"})
	require.NoError(t, err)

	m := newTestModel(t)
	require.NoError(t, adapter.LoadPolicyCtx(ctx, m))

	assert.Empty(t, policies(m, "p", "p"))
	assert.Equal(t, [][]string{{"alice", "admin"}}, policies(m, "g", "g"))
}

func TestPolicyAdapter_LoadFilteredPolicy(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	adapter := NewPolicyAdapter(repo)

	_, err := adapter.InsertPolicies(ctx, "p", [][]string{
		{"admin", "domain1", "data1", "read"},
		{"admin", "domain2", "data2", "read"},
	})
	require.NoError(t, err)
	_, err = adapter.InsertPolicies(ctx, "g", [][]string{
		{"alice", "admin", "domain1"},
		{"bob", "admin", "domain2"},
	})
	require.NoError(t, err)

	m := newTestModel(t)
	filter := domain.Filter{P: []string{"", "domain1"}}
	require.NoError(t, adapter.LoadFilteredPolicyCtx(ctx, m, filter))

	assert.Equal(t, [][]string{{"admin", "domain1", "data1", "read"}}, policies(m, "p", "p"))
	assert.Len(t, policies(m, "g", "g"), 2, "grouping rules are not constrained by a policy filter")
	assert.True(t, adapter.IsFiltered())
	assert.True(t, adapter.IsFilteredCtx(ctx))

	// a full load resets the flag
	require.NoError(t, adapter.LoadPolicyCtx(ctx, newTestModel(t)))
	assert.False(t, adapter.IsFiltered())
}

func TestPolicyAdapter_LoadFilteredPolicyFilterTypes(t *testing.T) {
	ctx := context.Background()
	adapter := NewPolicyAdapter(newRecordingRepository())
	_, err := adapter.InsertPolicy(ctx, "g", []string{"alice", "admin", "domain1"})
	require.NoError(t, err)

	t.Run("pointer filter", func(t *testing.T) {
		m := newTestModel(t)
		require.NoError(t, adapter.LoadFilteredPolicyCtx(ctx, m, &domain.Filter{G: []string{"", "", "domain2"}}))
		assert.Empty(t, policies(m, "g", "g"))
		assert.True(t, adapter.IsFiltered())
	})

	t.Run("nil filter loads everything", func(t *testing.T) {
		m := newTestModel(t)
		require.NoError(t, adapter.LoadFilteredPolicyCtx(ctx, m, nil))
		assert.Len(t, policies(m, "g", "g"), 1)
		assert.False(t, adapter.IsFiltered())
	})

	t.Run("unsupported filter", func(t *testing.T) {
		err := adapter.LoadFilteredPolicyCtx(ctx, newTestModel(t), "domain1")
		assert.True(t, errors.Is(err, domain.ErrInvalidFilter))
	})
}

func TestPolicyAdapter_SavePolicy(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	adapter := NewPolicyAdapter(repo)

	m := newTestModel(t)
	m.AddPolicy("p", "p", []string{"alice", "data1", "read"})
	m.AddPolicy("p", "p", []string{"bob", "data2", "write"})
	m.AddPolicy("g", "g", []string{"alice", "data2_admin"})

	require.NoError(t, adapter.SavePolicyCtx(ctx, m))
	assert.Equal(t, 3, repo.Len())

	// saving again without clearing hits the duplicate guard
	err := adapter.SavePolicyCtx(ctx, m)
	assert.True(t, errors.Is(err, domain.ErrStorage))
	assert.Equal(t, 3, repo.Len())

	require.NoError(t, adapter.ClearPolicy(ctx))
	assert.Equal(t, 0, repo.Len())
}

func TestPolicyAdapter_SavePolicyReplace(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	adapter := NewPolicyAdapter(repo, WithReplaceOnSave())

	m := newTestModel(t)
	m.AddPolicy("p", "p", []string{"alice", "data1", "read"})
	require.NoError(t, adapter.SavePolicyCtx(ctx, m))
	require.NoError(t, adapter.SavePolicyCtx(ctx, m))
	assert.Equal(t, 1, repo.Len())
}

func TestPolicyAdapter_InsertPolicyRejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		ptype string
		rule  []string
	}{
		{"empty ptype", "", []string{"alice", "data1", "read"}},
		{"blank ptype", " ", []string{"alice", "data1", "read"}},
		{"empty rule", "p", []string{}},
		{"nil rule", "p", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRecordingRepository()
			repo.err = errors.New("must not be called")
			adapter := NewPolicyAdapter(repo)

			added, err := adapter.InsertPolicy(ctx, tt.ptype, tt.rule)
			assert.NoError(t, err)
			assert.False(t, added)
			assert.Zero(t, repo.calls)

			assert.NoError(t, adapter.AddPolicyCtx(ctx, "p", tt.ptype, tt.rule))
			assert.Zero(t, repo.calls)
		})
	}
}

func TestPolicyAdapter_InsertPoliciesDropsRejected(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	adapter := NewPolicyAdapter(repo)

	added, err := adapter.InsertPolicies(ctx, "p", [][]string{
		{"alice", "data1", "read"},
		{},
		{"bob", "data2", "write"},
	})
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 2, repo.Len())
	assert.Equal(t, 1, repo.calls)

	added, err = adapter.InsertPolicies(ctx, "", [][]string{{"carol", "data3", "read"}})
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, repo.calls, "an empty batch is not sent to storage")
}

func TestPolicyAdapter_TooManyValues(t *testing.T) {
	ctx := context.Background()
	adapter := NewPolicyAdapter(newRecordingRepository())
	rule := []string{"1", "2", "3", "4", "5", "6", "7"}

	_, err := adapter.InsertPolicy(ctx, "p", rule)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = adapter.DeletePolicy(ctx, "p", rule)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestPolicyAdapter_DeletePolicy(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	adapter := NewPolicyAdapter(repo)

	_, err := adapter.InsertPolicy(ctx, "g", []string{"alice", "data2_admin"})
	require.NoError(t, err)

	removed, err := adapter.DeletePolicy(ctx, "g", []string{"alice", "data2_admin", "not_exists"})
	require.NoError(t, err)
	assert.False(t, removed, "a rule that does not exist is not removed")

	removed, err = adapter.DeletePolicy(ctx, "g", []string{"alice", "data2_admin"})
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = adapter.DeletePolicy(ctx, "g", []string{"alice", "data2_admin"})
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestPolicyAdapter_DeletePolicies(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	adapter := NewPolicyAdapter(repo)

	rules := [][]string{
		{"alice", "data1", "read"},
		{"bob", "data2", "write"},
		{"data2_admin", "data2", "read"},
		{"data2_admin", "data2", "write"},
	}
	_, err := adapter.InsertPolicies(ctx, "p", rules)
	require.NoError(t, err)

	removed, err := adapter.DeletePolicies(ctx, "p", rules[:3])
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 1, repo.Len())

	removed, err = adapter.DeletePolicies(ctx, "p", rules[:3])
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestPolicyAdapter_DeleteFilteredPolicy(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	adapter := NewPolicyAdapter(repo)

	_, err := adapter.InsertPolicy(ctx, "g", []string{"alice", "data2_admin", "domain1", "domain2"})
	require.NoError(t, err)

	removed, err := adapter.DeleteFilteredPolicy(ctx, "g", 0, "alice", "data2_admin", "not_exists")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = adapter.DeleteFilteredPolicy(ctx, "g", 1, "data2_admin", "domain1", "domain2")
	require.NoError(t, err)
	assert.True(t, removed)

	m := newTestModel(t)
	require.NoError(t, adapter.LoadPolicyCtx(ctx, m))
	assert.Empty(t, policies(m, "g", "g"))
}

func TestPolicyAdapter_DeleteFilteredPolicyWildcards(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	adapter := NewPolicyAdapter(repo)

	_, err := adapter.InsertPolicies(ctx, "p", [][]string{
		{"alice", "data1", "read"},
		{"alice", "data1", "write"},
		{"bob", "data1", "read"},
	})
	require.NoError(t, err)

	removed, err := adapter.DeleteFilteredPolicy(ctx, "p", 0, "", "data1", "read")
	require.NoError(t, err)
	assert.True(t, removed)

	m := newTestModel(t)
	require.NoError(t, adapter.LoadPolicyCtx(ctx, m))
	assert.Equal(t, [][]string{{"alice", "data1", "write"}}, policies(m, "p", "p"))
}

func TestPolicyAdapter_DeleteFilteredPolicyGuards(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		fieldIndex int
		values     []string
	}{
		{"negative index", -1, []string{"alice"}},
		{"index out of range", 6, []string{"alice"}},
		{"no values", 0, nil},
		{"only empty values", 0, []string{"", "", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRecordingRepository()
			adapter := NewPolicyAdapter(repo)
			_, err := adapter.InsertPolicy(ctx, "p", []string{"alice", "data1", "read"})
			require.NoError(t, err)
			callsBefore := repo.calls

			removed, err := adapter.DeleteFilteredPolicy(ctx, "p", tt.fieldIndex, tt.values...)
			assert.NoError(t, err)
			assert.False(t, removed)
			assert.Equal(t, callsBefore, repo.calls)
			assert.Equal(t, 1, repo.Len())
		})
	}
}

func TestPolicyAdapter_FilteredRemovalMatchesExactRemoval(t *testing.T) {
	ctx := context.Background()
	full := []string{"a", "b", "c", "d", "e", "f"}

	exactRepo := newRecordingRepository()
	exact := NewPolicyAdapter(exactRepo)
	filteredRepo := newRecordingRepository()
	filtered := NewPolicyAdapter(filteredRepo)

	seed := [][]string{full, {"a", "b", "c", "d", "e", "g"}}
	_, err := exact.InsertPolicies(ctx, "p", seed)
	require.NoError(t, err)
	_, err = filtered.InsertPolicies(ctx, "p", seed)
	require.NoError(t, err)

	removedExact, err := exact.DeletePolicy(ctx, "p", full)
	require.NoError(t, err)
	removedFiltered, err := filtered.DeleteFilteredPolicy(ctx, "p", 0, full...)
	require.NoError(t, err)

	assert.Equal(t, removedExact, removedFiltered)
	exactRules, _ := exactRepo.LoadRules(ctx)
	filteredRules, _ := filteredRepo.LoadRules(ctx)
	require.Len(t, exactRules, 1)
	require.Len(t, filteredRules, 1)
	assert.Equal(t, exactRules[0].Values(), filteredRules[0].Values())
}

func TestPolicyAdapter_StorageFaultsPropagate(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepository()
	repo.err = errors.New("connection reset")
	adapter := NewPolicyAdapter(repo)

	m := newTestModel(t)
	m.AddPolicy("p", "p", []string{"alice", "data1", "read"})

	checks := map[string]error{
		"load":            adapter.LoadPolicyCtx(ctx, newTestModel(t)),
		"load filtered":   adapter.LoadFilteredPolicyCtx(ctx, newTestModel(t), domain.Filter{P: []string{"alice"}}),
		"save":            adapter.SavePolicyCtx(ctx, m),
		"clear":           adapter.ClearPolicy(ctx),
		"add":             adapter.AddPolicyCtx(ctx, "p", "p", []string{"alice", "data1", "read"}),
		"add many":        adapter.AddPoliciesCtx(ctx, "p", "p", [][]string{{"alice", "data1", "read"}}),
		"remove":          adapter.RemovePolicyCtx(ctx, "p", "p", []string{"alice", "data1", "read"}),
		"remove many":     adapter.RemovePoliciesCtx(ctx, "p", "p", [][]string{{"alice", "data1", "read"}}),
		"remove filtered": adapter.RemoveFilteredPolicyCtx(ctx, "p", "p", 0, "alice"),
	}
	for name, err := range checks {
		assert.True(t, errors.Is(err, domain.ErrStorage), "%s: got %v", name, err)
	}
}

func TestPolicyAdapter_WithEnforcer(t *testing.T) {
	repo := newRecordingRepository()
	adapter := NewPolicyAdapter(repo)

	m := newTestModel(t)
	e, err := casbin.NewEnforcer(m, adapter)
	require.NoError(t, err)

	_, err = e.AddPolicy("data2_admin", "data2", "read")
	require.NoError(t, err)
	_, err = e.AddGroupingPolicy("alice", "data2_admin")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.Len())

	require.NoError(t, e.LoadPolicy())
	allowed, err := e.Enforce("alice", "data2", "read")
	require.NoError(t, err)
	assert.True(t, allowed)

	_, err = e.RemoveGroupingPolicy("alice", "data2_admin")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.Len())

	allowed, err = e.Enforce("alice", "data2", "read")
	require.NoError(t, err)
	assert.False(t, allowed)
}
