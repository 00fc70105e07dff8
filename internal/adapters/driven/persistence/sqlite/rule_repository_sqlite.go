package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"casbin-mongodb-adapter/internal/core/domain"
	"casbin-mongodb-adapter/internal/core/ports/driven"
)

// CasbinRule represents a row in the casbin_rules table
type CasbinRule struct {
	ID    uint   `gorm:"primaryKey"`
	PType string `gorm:"column:ptype;size:100;uniqueIndex:idx_casbin_rules_unique"` // "p" for policies, "g" for role assignments
	V0    string `gorm:"size:100;uniqueIndex:idx_casbin_rules_unique"`
	V1    string `gorm:"size:100;uniqueIndex:idx_casbin_rules_unique"`
	V2    string `gorm:"size:100;uniqueIndex:idx_casbin_rules_unique"`
	V3    string `gorm:"size:100;uniqueIndex:idx_casbin_rules_unique"`
	V4    string `gorm:"size:100;uniqueIndex:idx_casbin_rules_unique"`
	V5    string `gorm:"size:100;uniqueIndex:idx_casbin_rules_unique"`
}

// TableName overrides the gorm table name.
func (CasbinRule) TableName() string {
	return "casbin_rules"
}

func newCasbinRule(rule domain.Rule) CasbinRule {
	return CasbinRule{
		PType: rule.PType,
		V0:    rule.V0,
		V1:    rule.V1,
		V2:    rule.V2,
		V3:    rule.V3,
		V4:    rule.V4,
		V5:    rule.V5,
	}
}

func (c CasbinRule) toRule() domain.Rule {
	return domain.Rule{
		ID:    strconv.FormatUint(uint64(c.ID), 10),
		PType: c.PType,
		V0:    c.V0,
		V1:    c.V1,
		V2:    c.V2,
		V3:    c.V3,
		V4:    c.V4,
		V5:    c.V5,
	}
}

// RuleRepositoryImpl implements driven.RuleRepository for SQLite.
type RuleRepositoryImpl struct {
	db *gorm.DB
}

var (
	_ driven.RuleRepository = (*RuleRepositoryImpl)(nil)
	_ driven.HealthChecker  = (*RuleRepositoryImpl)(nil)
)

// NewRuleRepository creates a new RuleRepositoryImpl and migrates its table.
func NewRuleRepository(db *gorm.DB) (*RuleRepositoryImpl, error) {
	if err := db.AutoMigrate(&CasbinRule{}); err != nil {
		return nil, fmt.Errorf("failed to migrate CasbinRule table: %w", err)
	}
	return &RuleRepositoryImpl{db: db}, nil
}

func (r *RuleRepositoryImpl) SaveRules(ctx context.Context, rules []domain.Rule) error {
	if len(rules) == 0 {
		return nil
	}
	rows := toRows(rules)
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return storageError("save rules", err)
	}
	return nil
}

func (r *RuleRepositoryImpl) ClearRules(ctx context.Context) error {
	err := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&CasbinRule{}).Error
	if err != nil {
		return storageError("clear rules", err)
	}
	return nil
}

func (r *RuleRepositoryImpl) LoadRules(ctx context.Context) ([]domain.Rule, error) {
	var rows []CasbinRule
	if err := r.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, storageError("load rules", err)
	}

	rules := make([]domain.Rule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, row.toRule())
	}
	return rules, nil
}

func (r *RuleRepositoryImpl) AddRule(ctx context.Context, rule domain.Rule) (bool, error) {
	row := newCasbinRule(rule)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return false, storageError("add rule", err)
	}
	return true, nil
}

func (r *RuleRepositoryImpl) AddRules(ctx context.Context, rules []domain.Rule) (bool, error) {
	if len(rules) == 0 {
		return false, nil
	}
	rows := toRows(rules)
	res := r.db.WithContext(ctx).Create(&rows)
	if res.Error != nil {
		return false, storageError("add rules", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *RuleRepositoryImpl) RemoveRule(ctx context.Context, ptype string, values []string) (bool, error) {
	res := r.db.WithContext(ctx).Where(exactConditions(ptype, values)).Delete(&CasbinRule{})
	if res.Error != nil {
		return false, storageError("remove rule", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// RemoveRules removes each rule in turn inside one transaction.
func (r *RuleRepositoryImpl) RemoveRules(ctx context.Context, ptype string, rules [][]string) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, values := range rules {
			res := tx.Where(exactConditions(ptype, values)).Delete(&CasbinRule{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				removed = true
			}
		}
		return nil
	})
	if err != nil {
		return false, storageError("remove rules", err)
	}
	return removed, nil
}

// RemoveFilteredRules deletes the rows of ptype whose columns from
// fieldIndex on equal COALESCE(value, column); empty values bind NULL.
func (r *RuleRepositoryImpl) RemoveFilteredRules(ctx context.Context, ptype string, fieldIndex int, fieldValues []string) (bool, error) {
	query := r.db.WithContext(ctx).Where("ptype = ?", ptype)
	for i := fieldIndex; i < domain.MaxFields; i++ {
		column := "v" + strconv.Itoa(i)
		var value interface{}
		if j := i - fieldIndex; j < len(fieldValues) && fieldValues[j] != "" {
			value = fieldValues[j]
		}
		query = query.Where(column+" = COALESCE(?, "+column+")", value)
	}

	res := query.Delete(&CasbinRule{})
	if res.Error != nil {
		return false, storageError("remove filtered rules", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *RuleRepositoryImpl) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return storageError("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storageError("ping", err)
	}
	return nil
}

func exactConditions(ptype string, values []string) map[string]interface{} {
	conds := map[string]interface{}{"ptype": ptype}
	for i := 0; i < domain.MaxFields; i++ {
		var v string
		if i < len(values) {
			v = values[i]
		}
		conds["v"+strconv.Itoa(i)] = v
	}
	return conds
}

func toRows(rules []domain.Rule) []CasbinRule {
	rows := make([]CasbinRule, 0, len(rules))
	for _, rule := range rules {
		rows = append(rows, newCasbinRule(rule))
	}
	return rows
}

func storageError(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s: duplicate rule: %w", domain.ErrStorage, op, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}
