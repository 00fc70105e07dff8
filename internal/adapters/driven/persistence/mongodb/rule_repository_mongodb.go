package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"casbin-mongodb-adapter/internal/core/domain"
	"casbin-mongodb-adapter/internal/core/ports/driven"
)

// UniqueIndexName names the index on ptype and the six value fields.
const UniqueIndexName = "casbin_rule_unique"

// ruleDocument represents a document in the rule collection
type ruleDocument struct {
	ID    primitive.ObjectID `bson:"_id,omitempty"`
	PType string             `bson:"ptype"`
	V0    string             `bson:"v0"`
	V1    string             `bson:"v1"`
	V2    string             `bson:"v2"`
	V3    string             `bson:"v3"`
	V4    string             `bson:"v4"`
	V5    string             `bson:"v5"`
}

func newRuleDocument(rule domain.Rule) ruleDocument {
	return ruleDocument{
		PType: rule.PType,
		V0:    rule.V0,
		V1:    rule.V1,
		V2:    rule.V2,
		V3:    rule.V3,
		V4:    rule.V4,
		V5:    rule.V5,
	}
}

func (d ruleDocument) toRule() domain.Rule {
	rule := domain.Rule{
		PType: d.PType,
		V0:    d.V0,
		V1:    d.V1,
		V2:    d.V2,
		V3:    d.V3,
		V4:    d.V4,
		V5:    d.V5,
	}
	if !d.ID.IsZero() {
		rule.ID = d.ID.Hex()
	}
	return rule
}

// RuleRepositoryImpl implements driven.RuleRepository for MongoDB.
type RuleRepositoryImpl struct {
	coll         *mongo.Collection
	transactions bool
	logger       *slog.Logger
}

// RepositoryOption configures a RuleRepositoryImpl.
type RepositoryOption func(*RuleRepositoryImpl)

// WithTransactions runs batch removals in a multi-document transaction.
// The deployment must be a replica set or sharded cluster.
func WithTransactions(enabled bool) RepositoryOption {
	return func(r *RuleRepositoryImpl) {
		r.transactions = enabled
	}
}

// WithLogger sets the repository logger.
func WithLogger(logger *slog.Logger) RepositoryOption {
	return func(r *RuleRepositoryImpl) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRuleRepository creates a new RuleRepositoryImpl on coll.
func NewRuleRepository(coll *mongo.Collection, opts ...RepositoryOption) *RuleRepositoryImpl {
	r := &RuleRepositoryImpl{coll: coll, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	_ driven.RuleRepository = (*RuleRepositoryImpl)(nil)
	_ driven.HealthChecker  = (*RuleRepositoryImpl)(nil)
)

// EnsureIndexes creates the unique rule index if it does not exist.
func (r *RuleRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	name, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    uniqueIndexKeys(),
		Options: options.Index().SetName(UniqueIndexName).SetUnique(true),
	})
	if err != nil {
		return storageError("ensure indexes", err)
	}
	r.logger.Debug("rule index ready", "collection", r.coll.Name(), "index", name)
	return nil
}

func (r *RuleRepositoryImpl) SaveRules(ctx context.Context, rules []domain.Rule) error {
	if len(rules) == 0 {
		return nil
	}
	if _, err := r.coll.InsertMany(ctx, toDocuments(rules)); err != nil {
		return storageError("save rules", err)
	}
	return nil
}

func (r *RuleRepositoryImpl) ClearRules(ctx context.Context) error {
	res, err := r.coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return storageError("clear rules", err)
	}
	r.logger.Debug("rules cleared", "deleted", res.DeletedCount)
	return nil
}

func (r *RuleRepositoryImpl) LoadRules(ctx context.Context) ([]domain.Rule, error) {
	cursor, err := r.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, storageError("load rules", err)
	}
	var docs []ruleDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storageError("load rules", err)
	}

	rules := make([]domain.Rule, 0, len(docs))
	for _, doc := range docs {
		rules = append(rules, doc.toRule())
	}
	return rules, nil
}

func (r *RuleRepositoryImpl) AddRule(ctx context.Context, rule domain.Rule) (bool, error) {
	if _, err := r.coll.InsertOne(ctx, newRuleDocument(rule)); err != nil {
		return false, storageError("add rule", err)
	}
	return true, nil
}

func (r *RuleRepositoryImpl) AddRules(ctx context.Context, rules []domain.Rule) (bool, error) {
	if len(rules) == 0 {
		return false, nil
	}
	res, err := r.coll.InsertMany(ctx, toDocuments(rules))
	if err != nil {
		return false, storageError("add rules", err)
	}
	return len(res.InsertedIDs) > 0, nil
}

func (r *RuleRepositoryImpl) RemoveRule(ctx context.Context, ptype string, values []string) (bool, error) {
	res, err := r.coll.DeleteMany(ctx, exactRuleFilter(ptype, values))
	if err != nil {
		return false, storageError("remove rule", err)
	}
	return res.DeletedCount > 0, nil
}

// RemoveRules removes each rule in turn, inside a transaction when enabled.
func (r *RuleRepositoryImpl) RemoveRules(ctx context.Context, ptype string, rules [][]string) (bool, error) {
	if !r.transactions {
		return r.removeEach(ctx, ptype, rules)
	}

	sess, err := r.coll.Database().Client().StartSession()
	if err != nil {
		return false, storageError("remove rules", err)
	}
	defer sess.EndSession(ctx)

	result, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return r.removeEach(sc, ptype, rules)
	})
	if err != nil {
		if errors.Is(err, domain.ErrStorage) {
			return false, err
		}
		return false, storageError("remove rules", err)
	}
	removed, _ := result.(bool)
	return removed, nil
}

func (r *RuleRepositoryImpl) removeEach(ctx context.Context, ptype string, rules [][]string) (bool, error) {
	removed := false
	for _, values := range rules {
		res, err := r.coll.DeleteMany(ctx, exactRuleFilter(ptype, values))
		if err != nil {
			return false, storageError("remove rules", err)
		}
		if res.DeletedCount > 0 {
			removed = true
		}
	}
	return removed, nil
}

func (r *RuleRepositoryImpl) RemoveFilteredRules(ctx context.Context, ptype string, fieldIndex int, fieldValues []string) (bool, error) {
	res, err := r.coll.DeleteMany(ctx, fallbackRuleFilter(ptype, fieldIndex, fieldValues))
	if err != nil {
		return false, storageError("remove filtered rules", err)
	}
	return res.DeletedCount > 0, nil
}

// Ping checks that the primary is reachable.
func (r *RuleRepositoryImpl) Ping(ctx context.Context) error {
	if err := r.coll.Database().Client().Ping(ctx, readpref.Primary()); err != nil {
		return storageError("ping", err)
	}
	return nil
}

func toDocuments(rules []domain.Rule) []interface{} {
	docs := make([]interface{}, 0, len(rules))
	for _, rule := range rules {
		docs = append(docs, newRuleDocument(rule))
	}
	return docs
}

func storageError(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s: duplicate rule: %w", domain.ErrStorage, op, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}
