package mongodb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func ifNullClause(field string, value interface{}) bson.D {
	return bson.D{{Key: "$eq", Value: bson.A{
		"$" + field,
		bson.D{{Key: "$ifNull", Value: bson.A{value, "$" + field}}},
	}}}
}

func TestExactRuleFilter(t *testing.T) {
	got := exactRuleFilter("p", []string{"alice", "data1", "read"})
	want := bson.D{
		{Key: "ptype", Value: "p"},
		{Key: "v0", Value: "alice"},
		{Key: "v1", Value: "data1"},
		{Key: "v2", Value: "read"},
		{Key: "v3", Value: ""},
		{Key: "v4", Value: ""},
		{Key: "v5", Value: ""},
	}
	assert.Equal(t, want, got)
}

func TestFallbackRuleFilter(t *testing.T) {
	got := fallbackRuleFilter("g", 1, []string{"data2_admin", "", "domain2", "", ""})
	want := bson.D{
		{Key: "ptype", Value: "g"},
		{Key: "$expr", Value: bson.D{{Key: "$and", Value: bson.A{
			ifNullClause("v1", "data2_admin"),
			ifNullClause("v2", nil),
			ifNullClause("v3", "domain2"),
			ifNullClause("v4", nil),
			ifNullClause("v5", nil),
		}}}},
	}
	assert.Equal(t, want, got)
}

func TestFallbackRuleFilter_OneClausePerPosition(t *testing.T) {
	tests := []struct {
		fieldIndex int
		clauses    int
	}{
		{0, 6},
		{3, 3},
		{5, 1},
	}
	for _, tt := range tests {
		filter := fallbackRuleFilter("p", tt.fieldIndex, []string{"x"})
		expr := filter[1].Value.(bson.D)
		assert.Len(t, expr[0].Value.(bson.A), tt.clauses, "field index %d", tt.fieldIndex)
	}
}

func TestUniqueIndexKeys(t *testing.T) {
	keys := uniqueIndexKeys()
	assert.Len(t, keys, 7)
	assert.Equal(t, "ptype", keys[0].Key)
	assert.Equal(t, "v5", keys[6].Key)
}
