package mongodb

import (
	"strconv"

	"go.mongodb.org/mongo-driver/bson"

	"casbin-mongodb-adapter/internal/core/domain"
)

func fieldName(i int) string {
	return "v" + strconv.Itoa(i)
}

// exactRuleFilter matches the documents whose ptype and six fields equal
// the given values. Missing values match empty fields.
func exactRuleFilter(ptype string, values []string) bson.D {
	filter := bson.D{{Key: "ptype", Value: ptype}}
	for i := 0; i < domain.MaxFields; i++ {
		var v string
		if i < len(values) {
			v = values[i]
		}
		filter = append(filter, bson.E{Key: fieldName(i), Value: v})
	}
	return filter
}

// fallbackRuleFilter matches the documents of ptype whose fields from
// fieldIndex on equal the corresponding value, or any value where the
// supplied one is empty:
//
//	{ptype: pt, $expr: {$and: [{$eq: ["$vN", {$ifNull: [value, "$vN"]}]}, ...]}}
func fallbackRuleFilter(ptype string, fieldIndex int, values []string) bson.D {
	clauses := bson.A{}
	for i := fieldIndex; i < domain.MaxFields; i++ {
		var value interface{}
		if j := i - fieldIndex; j < len(values) && values[j] != "" {
			value = values[j]
		}
		field := "$" + fieldName(i)
		clauses = append(clauses, bson.D{{Key: "$eq", Value: bson.A{
			field,
			bson.D{{Key: "$ifNull", Value: bson.A{value, field}}},
		}}})
	}
	return bson.D{
		{Key: "ptype", Value: ptype},
		{Key: "$expr", Value: bson.D{{Key: "$and", Value: clauses}}},
	}
}

// uniqueIndexKeys is the key of the index that keeps rules unique.
func uniqueIndexKeys() bson.D {
	keys := bson.D{{Key: "ptype", Value: 1}}
	for i := 0; i < domain.MaxFields; i++ {
		keys = append(keys, bson.E{Key: fieldName(i), Value: 1})
	}
	return keys
}
