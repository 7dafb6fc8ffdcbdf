package query

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionDecodeScalarShorthand(t *testing.T) {
	tests := []struct {
		name string
		json string
		want any
	}{
		{name: "integer", json: `42`, want: int64(42)},
		{name: "negative integer", json: `-7`, want: int64(-7)},
		{name: "string", json: `"active"`, want: "active"},
		{name: "bool", json: `true`, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Condition
			require.NoError(t, json.Unmarshal([]byte(tt.json), &c))
			assert.Equal(t, OpEqual, c.Operator())
			assert.Equal(t, []any{tt.want}, c.Values())
		})
	}
}

func TestConditionDecodeNumberPrecision(t *testing.T) {
	var c Condition
	require.NoError(t, json.Unmarshal([]byte(`19.99`), &c))

	d, ok := c.Values()[0].(decimal.Decimal)
	require.True(t, ok, "fractional numbers should decode as decimals, got %T", c.Values()[0])
	assert.Equal(t, "19.99", d.String())

	// Integral values outside float53 range keep their exact value.
	require.NoError(t, json.Unmarshal([]byte(`9007199254740993`), &c))
	assert.Equal(t, int64(9007199254740993), c.Values()[0])

	// Exponent notation is fractional territory as far as precision goes.
	require.NoError(t, json.Unmarshal([]byte(`1e3`), &c))
	_, ok = c.Values()[0].(decimal.Decimal)
	assert.True(t, ok, "exponent notation should decode as decimal")
}

func TestConditionDecodeOperatorObjects(t *testing.T) {
	tests := []struct {
		name   string
		json   string
		op     Operator
		values []any
	}{
		{name: "eq", json: `{"eq": "active"}`, op: OpEqual, values: []any{"active"}},
		{name: "ne", json: `{"ne": 0}`, op: OpNotEqual, values: []any{int64(0)}},
		{name: "gt", json: `{"gt": 10}`, op: OpGreaterThan, values: []any{int64(10)}},
		{name: "gte", json: `{"gte": 21}`, op: OpGreaterOrEqual, values: []any{int64(21)}},
		{name: "lt", json: `{"lt": 100}`, op: OpLessThan, values: []any{int64(100)}},
		{name: "lte", json: `{"lte": 99}`, op: OpLessOrEqual, values: []any{int64(99)}},
		{name: "in", json: `{"in": ["a", "b"]}`, op: OpIn, values: []any{"a", "b"}},
		{name: "between", json: `{"between": [1, 10]}`, op: OpBetween, values: []any{int64(1), int64(10)}},
		{name: "like", json: `{"like": "%smith%"}`, op: OpLike, values: []any{"%smith%"}},
		{name: "search", json: `{"search": "cloud"}`, op: OpSearch, values: []any{"cloud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Condition
			require.NoError(t, json.Unmarshal([]byte(tt.json), &c))
			assert.Equal(t, tt.op, c.Operator())
			assert.Equal(t, tt.values, c.Values())
		})
	}
}

func TestConditionDecodeIsNull(t *testing.T) {
	var c Condition
	require.NoError(t, json.Unmarshal([]byte(`{"isNull": true}`), &c))
	assert.Equal(t, OpIsNull, c.Operator())
	assert.Empty(t, c.Values())

	require.NoError(t, json.Unmarshal([]byte(`{"isNull": false}`), &c))
	assert.Equal(t, OpIsNull, c.Operator())
}

func TestConditionDecodeRejections(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantMsg string
	}{
		{name: "bare array suggests in", json: `[1, 2, 3]`, wantMsg: `use the "in" operator`},
		{name: "null suggests isNull", json: `null`, wantMsg: `use the "isNull" operator`},
		{name: "null operand suggests isNull", json: `{"eq": null}`, wantMsg: `use the "isNull" operator`},
		{name: "multiple operators", json: `{"gte": 1, "lte": 10}`, wantMsg: "exactly one operator"},
		{name: "empty object", json: `{}`, wantMsg: "exactly one operator"},
		{name: "between arity", json: `{"between": [1]}`, wantMsg: "exactly two values"},
		{name: "in non-array", json: `{"in": "a"}`, wantMsg: "must be an array"},
		{name: "isNull non-bool", json: `{"isNull": "yes"}`, wantMsg: "must be a bool"},
		{name: "nested object operand", json: `{"eq": {"x": 1}}`, wantMsg: "must be a scalar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Condition
			err := json.Unmarshal([]byte(tt.json), &c)
			require.Error(t, err)
			assert.True(t, IsInvalidArgument(err), "expected invalid argument, got %v", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestConditionDecodeUnknownOperator(t *testing.T) {
	var f Filters
	err := json.Unmarshal([]byte(`{"age": {"regex": ".*"}}`), &f)
	require.Error(t, err)
	assert.True(t, IsUnsupportedOperator(err))
	assert.Contains(t, err.Error(), `"regex"`)
	assert.Contains(t, err.Error(), `"age"`)
}

func TestConditionMarshalRoundTrip(t *testing.T) {
	conditions := []Condition{
		Eq("active"),
		In("a", "b"),
		Between(1, 10),
		Null(),
		NotNull(),
		Like("%x%"),
		Contains("cloud"),
	}

	for _, orig := range conditions {
		data, err := json.Marshal(orig)
		require.NoError(t, err)

		var decoded Condition
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, orig.Operator(), decoded.Operator())
	}
}

func TestConditionGormExpr(t *testing.T) {
	tests := []struct {
		name     string
		cond     Condition
		field    string
		wantExpr string
		wantArgs []any
	}{
		{name: "eq", cond: Eq("active"), field: "status", wantExpr: "status = ?", wantArgs: []any{"active"}},
		{name: "gte", cond: Gte(21), field: "age", wantExpr: "age >= ?", wantArgs: []any{21}},
		{name: "in", cond: In("a", "b"), field: "category", wantExpr: "category IN ?", wantArgs: []any{[]any{"a", "b"}}},
		{name: "empty in", cond: In(), field: "category", wantExpr: "1=0", wantArgs: nil},
		{name: "between", cond: Between(1, 10), field: "price", wantExpr: "price BETWEEN ? AND ?", wantArgs: []any{1, 10}},
		{name: "is null", cond: Null(), field: "deleted_at", wantExpr: "deleted_at IS NULL", wantArgs: nil},
		{name: "not null", cond: NotNull(), field: "deleted_at", wantExpr: "deleted_at IS NOT NULL", wantArgs: nil},
		{name: "like", cond: Like("%x%"), field: "name", wantExpr: "name LIKE ?", wantArgs: []any{"%x%"}},
		{name: "search wraps term", cond: Contains("cloud"), field: "title", wantExpr: "title LIKE ?", wantArgs: []any{"%cloud%"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, args, err := tt.cond.GormExpr(tt.field)
			require.NoError(t, err)
			assert.Equal(t, tt.wantExpr, expr)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestConditionGormExprRejectsBadIdentifier(t *testing.T) {
	_, _, err := Eq(1).GormExpr("age; DROP TABLE users")
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))

	_, _, err = Condition{}.GormExpr("age")
	require.Error(t, err, "zero condition should not render")
}

func TestConditionForLooseOperands(t *testing.T) {
	// Typed slices are accepted for in and between.
	c, err := conditionFor("status", OpIn, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, c.Values())

	c, err = conditionFor("price", OpBetween, [2]int{1, 10})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 10}, c.Values())

	_, err = conditionFor("price", OpBetween, []int{1, 2, 3})
	require.Error(t, err)

	_, err = conditionFor("age", OpEqual, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"isNull"`)

	_, err = conditionFor("name", OpLike, 42)
	require.Error(t, err)

	_, err = conditionFor("age", Operator("regex"), 1)
	require.Error(t, err)
	assert.True(t, IsUnsupportedOperator(err))
}
