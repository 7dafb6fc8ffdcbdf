package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
)

// Operator identifies a filter comparison. The constant values double as the
// wire keys accepted in request filter objects, so the set of operators a
// client can send and the set the builder understands are the same thing.
type Operator string

const (
	OpEqual          Operator = "eq"
	OpNotEqual       Operator = "ne"
	OpGreaterThan    Operator = "gt"
	OpGreaterOrEqual Operator = "gte"
	OpLessThan       Operator = "lt"
	OpLessOrEqual    Operator = "lte"
	OpIn             Operator = "in"
	OpBetween        Operator = "between"
	OpLike           Operator = "like"
	OpSearch         Operator = "search"
	OpIsNull         Operator = "isNull"
)

// comparisonSQL maps scalar comparison operators to their SQL token.
var comparisonSQL = map[Operator]string{
	OpEqual:          "=",
	OpNotEqual:       "!=",
	OpGreaterThan:    ">",
	OpGreaterOrEqual: ">=",
	OpLessThan:       "<",
	OpLessOrEqual:    "<=",
}

// Direction orders a sort term. Unknown directions are rejected during
// decoding rather than silently defaulted.
type Direction string

const (
	Ascending  Direction = "ASC"
	Descending Direction = "DESC"
)

// ParseDirection normalizes a wire direction value. The empty string maps to
// Ascending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "", "ASC":
		return Ascending, nil
	case "DESC":
		return Descending, nil
	}
	return "", invalidArgf("direction", "must be %q or %q, got %q", Ascending, Descending, s)
}

// UnmarshalJSON decodes and validates a direction.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return invalidArgf("direction", "must be a string")
	}
	dir, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = dir
	return nil
}

// Condition is one filter predicate without its column. Construct conditions
// with Eq, In, Between and friends, or decode them from a JSON filter value.
// The zero Condition is invalid and fails the builder chain when applied.
type Condition struct {
	op     Operator
	value  any   // operand for comparisons, like and search
	values []any // operands for in
	lo, hi any   // bounds for between
	null   bool  // operand for isNull
}

// Eq matches rows where the column equals value.
func Eq(value any) Condition { return Condition{op: OpEqual, value: value} }

// Ne matches rows where the column does not equal value.
func Ne(value any) Condition { return Condition{op: OpNotEqual, value: value} }

// Gt matches rows where the column is greater than value.
func Gt(value any) Condition { return Condition{op: OpGreaterThan, value: value} }

// Gte matches rows where the column is greater than or equal to value.
func Gte(value any) Condition { return Condition{op: OpGreaterOrEqual, value: value} }

// Lt matches rows where the column is less than value.
func Lt(value any) Condition { return Condition{op: OpLessThan, value: value} }

// Lte matches rows where the column is less than or equal to value.
func Lte(value any) Condition { return Condition{op: OpLessOrEqual, value: value} }

// In matches rows where the column equals any of the given values. With no
// values the condition compiles to an always-false predicate.
func In(values ...any) Condition { return Condition{op: OpIn, values: values} }

// Between matches rows where the column lies in the inclusive range lo..hi.
func Between(lo, hi any) Condition { return Condition{op: OpBetween, lo: lo, hi: hi} }

// Like matches rows against a caller-supplied LIKE pattern. The pattern is
// bound as a parameter and used verbatim, wildcards included.
func Like(pattern string) Condition { return Condition{op: OpLike, value: pattern} }

// Contains matches rows where the column contains term, by wrapping it in %
// wildcards. This is the "search" operator of the wire format.
func Contains(term string) Condition { return Condition{op: OpSearch, value: term} }

// Null matches rows where the column is NULL.
func Null() Condition { return Condition{op: OpIsNull, null: true} }

// NotNull matches rows where the column is not NULL.
func NotNull() Condition { return Condition{op: OpIsNull, null: false} }

// Operator returns the condition's operator key.
func (c Condition) Operator() Operator { return c.op }

// Values returns the condition's operands in SQL order.
func (c Condition) Values() []any {
	switch c.op {
	case OpIn:
		return append([]any{}, c.values...)
	case OpBetween:
		return []any{c.lo, c.hi}
	case OpIsNull:
		return nil
	case "":
		return nil
	default:
		return []any{c.value}
	}
}

// conditionFor builds a Condition from a loose operator and operand, as used
// by Builder.Where. Slice operands for in may be any slice type; between
// takes a two-element slice.
func conditionFor(field string, op Operator, value any) (Condition, error) {
	switch op {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		if value == nil {
			return Condition{}, invalidArgf(field, "operand must not be nil, use the %q operator", OpIsNull)
		}
		return Condition{op: op, value: value}, nil
	case OpLike:
		pattern, ok := value.(string)
		if !ok {
			return Condition{}, invalidArgf(field, "%q operand must be a string", op)
		}
		return Like(pattern), nil
	case OpSearch:
		term, ok := value.(string)
		if !ok {
			return Condition{}, invalidArgf(field, "%q operand must be a string", op)
		}
		return Contains(term), nil
	case OpIn:
		values, ok := anySlice(value)
		if !ok {
			return Condition{}, invalidArgf(field, "%q operand must be a slice", op)
		}
		return In(values...), nil
	case OpBetween:
		bounds, ok := anySlice(value)
		if !ok || len(bounds) != 2 {
			return Condition{}, invalidArgf(field, "%q operand must be a two-element slice", op)
		}
		return Between(bounds[0], bounds[1]), nil
	case OpIsNull:
		isNull, ok := value.(bool)
		if !ok {
			return Condition{}, invalidArgf(field, "%q operand must be a bool", op)
		}
		if isNull {
			return Null(), nil
		}
		return NotNull(), nil
	}
	return Condition{}, &UnsupportedOperatorError{Field: field, Operator: string(op)}
}

// anySlice converts slice and array values of any element type to []any.
func anySlice(value any) ([]any, bool) {
	if values, ok := value.([]any); ok {
		return values, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// UnmarshalJSON decodes a single filter value: a bare scalar meaning
// equality, or an object with exactly one operator key.
func (c *Condition) UnmarshalJSON(data []byte) error {
	cond, err := decodeCondition("", data)
	if err != nil {
		return err
	}
	*c = cond
	return nil
}

// MarshalJSON renders the condition back into its wire shape.
func (c Condition) MarshalJSON() ([]byte, error) {
	switch c.op {
	case OpIn:
		return json.Marshal(map[string]any{string(c.op): c.values})
	case OpBetween:
		return json.Marshal(map[string]any{string(c.op): []any{c.lo, c.hi}})
	case OpIsNull:
		return json.Marshal(map[string]any{string(c.op): c.null})
	case "":
		return nil, invalidArgf("", "cannot encode an empty condition")
	default:
		return json.Marshal(map[string]any{string(c.op): c.value})
	}
}

// decodeCondition decodes one filter value for the named field. Document
// order of the enclosing filter block is handled by the caller; here only
// the single value is parsed.
func decodeCondition(field string, raw []byte) (Condition, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Condition{}, invalidArgf(field, "empty filter value")
	}
	switch trimmed[0] {
	case '{':
		return decodeConditionObject(field, trimmed)
	case '[':
		return Condition{}, invalidArgf(field, "bare arrays are not filter values, use the %q operator", OpIn)
	case 'n':
		return Condition{}, invalidArgf(field, "null is not a filter value, use the %q operator", OpIsNull)
	default:
		value, err := decodeOperand(field, trimmed)
		if err != nil {
			return Condition{}, err
		}
		return Eq(value), nil
	}
}

// decodeConditionObject decodes the {"op": operand} form.
func decodeConditionObject(field string, raw []byte) (Condition, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Condition{}, invalidArgf(field, "malformed filter object: %v", err)
	}
	if len(obj) != 1 {
		return Condition{}, invalidArgf(field, "filter object must hold exactly one operator, got %d", len(obj))
	}
	var key string
	var operand json.RawMessage
	for k, v := range obj {
		key, operand = k, v
	}

	switch op := Operator(key); op {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual, OpLike, OpSearch:
		value, err := decodeOperand(field, operand)
		if err != nil {
			return Condition{}, err
		}
		return conditionFor(field, op, value)
	case OpIn:
		values, err := decodeOperandList(field, op, operand)
		if err != nil {
			return Condition{}, err
		}
		return In(values...), nil
	case OpBetween:
		bounds, err := decodeOperandList(field, op, operand)
		if err != nil {
			return Condition{}, err
		}
		if len(bounds) != 2 {
			return Condition{}, invalidArgf(field, "%q operand must hold exactly two values, got %d", op, len(bounds))
		}
		return Between(bounds[0], bounds[1]), nil
	case OpIsNull:
		var isNull bool
		if err := json.Unmarshal(operand, &isNull); err != nil {
			return Condition{}, invalidArgf(field, "%q operand must be a bool", op)
		}
		if isNull {
			return Null(), nil
		}
		return NotNull(), nil
	}
	return Condition{}, &UnsupportedOperatorError{Field: field, Operator: key}
}

// decodeOperand decodes a scalar operand, preserving numeric precision.
func decodeOperand(field string, raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, invalidArgf(field, "malformed operand: %v", err)
	}
	switch v := value.(type) {
	case nil:
		return nil, invalidArgf(field, "operand must not be null, use the %q operator", OpIsNull)
	case json.Number:
		return normalizeNumber(field, v)
	case string:
		return v, nil
	case bool:
		return v, nil
	}
	return nil, invalidArgf(field, "operand must be a scalar")
}

// decodeOperandList decodes a JSON array of scalar operands.
func decodeOperandList(field string, op Operator, raw []byte) ([]any, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, invalidArgf(field, "%q operand must be an array", op)
	}
	values := make([]any, 0, len(items))
	for _, item := range items {
		value, err := decodeOperand(field, item)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

// normalizeNumber converts a JSON number to int64 when it is integral and to
// decimal.Decimal otherwise, so fractional values keep their precision all
// the way into the driver.
func normalizeNumber(field string, n json.Number) (any, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, invalidArgf(field, "malformed number %q", s)
	}
	return d, nil
}

// coerce rebuilds the condition with every operand passed through fn.
// Operand-free and string-typed operators pass through untouched.
func (c Condition) coerce(field string, fn func(string, any) (any, error)) (Condition, error) {
	switch c.op {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		value, err := fn(field, c.value)
		if err != nil {
			return Condition{}, err
		}
		return Condition{op: c.op, value: value}, nil
	case OpIn:
		values := make([]any, len(c.values))
		for i, v := range c.values {
			value, err := fn(field, v)
			if err != nil {
				return Condition{}, err
			}
			values[i] = value
		}
		return Condition{op: OpIn, values: values}, nil
	case OpBetween:
		lo, err := fn(field, c.lo)
		if err != nil {
			return Condition{}, err
		}
		hi, err := fn(field, c.hi)
		if err != nil {
			return Condition{}, err
		}
		return Condition{op: OpBetween, lo: lo, hi: hi}, nil
	}
	return c, nil
}

// GormExpr renders the condition as a GORM-style fragment with ? style
// placeholders plus its arguments, for use with gorm.DB.Where. The field
// must be a plain identifier; it is interpolated into the fragment.
func (c Condition) GormExpr(field string) (string, []any, error) {
	if !ValidIdentifier(field) {
		return "", nil, invalidArgf(field, "not a valid column identifier")
	}
	switch c.op {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		return fmt.Sprintf("%s %s ?", field, comparisonSQL[c.op]), []any{c.value}, nil
	case OpLike:
		return field + " LIKE ?", []any{c.value}, nil
	case OpSearch:
		term, _ := c.value.(string)
		return field + " LIKE ?", []any{"%" + term + "%"}, nil
	case OpIn:
		if len(c.values) == 0 {
			return "1=0", nil, nil
		}
		return field + " IN ?", []any{c.values}, nil
	case OpBetween:
		return field + " BETWEEN ? AND ?", []any{c.lo, c.hi}, nil
	case OpIsNull:
		if c.null {
			return field + " IS NULL", nil, nil
		}
		return field + " IS NOT NULL", nil, nil
	case "":
		return "", nil, invalidArgf(field, "empty filter condition")
	}
	return "", nil, &UnsupportedOperatorError{Field: field, Operator: string(c.op)}
}
