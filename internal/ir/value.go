package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Value is a sealed interface representing a typed literal.
// Only Null, Bool, Int, Float, String, Time and Array implement it.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Null represents SQL NULL.
type Null struct{}

func (Null) irValue() {}

// Bool represents a boolean literal.
type Bool bool

func (Bool) irValue() {}

// Int represents an integer literal. Always int64.
type Int int64

func (Int) irValue() {}

// Float represents an approximate numeric literal.
type Float float64

func (Float) irValue() {}

// String represents a character literal.
type String string

func (String) irValue() {}

// Time represents a date, time or timestamp literal.
type Time time.Time

func (Time) irValue() {}

// Array represents a list of literals, used for IN lists and bound arrays.
type Array []Value

func (Array) irValue() {}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// IsNumeric reports whether v is an Int or a Float.
func IsNumeric(v Value) bool {
	switch v.(type) {
	case Int, Float:
		return true
	}
	return false
}

// Equal reports whether two values are the same literal.
// Int(1) and Float(1) are not equal: the literal type is part of its identity.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case nil, Null:
		return IsNull(b)
	case Array:
		y, ok := b.(Array)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Time:
		y, ok := b.(Time)
		return ok && time.Time(x).Equal(time.Time(y))
	default:
		return a == b
	}
}

// Format renders v as a SQL literal, used in diagnostics.
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "NULL"
	case Bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case String:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'"
	case Time:
		return "{ts '" + time.Time(val).UTC().Format("2006-01-02 15:04:05.000") + "'}"
	case Array:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = Format(elem)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ToBSON converts a literal to the Go value the BSON encoder expects.
func ToBSON(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case Time:
		return primitive.NewDateTimeFromTime(time.Time(val))
	case Array:
		arr := make(bson.A, len(val))
		for i, elem := range val {
			arr[i] = ToBSON(elem)
		}
		return arr
	default:
		return nil
	}
}

// FromBSON converts a decoded BSON value into a literal.
// Documents have no literal form and are rejected; callers that need
// documents keep them as bson.D.
func FromBSON(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case int:
		return Int(val), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("non-finite float %v has no literal form", val)
		}
		return Float(val), nil
	case string:
		return String(val), nil
	case primitive.DateTime:
		return Time(val.Time().UTC()), nil
	case time.Time:
		return Time(val.UTC()), nil
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(val.String(), 64)
		if err != nil {
			return nil, fmt.Errorf("decimal %s: %w", val.String(), err)
		}
		return Float(f), nil
	case bson.A:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := FromBSON(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case []any:
		return FromBSON(bson.A(val))
	default:
		return nil, fmt.Errorf("unsupported BSON value type: %T", v)
	}
}

// FromGo converts a plain Go value (as decoded from YAML or supplied as a
// bound argument) into a literal.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case Value:
		return val, nil
	case float32:
		return Float(val), nil
	case uint:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case []Value:
		return Array(val), nil
	default:
		return FromBSON(v)
	}
}
