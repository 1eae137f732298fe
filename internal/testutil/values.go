package testutil

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// toFloat converts numeric BSON values.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}

func isInteger(v any) bool {
	switch v.(type) {
	case int, int32, int64:
		return true
	}
	return false
}

// typeRank orders values of different types the way the store does.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 1
	case int, int32, int64, float32, float64:
		return 2
	case string:
		return 3
	case bson.D:
		return 4
	case bson.A:
		return 5
	case bool:
		return 8
	case primitive.DateTime, time.Time:
		return 9
	case primitive.Regex:
		return 11
	default:
		return 12
	}
}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case primitive.DateTime:
		return x.Time().UTC(), true
	case time.Time:
		return x.UTC(), true
	}
	return time.Time{}, false
}

// compareValues is a total order over BSON values.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch ra {
	case 1:
		return 0
	case 2:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 3:
		return strings.Compare(a.(string), b.(string))
	case 4:
		da, db := a.(bson.D), b.(bson.D)
		for i := 0; i < len(da) && i < len(db); i++ {
			if c := strings.Compare(da[i].Key, db[i].Key); c != 0 {
				return c
			}
			if c := compareValues(da[i].Value, db[i].Value); c != 0 {
				return c
			}
		}
		return cmpInt(len(da), len(db))
	case 5:
		aa, ab := a.(bson.A), b.(bson.A)
		for i := 0; i < len(aa) && i < len(ab); i++ {
			if c := compareValues(aa[i], ab[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(aa), len(ab))
	case 8:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	case 9:
		ta, _ := toTime(a)
		tb, _ := toTime(b)
		return ta.Compare(tb)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func equalValues(a, b any) bool {
	return typeRank(a) == typeRank(b) && compareValues(a, b) == 0
}

// keyString is a canonical string for grouping and set membership.
func keyString(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case int, int32, int64, float32, float64:
		f, _ := toFloat(x)
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	case string:
		return "s:" + strconv.Quote(x)
	case bool:
		return "b:" + strconv.FormatBool(x)
	case bson.D:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = strconv.Quote(e.Key) + ":" + keyString(e.Value)
		}
		return "{" + strings.Join(parts, ",") + "}"
	case bson.A:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = keyString(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	if t, ok := toTime(v); ok {
		return "t:" + t.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

// numberResult keeps integer arithmetic integral.
func numberResult(f float64, integral bool) any {
	if integral && f == math.Trunc(f) && math.Abs(f) < 1<<62 {
		return int64(f)
	}
	return f
}

// cloneDoc deep-copies documents and arrays.
func cloneDoc(d bson.D) bson.D {
	if d == nil {
		return nil
	}
	out := make(bson.D, len(d))
	for i, e := range d {
		out[i] = bson.E{Key: e.Key, Value: cloneValue(e.Value)}
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case bson.D:
		return cloneDoc(x)
	case bson.A:
		out := make(bson.A, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

// normalize converts decoded values to the shapes the evaluator handles.
func normalize(v any) any {
	switch x := v.(type) {
	case bson.D:
		out := make(bson.D, len(x))
		for i, e := range x {
			out[i] = bson.E{Key: e.Key, Value: normalize(e.Value)}
		}
		return out
	case bson.A:
		out := make(bson.A, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case []any:
		return normalize(bson.A(x))
	case bson.M:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(bson.D, len(keys))
		for i, k := range keys {
			out[i] = bson.E{Key: k, Value: normalize(x[k])}
		}
		return out
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case time.Time:
		return primitive.NewDateTimeFromTime(x)
	}
	return v
}

func lookup(d bson.D, key string) (any, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}
