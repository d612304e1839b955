package docstore

import (
	"fmt"
	"reflect"
	"strconv"
)

// Matches reports whether fields satisfies every filter.
func Matches(fields Fields, filters []Filter) bool {
	for _, f := range filters {
		v, ok := fields[f.Field]
		if !ok {
			if f.Op == OpNe {
				continue
			}
			return false
		}
		if !compare(v, f.Op, f.Value) {
			return false
		}
	}
	return true
}

func compare(have any, op Op, want any) bool {
	switch a := normalize(have).(type) {
	case string:
		b, ok := normalize(want).(string)
		if !ok {
			return op == OpNe
		}
		switch op {
		case OpEq:
			return a == b
		case OpNe:
			return a != b
		case OpLt:
			return a < b
		case OpLte:
			return a <= b
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		}
	case float64:
		b, ok := normalize(want).(float64)
		if !ok {
			return op == OpNe
		}
		switch op {
		case OpEq:
			return a == b
		case OpNe:
			return a != b
		case OpLt:
			return a < b
		case OpLte:
			return a <= b
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		}
	case bool:
		b, ok := normalize(want).(bool)
		if !ok {
			return op == OpNe
		}
		switch op {
		case OpEq:
			return a == b
		case OpNe:
			return a != b
		}
	case nil:
		if want == nil {
			return op == OpEq
		}
		return op == OpNe
	}
	return false
}

// normalize folds numeric kinds into float64 and named string/bool types into their base type,
// so decoded JSON and literal filter values compare.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}

func stringify(v any) string {
	switch n := normalize(v).(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	default:
		return fmt.Sprint(n)
	}
}

// asInt64 reads a numeric field value, treating absent or non-numeric as zero.
func asInt64(v any) int64 {
	if f, ok := normalize(v).(float64); ok {
		return int64(f)
	}
	return 0
}
