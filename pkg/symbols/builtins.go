package symbols

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// RegisterBuiltins installs the standard transform set into t.
//
// Value transforms: not, toBool, nullToBool, toString, trim, toUpper, toLower, trueWhenNot0.
// Aggregates (taking []any): trueWhenAllTrue, trueWhenAnyTrue, join, first.
func RegisterBuiltins(t *Table) {
	builtins := map[string]func(any) any{
		"not":        func(v any) any { return !Truthy(v) },
		"toBool":     func(v any) any { return Truthy(v) },
		"nullToBool": func(v any) any { return v != nil },
		"toString": func(v any) any {
			if v == nil {
				return ""
			}
			return fmt.Sprint(v)
		},
		"trim":    mapString(strings.TrimSpace),
		"toUpper": mapString(strings.ToUpper),
		"toLower": mapString(strings.ToLower),
		"trueWhenNot0": func(v any) any {
			if f, ok := toFloat(v); ok {
				return f != 0
			}
			return Truthy(v)
		},
		"trueWhenAllTrue": func(v any) any {
			for _, item := range asSlice(v) {
				if !Truthy(item) {
					return false
				}
			}
			return true
		},
		"trueWhenAnyTrue": func(v any) any {
			for _, item := range asSlice(v) {
				if Truthy(item) {
					return true
				}
			}
			return false
		},
		"join": func(v any) any {
			items := asSlice(v)
			parts := make([]string, 0, len(items))
			for _, item := range items {
				if item == nil {
					continue
				}
				parts = append(parts, fmt.Sprint(item))
			}
			return strings.Join(parts, " ")
		},
		"first": func(v any) any {
			for _, item := range asSlice(v) {
				if item != nil {
					return item
				}
			}
			return nil
		},
	}

	for name, fn := range builtins {
		// Builtin names are valid by construction.
		_ = t.RegisterFunc(name, fn)
	}
}

// Truthy reports the boolean reading of v: nil, false, zero numbers, empty
// strings and empty collections are false; everything else is true.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

func mapString(fn func(string) string) func(any) any {
	return func(v any) any {
		if s, ok := v.(string); ok {
			return fn(s)
		}
		return v
	}
}

func toFloat(v any) (float64, bool) {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func asSlice(v any) []any {
	if items, ok := v.([]any); ok {
		return items
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		if v == nil {
			return nil
		}
		return []any{v}
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items
}
