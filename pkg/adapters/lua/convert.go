package lua

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	lua "github.com/yuin/gopher-lua"
)

// toLua converts a Go value into a Lua value. Slices become array tables,
// maps with string keys become hash tables, anything else unknown is
// passed as its string form.
func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return x
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case []byte:
		return lua.LString(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return lua.LNumber(f)
		}
		return lua.LString(x)
	case fmt.Stringer:
		return lua.LString(x.String())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.Slice, reflect.Array:
		tbl := L.NewTable()
		for i := 0; i < rv.Len(); i++ {
			tbl.RawSetInt(i+1, toLua(L, rv.Index(i).Interface()))
		}
		return tbl
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		tbl := L.NewTable()
		iter := rv.MapRange()
		for iter.Next() {
			tbl.RawSetString(iter.Key().String(), toLua(L, iter.Value().Interface()))
		}
		return tbl
	case reflect.Pointer:
		if rv.IsNil() {
			return lua.LNil
		}
		return toLua(L, rv.Elem().Interface())
	}
	return lua.LString(fmt.Sprint(v))
}

// fromLua converts a Lua value back into Go. Integral numbers come back as
// int, array tables as []any and other tables as map[string]any.
func fromLua(v lua.LValue) any {
	switch x := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(x)
	case lua.LString:
		return string(x)
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int(f)
		}
		return f
	case *lua.LTable:
		return fromTable(x)
	}
	return v.String()
}

func fromTable(tbl *lua.LTable) any {
	if n := tbl.MaxN(); n > 0 {
		out := make([]any, n)
		for i := 1; i <= n; i++ {
			out[i-1] = fromLua(tbl.RawGetInt(i))
		}
		return out
	}

	out := make(map[string]any)
	tbl.ForEach(func(k, v lua.LValue) {
		out[k.String()] = fromLua(v)
	})
	return out
}
