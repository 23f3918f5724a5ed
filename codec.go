package luastack

import (
	"context"
	"fmt"
	"reflect"
	"strconv"

	"github.com/go-viper/mapstructure/v2"
	lua "github.com/yuin/gopher-lua"
)

// maxCodecDepth bounds the nesting of converted value trees.
const maxCodecDepth = 100

// PushAny converts a Go value tree into interpreter values and pushes it.
// Maps and structs become tables with string keys, slices and arrays become
// sequences, and a GoFunction becomes a host function. The tree is built
// before anything is pushed, so on failure the stack is unchanged.
func (s *Stack) PushAny(v any) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	lv, err := s.toLValue(v, 0)
	if err != nil {
		return err
	}
	return s.push(lv)
}

func (s *Stack) toLValue(v any, depth int) (lua.LValue, error) {
	if depth > maxCodecDepth {
		return nil, newErrorf(ErrorTypeTypeMismatch, "value nests deeper than %d levels", maxCodecDepth)
	}
	switch v := v.(type) {
	case nil:
		return lua.LNil, nil
	case Value:
		return s.rt.fromValue(v)
	case lua.LValue:
		return v, nil
	case GoFunction:
		return s.L.NewFunction(s.rt.wrap(v)), nil
	case func(context.Context, *Stack) (int, error):
		return s.L.NewFunction(s.rt.wrap(v)), nil
	case bool:
		return lua.LBool(v), nil
	case string:
		return lua.LString(v), nil
	case []byte:
		return lua.LString(v), nil
	case int:
		return lua.LNumber(v), nil
	case int8:
		return lua.LNumber(v), nil
	case int16:
		return lua.LNumber(v), nil
	case int32:
		return lua.LNumber(v), nil
	case int64:
		return lua.LNumber(v), nil
	case uint:
		return lua.LNumber(v), nil
	case uint8:
		return lua.LNumber(v), nil
	case uint16:
		return lua.LNumber(v), nil
	case uint32:
		return lua.LNumber(v), nil
	case uint64:
		return lua.LNumber(v), nil
	case float32:
		return lua.LNumber(v), nil
	case float64:
		return lua.LNumber(v), nil
	case map[string]any:
		tbl := s.L.CreateTable(0, len(v))
		for key, item := range v {
			lv, err := s.toLValue(item, depth+1)
			if err != nil {
				return nil, err
			}
			tbl.RawSetString(key, lv)
		}
		return tbl, nil
	case []any:
		tbl := s.L.CreateTable(len(v), 0)
		for i, item := range v {
			lv, err := s.toLValue(item, depth+1)
			if err != nil {
				return nil, err
			}
			tbl.RawSetInt(i+1, lv)
		}
		return tbl, nil
	}
	return s.reflectLValue(reflect.ValueOf(v), depth)
}

func (s *Stack) reflectLValue(rv reflect.Value, depth int) (lua.LValue, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return lua.LNil, nil
		}
		return s.toLValue(rv.Elem().Interface(), depth+1)
	case reflect.Slice, reflect.Array:
		tbl := s.L.CreateTable(rv.Len(), 0)
		for i := 0; i < rv.Len(); i++ {
			lv, err := s.toLValue(rv.Index(i).Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			tbl.RawSetInt(i+1, lv)
		}
		return tbl, nil
	case reflect.Map:
		tbl := s.L.CreateTable(0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key, err := s.toLValue(iter.Key().Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			if key == lua.LNil {
				return nil, NewError(ErrorTypeTypeMismatch, "table keys cannot be nil")
			}
			lv, err := s.toLValue(iter.Value().Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			tbl.RawSet(key, lv)
		}
		return tbl, nil
	case reflect.Struct:
		var fields map[string]any
		if err := mapstructure.Decode(rv.Interface(), &fields); err != nil {
			return nil, newErrorf(ErrorTypeTypeMismatch, "cannot convert %s: %v", rv.Type(), err)
		}
		return s.toLValue(fields, depth+1)
	case reflect.String:
		return lua.LString(rv.String()), nil
	case reflect.Bool:
		return lua.LBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float()), nil
	}
	return nil, newErrorf(ErrorTypeTypeMismatch, "unsupported Go type %s", rv.Type())
}

// Export copies the value at idx into plain Go values: nil, bool, int64,
// float64, string, []any for sequences and map[string]any for other tables.
// Functions, userdata and threads cannot be exported.
func (s *Stack) Export(idx int) (any, error) {
	if err := s.rt.checkOpen(); err != nil {
		return nil, err
	}
	abs, err := s.absIndex(idx)
	if err != nil {
		return nil, err
	}
	return exportLValue(s.L.Get(abs), 0, map[*lua.LTable]bool{})
}

func exportLValue(lv lua.LValue, depth int, visiting map[*lua.LTable]bool) (any, error) {
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LNumber:
		if isExactInteger(float64(v)) {
			return int64(v), nil
		}
		return float64(v), nil
	case lua.LString:
		return string(v), nil
	case *lua.LTable:
		if depth > maxCodecDepth {
			return nil, newErrorf(ErrorTypeTypeMismatch, "table nests deeper than %d levels", maxCodecDepth)
		}
		if visiting[v] {
			return nil, NewError(ErrorTypeTypeMismatch, "cannot export a cyclic table")
		}
		visiting[v] = true
		defer delete(visiting, v)
		return exportTable(v, depth, visiting)
	}
	return nil, newErrorf(ErrorTypeTypeMismatch, "cannot export %s value", kindOf(lv))
}

func exportTable(tbl *lua.LTable, depth int, visiting map[*lua.LTable]bool) (any, error) {
	count := 0
	for k, _ := tbl.Next(lua.LNil); k != lua.LNil; k, _ = tbl.Next(k) {
		count++
	}
	if n := tbl.Len(); n > 0 && n == count {
		items := make([]any, n)
		for i := 1; i <= n; i++ {
			item, err := exportLValue(tbl.RawGetInt(i), depth+1, visiting)
			if err != nil {
				return nil, err
			}
			items[i-1] = item
		}
		return items, nil
	}
	fields := make(map[string]any, count)
	for k, v := tbl.Next(lua.LNil); k != lua.LNil; k, v = tbl.Next(k) {
		key, err := exportKey(k)
		if err != nil {
			return nil, err
		}
		item, err := exportLValue(v, depth+1, visiting)
		if err != nil {
			return nil, err
		}
		fields[key] = item
	}
	return fields, nil
}

func exportKey(k lua.LValue) (string, error) {
	switch k := k.(type) {
	case lua.LString:
		return string(k), nil
	case lua.LNumber:
		if isExactInteger(float64(k)) {
			return strconv.FormatInt(int64(k), 10), nil
		}
		return k.String(), nil
	case lua.LBool:
		return strconv.FormatBool(bool(k)), nil
	}
	return "", newErrorf(ErrorTypeTypeMismatch, "cannot export table key of kind %s", kindOf(k))
}

// DecodeTable decodes the table at idx into out, which must be a pointer,
// using mapstructure tags on struct fields.
func (s *Stack) DecodeTable(idx int, out any) error {
	kind, err := s.TypeOf(idx)
	if err != nil {
		return err
	}
	if kind != KindTable {
		return newErrorf(ErrorTypeTypeMismatch, "expected table, got %s", kind)
	}
	data, err := s.Export(idx)
	if err != nil {
		return err
	}
	return decodeInto(data, out)
}

func decodeInto(data any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: false,
		ErrorUnused:      false,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return &Error{Type: ErrorTypeTypeMismatch, Cause: err.Error(), Wrapped: err}
	}
	return nil
}
