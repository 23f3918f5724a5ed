package luastack

import (
	"github.com/shamaton/msgpack/v2"
	lua "github.com/yuin/gopher-lua"
)

// wireValue is the msgpack form of a copied value. Tables keep their exact
// key types, so the copy is structurally identical to the source.
type wireValue struct {
	Kind  Kind       `msgpack:"k"`
	Bool  bool       `msgpack:"b"`
	Num   float64    `msgpack:"n"`
	Str   []byte     `msgpack:"s"`
	Pairs []wirePair `msgpack:"p"`
}

type wirePair struct {
	Key   wireValue `msgpack:"k"`
	Value wireValue `msgpack:"v"`
}

// MarshalSlot encodes the value at idx, including nested tables, as msgpack.
// Functions, userdata, threads and cyclic tables cannot be encoded.
func (s *Stack) MarshalSlot(idx int) ([]byte, error) {
	if err := s.rt.checkOpen(); err != nil {
		return nil, err
	}
	abs, err := s.absIndex(idx)
	if err != nil {
		return nil, err
	}
	w, err := toWire(s.L.Get(abs), 0, map[*lua.LTable]bool{})
	if err != nil {
		return nil, err
	}
	data, err := msgpack.Marshal(w)
	if err != nil {
		return nil, &Error{Type: ErrorTypeTypeMismatch, Cause: err.Error(), Wrapped: err}
	}
	return data, nil
}

// PushMarshaled decodes a value produced by MarshalSlot and pushes it.
func (s *Stack) PushMarshaled(data []byte) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	var w wireValue
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return &Error{Type: ErrorTypeTypeMismatch, Cause: err.Error(), Wrapped: err}
	}
	lv, err := s.fromWire(w, 0)
	if err != nil {
		return err
	}
	return s.push(lv)
}

// Transfer copies the value at idx of src onto dst. The stacks may belong to
// different runtimes.
func Transfer(src *Stack, idx int, dst *Stack) error {
	data, err := src.MarshalSlot(idx)
	if err != nil {
		return err
	}
	return dst.PushMarshaled(data)
}

func toWire(lv lua.LValue, depth int, visiting map[*lua.LTable]bool) (wireValue, error) {
	kind := kindOf(lv)
	w := wireValue{Kind: kind}
	switch v := lv.(type) {
	case *lua.LNilType:
	case lua.LBool:
		w.Bool = bool(v)
	case lua.LNumber:
		w.Num = float64(v)
	case lua.LString:
		w.Str = []byte(v)
	case *lua.LTable:
		if depth > maxCodecDepth {
			return w, newErrorf(ErrorTypeTypeMismatch, "table nests deeper than %d levels", maxCodecDepth)
		}
		if visiting[v] {
			return w, NewError(ErrorTypeTypeMismatch, "cannot encode a cyclic table")
		}
		visiting[v] = true
		defer delete(visiting, v)
		for k, item := v.Next(lua.LNil); k != lua.LNil; k, item = v.Next(k) {
			key, err := toWire(k, depth+1, visiting)
			if err != nil {
				return w, err
			}
			value, err := toWire(item, depth+1, visiting)
			if err != nil {
				return w, err
			}
			w.Pairs = append(w.Pairs, wirePair{Key: key, Value: value})
		}
	default:
		return w, newErrorf(ErrorTypeTypeMismatch, "cannot encode %s value", kind)
	}
	return w, nil
}

func (s *Stack) fromWire(w wireValue, depth int) (lua.LValue, error) {
	switch w.Kind {
	case KindNil:
		return lua.LNil, nil
	case KindBoolean:
		return lua.LBool(w.Bool), nil
	case KindInteger, KindNumber:
		return lua.LNumber(w.Num), nil
	case KindString:
		return lua.LString(w.Str), nil
	case KindTable:
		if depth > maxCodecDepth {
			return nil, newErrorf(ErrorTypeTypeMismatch, "table nests deeper than %d levels", maxCodecDepth)
		}
		tbl := s.L.CreateTable(0, len(w.Pairs))
		for _, pair := range w.Pairs {
			key, err := s.fromWire(pair.Key, depth+1)
			if err != nil {
				return nil, err
			}
			if key == lua.LNil {
				return nil, NewError(ErrorTypeTypeMismatch, "table keys cannot be nil")
			}
			value, err := s.fromWire(pair.Value, depth+1)
			if err != nil {
				return nil, err
			}
			tbl.RawSet(key, value)
		}
		return tbl, nil
	}
	return nil, newErrorf(ErrorTypeTypeMismatch, "cannot decode %s value", w.Kind)
}
