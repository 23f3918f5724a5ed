package luastack

import (
	"math"

	lua "github.com/yuin/gopher-lua"
)

// GetField pushes t[key] for the table at idx. Metamethods run in protected
// mode.
func (s *Stack) GetField(idx int, key string) error {
	tbl, err := s.indexable(idx)
	if err != nil {
		return err
	}
	return s.secure(1, func(L *lua.LState) int {
		L.Push(L.GetField(tbl, key))
		return 1
	})
}

// SetField pops a value and stores it as t[key] for the table at idx.
func (s *Stack) SetField(idx int, key string) error {
	tbl, err := s.indexable(idx)
	if err != nil {
		return err
	}
	value := s.L.Get(-1)
	if err := s.secure(0, func(L *lua.LState) int {
		L.SetField(tbl, key, value)
		return 0
	}); err != nil {
		return err
	}
	s.L.Pop(1)
	return nil
}

// GetIndex pushes t[i] for the table at idx.
func (s *Stack) GetIndex(idx, i int) error {
	tbl, err := s.indexable(idx)
	if err != nil {
		return err
	}
	return s.secure(1, func(L *lua.LState) int {
		L.Push(L.GetTable(tbl, lua.LNumber(i)))
		return 1
	})
}

// SetIndex pops a value and stores it as t[i] for the table at idx.
func (s *Stack) SetIndex(idx, i int) error {
	tbl, err := s.indexable(idx)
	if err != nil {
		return err
	}
	value := s.L.Get(-1)
	if err := s.secure(0, func(L *lua.LState) int {
		L.SetTable(tbl, lua.LNumber(i), value)
		return 0
	}); err != nil {
		return err
	}
	s.L.Pop(1)
	return nil
}

// RawLen returns the raw length of the table or string at idx.
func (s *Stack) RawLen(idx int) (int, error) {
	if err := s.rt.checkOpen(); err != nil {
		return 0, err
	}
	abs, err := s.absIndex(idx)
	if err != nil {
		return 0, err
	}
	switch v := s.L.Get(abs).(type) {
	case *lua.LTable:
		return v.Len(), nil
	case lua.LString:
		return len(v), nil
	}
	return 0, newErrorf(ErrorTypeTypeMismatch, "expected table or string, got %s", kindOf(s.L.Get(abs)))
}

// RawGetIndex pushes t[i] for the table at idx without running metamethods.
func (s *Stack) RawGetIndex(idx, i int) error {
	tbl, err := s.rawTable(idx)
	if err != nil {
		return err
	}
	return s.push(tbl.RawGetInt(i))
}

// RawSetIndex pops a value and stores it as t[i] for the table at idx
// without running metamethods.
func (s *Stack) RawSetIndex(idx, i int) error {
	tbl, err := s.rawTable(idx)
	if err != nil {
		return err
	}
	if s.L.GetTop() == 0 {
		return NewError(ErrorTypeStackUnderflow, "no value to store")
	}
	tbl.RawSetInt(i, s.L.Get(-1))
	s.L.Pop(1)
	return nil
}

// RawGet pops a key and pushes t[key] for the table at idx without running
// metamethods.
func (s *Stack) RawGet(idx int) error {
	tbl, err := s.rawTable(idx)
	if err != nil {
		return err
	}
	if s.L.GetTop() == 0 {
		return NewError(ErrorTypeStackUnderflow, "no key to look up")
	}
	value := tbl.RawGet(s.L.Get(-1))
	s.L.Pop(1)
	s.L.Push(value)
	return nil
}

// RawSet pops a value and then a key and stores t[key] = value for the
// table at idx without running metamethods.
func (s *Stack) RawSet(idx int) error {
	tbl, err := s.rawTable(idx)
	if err != nil {
		return err
	}
	if s.L.GetTop() < 2 {
		return NewError(ErrorTypeStackUnderflow, "raw set needs a key and a value")
	}
	key := s.L.Get(-2)
	switch k := key.(type) {
	case *lua.LNilType:
		return NewError(ErrorTypeTypeMismatch, "table index is nil")
	case lua.LNumber:
		if math.IsNaN(float64(k)) {
			return NewError(ErrorTypeTypeMismatch, "table index is NaN")
		}
	}
	tbl.RawSet(key, s.L.Get(-1))
	s.L.Pop(2)
	return nil
}

// rawTable returns the table at idx. Raw access needs a real table.
func (s *Stack) rawTable(idx int) (*lua.LTable, error) {
	if err := s.rt.checkOpen(); err != nil {
		return nil, err
	}
	abs, err := s.absIndex(idx)
	if err != nil {
		return nil, err
	}
	tbl, ok := s.L.Get(abs).(*lua.LTable)
	if !ok {
		return nil, mismatch(KindTable, s.L.Get(abs))
	}
	return tbl, nil
}

// Next pops a key and pushes the next key and value of the table at idx.
// When the table has no more entries it pushes nothing and returns false.
// Start a traversal by pushing nil.
func (s *Stack) Next(idx int) (bool, error) {
	if err := s.rt.checkOpen(); err != nil {
		return false, err
	}
	abs, err := s.absIndex(idx)
	if err != nil {
		return false, err
	}
	tbl, ok := s.L.Get(abs).(*lua.LTable)
	if !ok {
		return false, mismatch(KindTable, s.L.Get(abs))
	}
	if s.L.GetTop() <= abs {
		return false, NewError(ErrorTypeStackUnderflow, "next needs a key above the table")
	}
	k, v := tbl.Next(s.L.Get(-1))
	if k == lua.LNil {
		s.L.Pop(1)
		return false, nil
	}
	if err := s.ensure(1); err != nil {
		return false, err
	}
	s.L.Pop(1)
	s.L.Push(k)
	s.L.Push(v)
	return true, nil
}

// FieldAs reads t[key] for the table at idx and converts it to T without
// changing the stack.
func FieldAs[T Scalar](s *Stack, idx int, key string) (T, error) {
	var zero T
	if err := s.GetField(idx, key); err != nil {
		return zero, err
	}
	v, err := PopAs[T](s)
	if err != nil {
		s.L.Pop(1)
		return zero, err
	}
	return v, nil
}

// TableFieldAs reads t[key] for a retained table and converts it to T.
func TableFieldAs[T Scalar](s *Stack, tbl Table, key string) (T, error) {
	var zero T
	if err := s.PushRef(tbl.Ref); err != nil {
		return zero, err
	}
	v, err := FieldAs[T](s, -1, key)
	s.L.Pop(1)
	return v, err
}

// indexable returns the value at idx if it can be indexed: a table or a
// value with an __index metamethod.
func (s *Stack) indexable(idx int) (lua.LValue, error) {
	if err := s.rt.checkOpen(); err != nil {
		return nil, err
	}
	abs, err := s.absIndex(idx)
	if err != nil {
		return nil, err
	}
	v := s.L.Get(abs)
	if _, ok := v.(*lua.LTable); ok {
		return v, nil
	}
	if s.L.GetMetaField(v, "__index") != lua.LNil {
		return v, nil
	}
	return nil, mismatch(KindTable, v)
}
