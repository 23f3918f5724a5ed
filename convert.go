package luastack

import (
	lua "github.com/yuin/gopher-lua"
)

// Scalar is the set of host types a stack slot can be converted to.
type Scalar interface {
	bool | int | int64 | float64 | string | []byte |
		Boolean | Integer | Number | String | Table | Function | UserData | Nil
}

// PeekAs converts the value at idx to T without changing the stack.
//
// Integer targets accept only integral numbers within ±2^53; float targets
// accept any number. Strings and numbers are never coerced into each other.
// Converting to Table, Function or UserData retains the value and the caller
// owns the returned reference.
func PeekAs[T Scalar](s *Stack, idx int) (T, error) {
	var zero T
	if err := s.rt.checkOpen(); err != nil {
		return zero, err
	}
	abs, err := s.absIndex(idx)
	if err != nil {
		return zero, err
	}
	return convertSlot[T](s.rt, s.L.Get(abs))
}

// PopAs converts the top value to T and pops it. On failure the stack is
// unchanged.
func PopAs[T Scalar](s *Stack) (T, error) {
	var zero T
	if err := s.rt.checkOpen(); err != nil {
		return zero, err
	}
	if s.L.GetTop() == 0 {
		return zero, NewError(ErrorTypeStackUnderflow, "pop from an empty stack")
	}
	v, err := convertSlot[T](s.rt, s.L.Get(-1))
	if err != nil {
		return zero, err
	}
	s.L.Pop(1)
	return v, nil
}

// PeekValue converts the value at idx to a dynamic Value.
func (s *Stack) PeekValue(idx int) (Value, error) {
	if err := s.rt.checkOpen(); err != nil {
		return nil, err
	}
	abs, err := s.absIndex(idx)
	if err != nil {
		return nil, err
	}
	return s.rt.toValue(s.L.Get(abs))
}

// PopValue converts the top value to a dynamic Value and pops it.
func (s *Stack) PopValue() (Value, error) {
	if err := s.rt.checkOpen(); err != nil {
		return nil, err
	}
	if s.L.GetTop() == 0 {
		return nil, NewError(ErrorTypeStackUnderflow, "pop from an empty stack")
	}
	v, err := s.rt.toValue(s.L.Get(-1))
	if err != nil {
		return nil, err
	}
	s.L.Pop(1)
	return v, nil
}

func convertSlot[T Scalar](rt *Runtime, lv lua.LValue) (T, error) {
	var out T
	switch p := any(&out).(type) {
	case *bool:
		b, ok := lv.(lua.LBool)
		if !ok {
			return out, mismatch(KindBoolean, lv)
		}
		*p = bool(b)
	case *Boolean:
		b, ok := lv.(lua.LBool)
		if !ok {
			return out, mismatch(KindBoolean, lv)
		}
		*p = Boolean(b)
	case *int:
		i, err := integerOf(lv)
		if err != nil {
			return out, err
		}
		*p = int(i)
	case *int64:
		i, err := integerOf(lv)
		if err != nil {
			return out, err
		}
		*p = i
	case *Integer:
		i, err := integerOf(lv)
		if err != nil {
			return out, err
		}
		*p = Integer(i)
	case *float64:
		n, ok := lv.(lua.LNumber)
		if !ok {
			return out, mismatch(KindNumber, lv)
		}
		*p = float64(n)
	case *Number:
		n, ok := lv.(lua.LNumber)
		if !ok {
			return out, mismatch(KindNumber, lv)
		}
		*p = Number(n)
	case *string:
		str, ok := lv.(lua.LString)
		if !ok {
			return out, mismatch(KindString, lv)
		}
		*p = string(str)
	case *[]byte:
		str, ok := lv.(lua.LString)
		if !ok {
			return out, mismatch(KindString, lv)
		}
		*p = []byte(str)
	case *String:
		str, ok := lv.(lua.LString)
		if !ok {
			return out, mismatch(KindString, lv)
		}
		*p = String(str)
	case *Nil:
		if lv != lua.LNil {
			return out, mismatch(KindNil, lv)
		}
	case *Table:
		ref, err := rt.retainKind(lv, KindTable)
		if err != nil {
			return out, err
		}
		*p = Table{Ref: ref}
	case *Function:
		ref, err := rt.retainKind(lv, KindFunction)
		if err != nil {
			return out, err
		}
		*p = Function{Ref: ref}
	case *UserData:
		ref, err := rt.retainKind(lv, KindUserData)
		if err != nil {
			return out, err
		}
		*p = UserData{Ref: ref}
	}
	return out, nil
}

func integerOf(lv lua.LValue) (int64, error) {
	n, ok := lv.(lua.LNumber)
	if !ok {
		return 0, mismatch(KindInteger, lv)
	}
	if !isExactInteger(float64(n)) {
		return 0, newErrorf(ErrorTypeTypeMismatch, "expected integer, got number %s", n.String())
	}
	return int64(n), nil
}

func mismatch(want Kind, lv lua.LValue) *Error {
	return newErrorf(ErrorTypeTypeMismatch, "expected %s, got %s", want, kindOf(lv))
}

// toValue copies scalars out of the interpreter and retains references.
func (rt *Runtime) toValue(lv lua.LValue) (Value, error) {
	switch v := lv.(type) {
	case *lua.LNilType:
		return Nil{}, nil
	case lua.LBool:
		return Boolean(v), nil
	case lua.LNumber:
		if isExactInteger(float64(v)) {
			return Integer(v), nil
		}
		return Number(v), nil
	case lua.LString:
		return String(v), nil
	case *lua.LTable, *lua.LFunction, *lua.LUserData:
		ref, err := rt.retain(lv)
		if err != nil {
			return nil, err
		}
		return wrapReference(ref), nil
	}
	return nil, newErrorf(ErrorTypeTypeMismatch, "%s values cannot cross the boundary", kindOf(lv))
}

// fromValue resolves v into the interpreter value it denotes.
func (rt *Runtime) fromValue(v Value) (lua.LValue, error) {
	switch v := v.(type) {
	case nil, Nil:
		return lua.LNil, nil
	case Boolean:
		return lua.LBool(v), nil
	case Integer:
		return lua.LNumber(v), nil
	case Number:
		return lua.LNumber(v), nil
	case String:
		return lua.LString(v), nil
	case Table:
		return rt.lookup(v.Ref)
	case Function:
		return rt.lookup(v.Ref)
	case UserData:
		return rt.lookup(v.Ref)
	}
	return nil, newErrorf(ErrorTypeTypeMismatch, "unsupported value %T", v)
}
