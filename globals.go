package luastack

import (
	lua "github.com/yuin/gopher-lua"
)

// GetGlobal pushes the value of the global name.
func (s *Stack) GetGlobal(name string) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	return s.secure(1, func(L *lua.LState) int {
		L.Push(L.GetGlobal(name))
		return 1
	})
}

// SetGlobal pops a value and assigns it to the global name.
func (s *Stack) SetGlobal(name string) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	if s.L.GetTop() == 0 {
		return NewError(ErrorTypeStackUnderflow, "no value to assign")
	}
	value := s.L.Get(-1)
	if err := s.secure(0, func(L *lua.LState) int {
		L.SetGlobal(name, value)
		return 0
	}); err != nil {
		return err
	}
	s.L.Pop(1)
	return nil
}

// GlobalAs reads the global name and converts it to T without changing the
// stack.
func GlobalAs[T Scalar](s *Stack, name string) (T, error) {
	var zero T
	if err := s.GetGlobal(name); err != nil {
		return zero, err
	}
	v, err := PopAs[T](s)
	if err != nil {
		s.L.Pop(1)
		return zero, err
	}
	return v, nil
}

// SetGlobalValue assigns v to the global name.
func (s *Stack) SetGlobalValue(name string, v any) error {
	if err := s.PushAny(v); err != nil {
		return err
	}
	if err := s.SetGlobal(name); err != nil {
		s.L.Pop(1)
		return err
	}
	return nil
}
