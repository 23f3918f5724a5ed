package luastack

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Stack is the operand stack of one interpreter thread. Indices are
// 1-based from the bottom; negative indices count down from the top (-1 is
// the top slot). Inside a host function the stack holds only the frame of
// that call, starting with its arguments.
//
// Every operation validates its indices and types before mutating the
// stack, so a failed operation leaves the stack exactly as it was.
type Stack struct {
	rt *Runtime
	L  *lua.LState
}

// Runtime returns the runtime that owns the stack.
func (s *Stack) Runtime() *Runtime {
	return s.rt
}

// Top returns the number of slots on the stack. A closed runtime reports 0.
func (s *Stack) Top() int {
	if s.rt.closed {
		return 0
	}
	return s.L.GetTop()
}

// AbsIndex converts idx into an absolute index. It fails with InvalidIndex
// when idx names no slot.
func (s *Stack) AbsIndex(idx int) (int, error) {
	if err := s.rt.checkOpen(); err != nil {
		return 0, err
	}
	return s.absIndex(idx)
}

func (s *Stack) absIndex(idx int) (int, error) {
	top := s.L.GetTop()
	switch {
	case idx > 0 && idx <= top:
		return idx, nil
	case idx < 0 && -idx <= top:
		return top + idx + 1, nil
	}
	return 0, newErrorf(ErrorTypeInvalidIndex, "index %d is not valid for a stack of %d slots", idx, top)
}

// CheckStack reports whether n more slots can be pushed. It fails with
// StackOverflow, or OutOfMemory when the memory limit bounds the stack.
func (s *Stack) CheckStack(n int) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	return s.ensure(n)
}

func (s *Stack) ensure(n int) error {
	if n < 0 {
		return newErrorf(ErrorTypeInvalidIndex, "negative slot count %d", n)
	}
	if s.L.GetTop()+n > s.rt.stackCap {
		return s.rt.overflowError(fmt.Sprintf("cannot grow stack of %d slots by %d (capacity %d)",
			s.L.GetTop(), n, s.rt.stackCap))
	}
	return nil
}

// SetTop sets the stack size. A non-negative n is an absolute size; a
// negative n is relative to the top, so SetTop(-1) keeps the stack and
// SetTop(-2) drops one slot. Growing fills the new slots with nil.
func (s *Stack) SetTop(n int) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	top := s.L.GetTop()
	target := n
	if n < 0 {
		target = top + n + 1
		if target < 0 {
			return newErrorf(ErrorTypeInvalidIndex, "index %d is not valid for a stack of %d slots", n, top)
		}
	}
	if target > top {
		if err := s.ensure(target - top); err != nil {
			return err
		}
		return s.protect(func() {
			for i := top; i < target; i++ {
				s.L.Push(lua.LNil)
			}
		})
	}
	s.L.SetTop(target)
	return nil
}

// Pop discards n slots from the top of the stack.
func (s *Stack) Pop(n int) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	if n < 0 {
		return newErrorf(ErrorTypeInvalidIndex, "negative slot count %d", n)
	}
	if top := s.L.GetTop(); n > top {
		return newErrorf(ErrorTypeStackUnderflow, "cannot pop %d slots from a stack of %d", n, top)
	}
	s.L.Pop(n)
	return nil
}

// TypeOf returns the kind of the value at idx.
func (s *Stack) TypeOf(idx int) (Kind, error) {
	if err := s.rt.checkOpen(); err != nil {
		return KindNone, err
	}
	abs, err := s.absIndex(idx)
	if err != nil {
		return KindNone, err
	}
	return kindOf(s.L.Get(abs)), nil
}

// Push pushes v onto the stack. Table, Function and UserData values must
// carry a live reference of this runtime.
func (s *Stack) Push(v Value) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	lv, err := s.rt.fromValue(v)
	if err != nil {
		return err
	}
	return s.push(lv)
}

// PushNil pushes nil.
func (s *Stack) PushNil() error {
	return s.Push(Nil{})
}

// PushBoolean pushes a boolean.
func (s *Stack) PushBoolean(b bool) error {
	return s.Push(Boolean(b))
}

// PushInteger pushes an integer. Magnitudes beyond 2^53 are rounded to the
// nearest representable number.
func (s *Stack) PushInteger(i int64) error {
	return s.Push(Integer(i))
}

// PushNumber pushes a floating point number.
func (s *Stack) PushNumber(f float64) error {
	return s.Push(Number(f))
}

// PushString pushes a string.
func (s *Stack) PushString(str string) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	return s.push(lua.LString(str))
}

// PushBytes pushes b as a Lua string.
func (s *Stack) PushBytes(b []byte) error {
	return s.Push(String(b))
}

// PushValue pushes a copy of the value at idx.
func (s *Stack) PushValue(idx int) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	abs, err := s.absIndex(idx)
	if err != nil {
		return err
	}
	return s.push(s.L.Get(abs))
}

// NewTable pushes a new empty table with preallocated array and record
// space.
func (s *Stack) NewTable(narr, nrec int) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	if narr < 0 || nrec < 0 {
		return newErrorf(ErrorTypeInvalidIndex, "negative table size %d/%d", narr, nrec)
	}
	if err := s.ensure(1); err != nil {
		return err
	}
	return s.protect(func() {
		s.L.Push(s.L.CreateTable(narr, nrec))
	})
}

// Insert moves the top value into idx, shifting up the values above it.
func (s *Stack) Insert(idx int) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	abs, err := s.absIndex(idx)
	if err != nil {
		return err
	}
	s.rotate(abs, 1)
	return nil
}

// Remove removes the value at idx, shifting down the values above it.
func (s *Stack) Remove(idx int) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	abs, err := s.absIndex(idx)
	if err != nil {
		return err
	}
	s.rotate(abs, -1)
	s.L.Pop(1)
	return nil
}

// Replace pops the top value and stores it at idx.
func (s *Stack) Replace(idx int) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	abs, err := s.absIndex(idx)
	if err != nil {
		return err
	}
	top := s.L.GetTop()
	if abs != top {
		s.L.Replace(abs, s.L.Get(top))
	}
	s.L.Pop(1)
	return nil
}

// Copy copies the value at from into to, leaving from unchanged.
func (s *Stack) Copy(from, to int) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	src, err := s.absIndex(from)
	if err != nil {
		return err
	}
	dst, err := s.absIndex(to)
	if err != nil {
		return err
	}
	s.L.Replace(dst, s.L.Get(src))
	return nil
}

// Rotate rotates the values between idx and the top by n positions toward
// the top. A negative n rotates toward the bottom.
func (s *Stack) Rotate(idx, n int) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	abs, err := s.absIndex(idx)
	if err != nil {
		return err
	}
	s.rotate(abs, n)
	return nil
}

func (s *Stack) rotate(abs, n int) {
	top := s.L.GetTop()
	size := top - abs + 1
	if size <= 1 {
		return
	}
	n %= size
	if n < 0 {
		n += size
	}
	if n == 0 {
		return
	}
	values := make([]lua.LValue, size)
	for i := range values {
		values[i] = s.L.Get(abs + i)
	}
	for i, v := range values {
		s.L.Replace(abs+(i+n)%size, v)
	}
}

func (s *Stack) push(lv lua.LValue) error {
	if err := s.ensure(1); err != nil {
		return err
	}
	return s.protect(func() {
		s.L.Push(lv)
	})
}

// protect runs op and converts an interpreter panic into an error. Pushes
// are checked against the stack capacity beforehand; this catches the
// interpreter's own overflow checks.
func (s *Stack) protect(op func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = s.rt.recovered(r)
		}
	}()
	op()
	return nil
}

