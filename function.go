package luastack

import (
	"context"
	"errors"

	lua "github.com/yuin/gopher-lua"
)

// GoFunction is a host function callable from Lua. The stack holds only the
// call's arguments; the function pushes its results and returns how many
// there are. A returned error is raised as a Lua runtime error.
type GoFunction func(ctx context.Context, s *Stack) (int, error)

// PushGoFunction pushes fn as a Lua function.
func (s *Stack) PushGoFunction(fn GoFunction) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	if fn == nil {
		return NewError(ErrorTypeTypeMismatch, "nil host function")
	}
	if err := s.ensure(1); err != nil {
		return err
	}
	return s.protect(func() {
		s.L.Push(s.L.NewFunction(s.rt.wrap(fn)))
	})
}

// Register sets the global name to fn.
func (s *Stack) Register(name string, fn GoFunction) error {
	if err := s.PushGoFunction(fn); err != nil {
		return err
	}
	if err := s.SetGlobal(name); err != nil {
		s.L.Pop(1)
		return err
	}
	return nil
}

// wrap adapts fn to the interpreter calling convention. The context handed
// to fn is the one bound to the running call, carrying the runtime logger.
func (rt *Runtime) wrap(fn GoFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		ctx := L.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = WithRuntime(WithLogger(ctx, rt.logger), rt)
		s := &Stack{rt: rt, L: L}
		n, err := fn(ctx, s)
		if err != nil {
			L.RaiseError("%s", hostErrorMessage(err))
		}
		if top := L.GetTop(); n < 0 || n > top {
			L.RaiseError("host function returned %d results but the stack holds %d", n, top)
		}
		return n
	}
}

// hostErrorMessage drops the type prefix of bridge errors so nested failures
// do not stack prefixes.
func hostErrorMessage(err error) string {
	var bridgeErr *Error
	if errors.As(err, &bridgeErr) && bridgeErr.Cause != "" {
		return bridgeErr.Cause
	}
	return err.Error()
}

// TypedFunction builds a GoFunction that decodes its first argument into A
// and pushes the R it returns. Tables decode through mapstructure, so A may
// be a struct with mapstructure tags; scalars decode into matching Go types.
// A function called without arguments receives the zero A.
func TypedFunction[A, R any](fn func(ctx context.Context, args A) (R, error)) GoFunction {
	return func(ctx context.Context, s *Stack) (int, error) {
		var args A
		if s.Top() > 0 {
			data, err := s.Export(1)
			if err != nil {
				return 0, err
			}
			if err := decodeInto(data, &args); err != nil {
				return 0, err
			}
		}
		result, err := fn(ctx, args)
		if err != nil {
			return 0, err
		}
		if err := s.PushAny(result); err != nil {
			return 0, err
		}
		return 1, nil
	}
}
