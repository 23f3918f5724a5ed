package luastack

import (
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// MultRet asks Call to keep every result the callee returns.
const MultRet = lua.MultRet

// Call calls the function below the top nargs arguments in protected mode.
//
// On success the function and its arguments are replaced by nresults
// results, or by all results when nresults is MultRet. On failure they are
// replaced by exactly one slot holding the error value, and the returned
// *Error carries the message and traceback.
//
// A cancelled ctx stops the interpreter at its next instruction; a host
// function that blocks is not interrupted.
func (s *Stack) Call(ctx context.Context, nargs, nresults int) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	if nargs < 0 || (nresults < 0 && nresults != MultRet) {
		return newErrorf(ErrorTypeInvalidIndex, "invalid call arity %d/%d", nargs, nresults)
	}
	top := s.L.GetTop()
	if top < nargs+1 {
		return newErrorf(ErrorTypeStackUnderflow, "call needs %d slots, stack has %d", nargs+1, top)
	}
	fn := s.L.Get(top - nargs)
	if !s.callable(fn) {
		return newErrorf(ErrorTypeTypeMismatch, "attempt to call a %s value", kindOf(fn))
	}
	if grow := nresults - nargs - 1; grow > 0 {
		if err := s.ensure(grow); err != nil {
			return err
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	event := &CallEvent{
		RuntimeID: s.rt.id,
		Function:  describeFunction(fn),
		NArgs:     nargs,
		StartTime: time.Now(),
	}
	s.rt.callbacks.BeforeCall(ctx, event)

	base := top - nargs - 1
	err := s.pcall(ctx, nargs, nresults)

	event.EndTime = time.Now()
	event.Duration = event.EndTime.Sub(event.StartTime)
	event.Error = err
	if err == nil {
		event.NResults = s.L.GetTop() - base
	}
	s.rt.callbacks.AfterCall(ctx, event)
	s.rt.logCall(ctx, event)
	return err
}

// CallRef calls fn with args and returns all of its results. The stack is
// left as it was, whether the call succeeds or fails.
func (s *Stack) CallRef(ctx context.Context, fn Function, args ...Value) ([]Value, error) {
	if err := s.rt.checkOpen(); err != nil {
		return nil, err
	}
	top := s.L.GetTop()
	if err := s.ensure(len(args) + 1); err != nil {
		return nil, err
	}
	if err := s.PushRef(fn.Ref); err != nil {
		return nil, err
	}
	for _, arg := range args {
		if err := s.Push(arg); err != nil {
			s.L.SetTop(top)
			return nil, err
		}
	}
	if err := s.Call(ctx, len(args), MultRet); err != nil {
		s.L.SetTop(top)
		return nil, err
	}
	results, err := s.collect(top+1, s.L.GetTop())
	s.L.SetTop(top)
	return results, err
}

// collect converts the slots from..to into Values. References retained
// before a failing conversion are released again.
func (s *Stack) collect(from, to int) ([]Value, error) {
	results := make([]Value, 0, to-from+1)
	for i := from; i <= to; i++ {
		v, err := s.rt.toValue(s.L.Get(i))
		if err != nil {
			for _, r := range results {
				s.rt.ReleaseValue(r)
			}
			return nil, err
		}
		results = append(results, v)
	}
	return results, nil
}

func (s *Stack) pcall(ctx context.Context, nargs, nresults int) error {
	if err := ctx.Err(); err != nil {
		s.L.SetTop(s.L.GetTop() - nargs - 1)
		s.L.Push(lua.LString(err.Error()))
		return &Error{Type: ErrorTypeRuntime, Cause: err.Error(), Value: String(err.Error()), Wrapped: err}
	}
	base := s.L.GetTop() - nargs - 1
	callCtx, watch := s.rt.watchMemory(ctx)
	restore := bindContext(s.L, callCtx)
	err := s.L.PCall(nargs, nresults, nil)
	restore()
	memErr := watch.stop()

	if err != nil && memErr != nil {
		s.L.Push(lua.LString(memErr.Cause))
		return memErr
	}
	if err == nil {
		if top := s.L.GetTop(); top > s.rt.stackCap {
			callErr := s.rt.overflowError(fmt.Sprintf("call returned %d values, stack capacity is %d",
				top-base, s.rt.stackCap))
			s.L.SetTop(base)
			s.L.Push(lua.LString(callErr.Cause))
			return callErr
		}
		return nil
	}
	callErr := s.rt.callError(err)
	// The interpreter unwinds the call region without leaving the error
	// value behind.
	s.L.Push(errorObject(err))
	if ctxErr := ctx.Err(); ctxErr != nil {
		callErr.Wrapped = ctxErr
	}
	return callErr
}

// secure runs fn as a host function in protected mode, so that metamethods
// and library code cannot raise through host frames. fn takes no arguments
// and must push nresults values. On failure the stack is unchanged.
func (s *Stack) secure(nresults int, fn lua.LGFunction) error {
	if err := s.ensure(1 + nresults); err != nil {
		return err
	}
	top := s.L.GetTop()
	if err := s.protect(func() { s.L.Push(s.L.NewFunction(fn)) }); err != nil {
		return err
	}
	if err := s.L.PCall(0, nresults, nil); err != nil {
		s.L.SetTop(top)
		return s.rt.callError(err)
	}
	return nil
}

func (s *Stack) callable(fn lua.LValue) bool {
	if _, ok := fn.(*lua.LFunction); ok {
		return true
	}
	return s.L.GetMetaField(fn, "__call") != lua.LNil
}

// callError builds the *Error for an error returned by a protected call.
func (rt *Runtime) callError(err error) *Error {
	apiErr, ok := err.(*lua.ApiError)
	if !ok {
		return ClassifyError(err)
	}
	msg := apiErrorMessage(apiErr)
	errorType := rt.overflowType(msg)
	if errorType == "" {
		errorType = ErrorTypeRuntime
	}
	callErr := &Error{
		Type:      errorType,
		Cause:     msg,
		Traceback: apiErr.StackTrace,
		Wrapped:   apiErr,
	}
	if obj := apiErr.Object; obj != nil && !kindOf(obj).IsReference() {
		if v, err := rt.toValue(obj); err == nil {
			callErr.Value = v
		}
	}
	return callErr
}

func errorObject(err error) lua.LValue {
	if apiErr, ok := err.(*lua.ApiError); ok && apiErr.Object != nil {
		return apiErr.Object
	}
	return lua.LString(err.Error())
}

// bindContext attaches ctx to L for the duration of a call and returns a
// function that restores the previous context. Nested calls that pass a
// context without a Done channel keep the outer one.
func bindContext(L *lua.LState, ctx context.Context) func() {
	if ctx.Done() == nil {
		return func() {}
	}
	prev := L.Context()
	if prev == ctx {
		return func() {}
	}
	L.SetContext(ctx)
	return func() {
		if prev == nil {
			L.RemoveContext()
		} else {
			L.SetContext(prev)
		}
	}
}

func describeFunction(fn lua.LValue) string {
	f, ok := fn.(*lua.LFunction)
	if !ok {
		return fmt.Sprintf("callable %s", kindOf(fn))
	}
	if f.IsG {
		return "go function"
	}
	if f.Proto == nil {
		return "function"
	}
	return fmt.Sprintf("%s:%d", f.Proto.SourceName, f.Proto.LineDefined)
}
