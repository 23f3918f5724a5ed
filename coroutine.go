package luastack

import (
	"context"

	lua "github.com/yuin/gopher-lua"
)

// CallStatus is the outcome of resuming a coroutine.
type CallStatus int

const (
	// StatusReturned means the coroutine body returned; it cannot be resumed
	// again.
	StatusReturned CallStatus = iota
	// StatusYielded means the coroutine yielded and can be resumed.
	StatusYielded
)

func (cs CallStatus) String() string {
	if cs == StatusYielded {
		return "yielded"
	}
	return "returned"
}

// Coroutine is a resumable call running on its own interpreter thread.
type Coroutine struct {
	stack  *Stack
	thread *lua.LState
	fn     *lua.LFunction
	done   bool
}

// NewCoroutine pops a function and prepares it to run as a coroutine.
func (s *Stack) NewCoroutine() (*Coroutine, error) {
	if err := s.rt.checkOpen(); err != nil {
		return nil, err
	}
	if s.L.GetTop() == 0 {
		return nil, NewError(ErrorTypeStackUnderflow, "no function to start a coroutine with")
	}
	fn, ok := s.L.Get(-1).(*lua.LFunction)
	if !ok {
		return nil, mismatch(KindFunction, s.L.Get(-1))
	}
	var thread *lua.LState
	var cancel context.CancelFunc
	if err := s.protect(func() { thread, cancel = s.L.NewThread() }); err != nil {
		return nil, err
	}
	if cancel != nil {
		s.rt.threads = append(s.rt.threads, cancel)
	}
	s.L.Pop(1)
	return &Coroutine{stack: s, thread: thread, fn: fn}, nil
}

// Done returns true once the coroutine returned or failed.
func (c *Coroutine) Done() bool {
	return c.done
}

// Resume pops nargs arguments and runs the coroutine until it yields or
// returns. The yielded or returned values are pushed and their count is
// returned. A failure pushes the error value, like Call, and finishes the
// coroutine.
func (c *Coroutine) Resume(ctx context.Context, nargs int) (CallStatus, int, error) {
	s := c.stack
	if err := s.rt.checkOpen(); err != nil {
		return StatusReturned, 0, err
	}
	if c.done {
		return StatusReturned, 0, NewError(ErrorTypeRuntime, "cannot resume dead coroutine")
	}
	if nargs < 0 {
		return StatusReturned, 0, newErrorf(ErrorTypeInvalidIndex, "negative argument count %d", nargs)
	}
	top := s.L.GetTop()
	if top < nargs {
		return StatusReturned, 0, newErrorf(ErrorTypeStackUnderflow, "resume needs %d arguments, stack has %d", nargs, top)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	args := make([]lua.LValue, nargs)
	for i := range args {
		args[i] = s.L.Get(top - nargs + 1 + i)
	}
	s.L.Pop(nargs)

	callCtx, watch := s.rt.watchMemory(ctx)
	restore := bindContext(c.thread, callCtx)
	var (
		state   lua.ResumeState
		err     error
		results []lua.LValue
	)
	if perr := s.protect(func() { state, err, results = s.L.Resume(c.thread, c.fn, args...) }); perr != nil {
		state, err = lua.ResumeError, perr
	}
	restore()
	memErr := watch.stop()

	if state == lua.ResumeError && memErr != nil {
		c.done = true
		s.L.Push(lua.LString(memErr.Cause))
		return StatusReturned, 0, memErr
	}
	if state == lua.ResumeError {
		c.done = true
		callErr := s.rt.callError(err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			callErr.Wrapped = ctxErr
		}
		s.L.Push(errorObject(err))
		return StatusReturned, 0, callErr
	}
	if err := s.ensure(len(results)); err != nil {
		c.done = true
		return StatusReturned, 0, err
	}
	for _, v := range results {
		s.L.Push(v)
	}
	if state == lua.ResumeYield {
		return StatusYielded, len(results), nil
	}
	c.done = true
	return StatusReturned, len(results), nil
}
