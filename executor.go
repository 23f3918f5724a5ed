package luastack

import (
	"context"
	"fmt"
	"sync"
)

// workItem represents a unit of work for the executor.
type workItem struct {
	fn     func(*Stack) error
	result chan error
}

// Executor owns a runtime and runs all work on it from one goroutine, so
// the runtime can be reached from many goroutines.
type Executor struct {
	rt       *Runtime
	work     chan workItem
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewExecutor starts an executor for rt. The executor takes ownership of
// rt and closes it on Close.
func NewExecutor(rt *Runtime) *Executor {
	e := &Executor{
		rt:      rt,
		work:    make(chan workItem),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	defer close(e.stopped)
	for {
		select {
		case <-e.done:
			return
		case item := <-e.work:
			item.result <- e.execute(item.fn)
		}
	}
}

func (e *Executor) execute(fn func(*Stack) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrorTypeRuntime, fmt.Sprintf("executor work panicked: %v", r))
		}
	}()
	return fn(e.rt.Stack())
}

// Do runs fn on the executor goroutine and waits for it to finish. If ctx is
// cancelled before fn starts, fn is not run. A started fn runs to
// completion; cancelling ctx only stops the wait.
func (e *Executor) Do(ctx context.Context, fn func(*Stack) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	result := make(chan error, 1)
	select {
	case <-e.done:
		return e.rt.closedError()
	case <-ctx.Done():
		return ctx.Err()
	case e.work <- workItem{fn: fn, result: result}:
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Runtime returns the runtime owned by the executor. It must only be used
// from inside Do.
func (e *Executor) Runtime() *Runtime {
	return e.rt
}

// Close stops the executor once pending work has finished and closes the
// runtime.
func (e *Executor) Close() error {
	closed := false
	e.stopOnce.Do(func() {
		close(e.done)
		closed = true
	})
	if !closed {
		return e.rt.closedError()
	}
	<-e.stopped
	return e.rt.Close()
}
