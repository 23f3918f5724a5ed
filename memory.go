package luastack

import (
	"context"
	"fmt"
	"runtime"
	"runtime/metrics"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// memoryErrorMessage prefixes interpreter errors raised for allocations
// over the memory limit.
const memoryErrorMessage = "not enough memory"

// heapMetric counts bytes in heap objects, live or not yet swept.
const heapMetric = "/memory/classes/heap/objects:bytes"

// memoryCheckInterval is how often a running call samples heap growth.
var memoryCheckInterval = time.Millisecond

// memoryWatch stops a call once the heap has grown by more than the memory
// limit since the call started. The heap is shared by the whole process, so
// growth of other goroutines during the call is charged to it as well.
type memoryWatch struct {
	rt       *Runtime
	baseline int64
	cancel   context.CancelCauseFunc
	done     chan struct{}
	stopped  chan struct{}
	exceeded atomic.Int64
}

// watchMemory derives the context a call runs under. It returns a nil
// watch when the runtime has no memory limit or an outer call on the same
// runtime is already watched.
func (rt *Runtime) watchMemory(ctx context.Context) (context.Context, *memoryWatch) {
	if rt.memoryLimit <= 0 || rt.watch != nil {
		return ctx, nil
	}
	ctx, cancel := context.WithCancelCause(ctx)
	w := &memoryWatch{
		rt:       rt,
		baseline: heapBytes(),
		cancel:   cancel,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	rt.watch = w
	go w.run()
	return ctx, w
}

func (w *memoryWatch) run() {
	defer close(w.stopped)
	ticker := time.NewTicker(memoryCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if grown, over := w.over(); over {
				w.exceeded.Store(grown)
				w.cancel(w.rt.memoryError(grown))
				return
			}
		}
	}
}

// over reports whether live heap growth exceeds the limit. Garbage is only
// collected once the raw growth is already over.
func (w *memoryWatch) over() (int64, bool) {
	limit := int64(w.rt.memoryLimit)
	if heapBytes()-w.baseline <= limit {
		return 0, false
	}
	runtime.GC()
	grown := heapBytes() - w.baseline
	return grown, grown > limit
}

// stop ends the watch and returns the error describing the exceeded limit,
// or nil when the call stayed within it.
func (w *memoryWatch) stop() *Error {
	if w == nil {
		return nil
	}
	close(w.done)
	<-w.stopped
	w.cancel(nil)
	w.rt.watch = nil
	if grown := w.exceeded.Load(); grown > 0 {
		return w.rt.memoryError(grown)
	}
	return nil
}

func (rt *Runtime) memoryError(grown int64) *Error {
	return newErrorf(ErrorTypeOutOfMemory, "%s: call grew the heap by %d bytes, limit is %d",
		memoryErrorMessage, grown, rt.memoryLimit)
}

func heapBytes() int64 {
	sample := []metrics.Sample{{Name: heapMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return int64(sample[0].Value.Uint64())
}

// guardLibraries replaces library functions whose result size is known
// from their arguments with versions that refuse to build results over the
// memory limit.
func (rt *Runtime) guardLibraries() {
	if rt.memoryLimit <= 0 {
		return
	}
	if str, ok := rt.L.GetGlobal(lua.StringLibName).(*lua.LTable); ok {
		rt.guardFunction(str, "string.rep", "rep", repSize)
	}
	if tbl, ok := rt.L.GetGlobal(lua.TabLibName).(*lua.LTable); ok {
		rt.guardFunction(tbl, "table.concat", "concat", concatSize)
	}
}

func (rt *Runtime) guardFunction(lib *lua.LTable, label, name string, size func(*lua.LState, int) int) {
	orig, ok := lib.RawGetString(name).(*lua.LFunction)
	if !ok || !orig.IsG {
		return
	}
	limit := rt.memoryLimit
	lib.RawSetString(name, rt.L.NewFunction(func(L *lua.LState) int {
		if n := size(L, limit); n > limit {
			L.RaiseError("%s: %s result needs more than %d bytes", memoryErrorMessage, label, limit)
		}
		return orig.GFunction(L)
	}))
}

// repSize returns the length of string.rep(s, n), or limit+1 once it is
// known to be larger than limit.
func repSize(L *lua.LState, limit int) int {
	s := L.CheckString(1)
	n := L.CheckInt(2)
	if n <= 0 || len(s) == 0 {
		return 0
	}
	if n > limit/len(s) {
		return limit + 1
	}
	return len(s) * n
}

// concatSize returns the length of table.concat(t, sep, i, j), or stops
// counting once it is larger than limit. Entries that concat rejects end
// the count; the library then raises its own error.
func concatSize(L *lua.LState, limit int) int {
	tbl := L.CheckTable(1)
	sep := L.OptString(2, "")
	i := L.OptInt(3, 1)
	j := L.OptInt(4, tbl.Len())
	total := 0
	for k := i; k <= j && total <= limit; k++ {
		switch v := tbl.RawGetInt(k).(type) {
		case lua.LString:
			total += len(v)
		case lua.LNumber:
			total += len(fmt.Sprint(float64(v)))
		default:
			return total
		}
		if k > i {
			total += len(sep)
		}
	}
	return total
}
