package luastack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.jetify.com/typeid"
)

// vmFrameSlots is the register headroom given to each interpreter call
// frame on top of the operand stack limit.
const vmFrameSlots = 8

type library struct {
	name string
	open lua.LGFunction
}

// libraries in the order the interpreter opens them.
var libraries = []library{
	{LibPackage, lua.OpenPackage},
	{LibBase, lua.OpenBase},
	{LibTable, lua.OpenTable},
	{LibIO, lua.OpenIo},
	{LibOS, lua.OpenOs},
	{LibString, lua.OpenString},
	{LibMath, lua.OpenMath},
	{LibDebug, lua.OpenDebug},
	{LibChannel, lua.OpenChannel},
	{LibCoroutine, lua.OpenCoroutine},
}

var libraryOpeners = map[string]lua.LGFunction{}

// moduleNames maps library names to the name passed to their opener.
var moduleNames = map[string]string{
	LibPackage:   lua.LoadLibName,
	LibBase:      lua.BaseLibName,
	LibTable:     lua.TabLibName,
	LibIO:        lua.IoLibName,
	LibOS:        lua.OsLibName,
	LibString:    lua.StringLibName,
	LibMath:      lua.MathLibName,
	LibDebug:     lua.DebugLibName,
	LibChannel:   lua.ChannelLibName,
	LibCoroutine: lua.CoroutineLibName,
}

func init() {
	for _, lib := range libraries {
		libraryOpeners[lib.name] = lib.open
	}
}

// Runtime owns one interpreter instance. It is not safe for concurrent use;
// see Executor for sharing a runtime between goroutines.
type Runtime struct {
	id          string
	L           *lua.LState
	stack       *Stack
	refs        *referenceRegistry
	logger      *slog.Logger
	callLogger  CallLogger
	callbacks   CallCallbacks
	chunks      *ChunkCache
	stackCap    int
	memoryLimit int
	memoryBound bool
	watch       *memoryWatch
	threads     []context.CancelFunc
	closed      bool
}

// New creates a runtime configured by opts.
func New(opts Options) (*Runtime, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	id, err := typeid.WithPrefix("rt")
	if err != nil {
		return nil, fmt.Errorf("failed to generate runtime id: %w", err)
	}

	stackCap := opts.StackLimit
	memoryBound := false
	if opts.MemoryLimit > 0 {
		if memCap := opts.MemoryLimit / slotBytes; memCap < stackCap {
			stackCap = memCap
			memoryBound = true
		}
	}
	registryMax := stackCap + opts.CallDepth*vmFrameSlots
	registrySize := min(registryMax, 1024)

	L := lua.NewState(lua.Options{
		CallStackSize:       opts.CallDepth,
		RegistrySize:        registrySize,
		RegistryMaxSize:     registryMax,
		RegistryGrowStep:    32,
		SkipOpenLibs:        true,
		IncludeGoStackTrace: opts.IncludeGoStackTrace,
	})

	rt := &Runtime{
		id:          id.String(),
		L:           L,
		logger:      opts.Logger.With("runtime_id", id.String()),
		callLogger:  opts.CallLogger,
		callbacks:   opts.Callbacks,
		chunks:      opts.ChunkCache,
		stackCap:    stackCap,
		memoryLimit: opts.MemoryLimit,
		memoryBound: memoryBound,
	}
	rt.stack = &Stack{rt: rt, L: L}
	rt.refs = newReferenceRegistry(L)

	if opts.InstallStdlib {
		if err := rt.installLibraries(opts.Libraries); err != nil {
			L.Close()
			return nil, err
		}
		rt.guardLibraries()
	}
	rt.logger.Debug("runtime created",
		"stdlib", opts.InstallStdlib,
		"stack_capacity", stackCap,
		"memory_limit", opts.MemoryLimit)
	return rt, nil
}

func (rt *Runtime) installLibraries(names []string) error {
	selected := map[string]bool{}
	for _, name := range names {
		selected[name] = true
	}
	for _, lib := range libraries {
		if len(selected) > 0 && !selected[lib.name] {
			continue
		}
		rt.L.Push(rt.L.NewFunction(lib.open))
		rt.L.Push(lua.LString(moduleNames[lib.name]))
		if err := rt.L.PCall(1, 0, nil); err != nil {
			return fmt.Errorf("failed to open %s library: %w", lib.name, ClassifyError(err))
		}
	}
	return nil
}

// ID returns the runtime identifier.
func (rt *Runtime) ID() string {
	return rt.id
}

// Stack returns the main operand stack.
func (rt *Runtime) Stack() *Stack {
	return rt.stack
}

// Logger returns the runtime logger.
func (rt *Runtime) Logger() *slog.Logger {
	return rt.logger
}

// Closed returns true once Close has been called.
func (rt *Runtime) Closed() bool {
	return rt.closed
}

// Close tears down the interpreter. Every reference and stack of the
// runtime becomes invalid. Closing twice returns HandleClosed.
func (rt *Runtime) Close() error {
	if rt.closed {
		return rt.closedError()
	}
	rt.closed = true
	for _, cancel := range rt.threads {
		cancel()
	}
	rt.threads = nil
	live := rt.refs.live
	rt.refs = &referenceRegistry{}
	rt.L.Close()
	rt.logger.Debug("runtime closed", "released_references", live)
	return nil
}

func (rt *Runtime) checkOpen() error {
	if rt.closed {
		return rt.closedError()
	}
	return nil
}

func (rt *Runtime) closedError() *Error {
	return newErrorf(ErrorTypeHandleClosed, "runtime %s is closed", rt.id)
}

// overflowError reports that the operand stack cannot grow. When the memory
// limit is what bounds the stack the error is OutOfMemory.
func (rt *Runtime) overflowError(cause string) *Error {
	if rt.memoryBound {
		return NewError(ErrorTypeOutOfMemory, cause)
	}
	return NewError(ErrorTypeStackOverflow, cause)
}

// overflowType classifies interpreter overflow messages. It returns "" for
// any other message.
func (rt *Runtime) overflowType(msg string) string {
	switch {
	case strings.Contains(msg, memoryErrorMessage):
		return ErrorTypeOutOfMemory
	case strings.Contains(msg, "registry overflow"):
		if rt.memoryBound {
			return ErrorTypeOutOfMemory
		}
		return ErrorTypeStackOverflow
	case strings.Contains(msg, "stack overflow"):
		return ErrorTypeStackOverflow
	}
	return ""
}

// recovered converts a value recovered from an interpreter panic.
func (rt *Runtime) recovered(r any) error {
	var msg string
	switch v := r.(type) {
	case *lua.ApiError:
		msg = apiErrorMessage(v)
		if t := rt.overflowType(msg); t != "" {
			return &Error{Type: t, Cause: msg, Traceback: v.StackTrace, Wrapped: v}
		}
		return ClassifyError(v)
	case lua.LValue:
		msg = v.String()
	case error:
		msg = v.Error()
	default:
		msg = fmt.Sprint(r)
	}
	if t := rt.overflowType(msg); t != "" {
		return NewError(t, msg)
	}
	return NewError(ErrorTypeRuntime, msg)
}
