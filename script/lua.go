package script

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/luastack"
)

// DefaultLibraries are the libraries opened in evaluation runtimes. io, os
// and debug are left out so scripts cannot reach the host.
var DefaultLibraries = []string{
	luastack.LibBase,
	luastack.LibTable,
	luastack.LibString,
	luastack.LibMath,
}

// chunkName names compiled scripts in error messages.
const chunkName = "script"

// strictGlobals makes reading an unset global an error instead of nil.
const strictGlobals = `setmetatable(_G, {
	__index = function(_, name)
		error("undefined variable '" .. tostring(name) .. "'", 2)
	end,
})`

type LuaScript struct {
	engine *LuaScriptingEngine
	source string
}

// Source returns the chunk that is evaluated. Bare expressions are wrapped
// in a return statement.
func (s *LuaScript) Source() string {
	return s.source
}

// Evaluate runs the script in a fresh runtime with the engine globals and
// then globals installed.
func (s *LuaScript) Evaluate(ctx context.Context, globals map[string]any) (Value, error) {
	rt, err := luastack.New(s.engine.options)
	if err != nil {
		return nil, fmt.Errorf("failed to create lua runtime: %w", err)
	}
	defer rt.Close()

	st := rt.Stack()
	for _, scope := range []map[string]any{s.engine.globals, globals} {
		for name, value := range scope {
			if err := st.SetGlobalValue(name, value); err != nil {
				return nil, fmt.Errorf("failed to set global %q: %w", name, err)
			}
		}
	}
	if err := st.LoadString(strictGlobals, "strict"); err != nil {
		return nil, err
	}
	if err := st.Call(ctx, 0, 0); err != nil {
		return nil, fmt.Errorf("failed to install strict globals: %w", err)
	}
	if err := st.LoadString(s.source, chunkName); err != nil {
		return nil, err
	}
	if err := st.Call(ctx, 0, 1); err != nil {
		return nil, fmt.Errorf("failed to evaluate lua script: %w", err)
	}
	kind, err := st.TypeOf(-1)
	if err != nil {
		return nil, err
	}
	value, err := st.Export(-1)
	if err != nil {
		return nil, fmt.Errorf("unsupported lua result: %w", err)
	}
	return &LuaValue{value: value, kind: kind}, nil
}

type LuaScriptingEngine struct {
	globals map[string]any
	options luastack.Options
}

// NewLuaScriptingEngine returns an engine whose scripts see globals.
func NewLuaScriptingEngine(globals map[string]any) *LuaScriptingEngine {
	return NewLuaScriptingEngineWithOptions(globals, luastack.Options{})
}

// NewLuaScriptingEngineWithOptions is NewLuaScriptingEngine with base
// options for the evaluation runtimes. The standard library is always
// installed; Libraries defaults to DefaultLibraries.
func NewLuaScriptingEngineWithOptions(globals map[string]any, opts luastack.Options) *LuaScriptingEngine {
	opts.InstallStdlib = true
	if len(opts.Libraries) == 0 {
		opts.Libraries = DefaultLibraries
	}
	if opts.ChunkCache == nil {
		opts.ChunkCache = luastack.DefaultChunkCache
	}
	return &LuaScriptingEngine{globals: globals, options: opts}
}

// Compile checks the code and returns a Script. Code that parses as an
// expression evaluates to that expression; anything else runs as a chunk
// and evaluates to its first return value.
func (e *LuaScriptingEngine) Compile(ctx context.Context, code string) (Script, error) {
	expression := "return " + code
	if _, _, err := e.options.ChunkCache.Compile([]byte(expression), chunkName); err == nil {
		return &LuaScript{engine: e, source: expression}, nil
	}
	if _, _, err := e.options.ChunkCache.Compile([]byte(code), chunkName); err != nil {
		return nil, fmt.Errorf("invalid expression: %w", err)
	}
	return &LuaScript{engine: e, source: code}, nil
}

type LuaValue struct {
	value any
	kind  luastack.Kind
}

func (value *LuaValue) Value() any {
	return value.value
}

func (value *LuaValue) Kind() luastack.Kind {
	return value.kind
}

func (value *LuaValue) IsTruthy() bool {
	return ConvertValueToBool(value.value)
}

func (value *LuaValue) Items() ([]any, error) {
	return ConvertEachValue(value.value)
}

func (value *LuaValue) String() string {
	return FormatValue(value.value)
}

// DefaultLuaGlobals returns the empty inputs and state tables scripts
// expect to find.
func DefaultLuaGlobals() map[string]any {
	return map[string]any{
		"inputs": map[string]any{},
		"state":  map[string]any{},
	}
}
