package script

import (
	"context"

	"github.com/deepnoodle-ai/luastack"
)

// Value is the result of evaluating a script, copied out of the runtime
// that produced it.
type Value interface {
	// Value returns the exported Go value: nil, bool, int64, float64,
	// string, []any or map[string]any
	Value() any

	// Kind is the Lua type of the result
	Kind() luastack.Kind

	// Items flattens the value for iteration
	Items() ([]any, error)

	// String renders the value as template text
	String() string

	// IsTruthy applies Lua truthiness
	IsTruthy() bool
}

// Script is a compiled chunk that can be evaluated repeatedly.
type Script interface {
	Source() string
	Evaluate(ctx context.Context, globals map[string]any) (Value, error)
}

// Compiler compiles source code into a Script.
type Compiler interface {
	Compile(ctx context.Context, code string) (Script, error)
}
