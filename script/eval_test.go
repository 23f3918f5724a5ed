package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemplate(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		globals     map[string]any
		wantErr     bool
		want        string
		errContains string
	}{
		{
			name:    "plain string without template variables",
			input:   "Hello World",
			globals: nil,
			want:    "Hello World",
		},
		{
			name:  "string with single template variable",
			input: "Hello ${state.name}",
			globals: map[string]any{
				"state": map[string]any{
					"name": "Alice",
				},
			},
			want: "Hello Alice",
		},
		{
			name:  "string with multiple template variables",
			input: "${state.greeting} ${state.name}! The answer is ${40 + 2}",
			globals: map[string]any{
				"state": map[string]any{
					"greeting": "Hello",
					"name":     "Bob",
				},
			},
			want: "Hello Bob! The answer is 42",
		},
		{
			name:    "string with nested expressions",
			input:   "Result: ${1 + (2 * 3)}",
			globals: nil,
			want:    "Result: 7",
		},
		{
			name:    "string concatenation and library call",
			input:   "${string.upper('ab') .. 'c'}",
			globals: nil,
			want:    "ABc",
		},
		{
			name:    "nil renders empty",
			input:   "[${nil}]",
			globals: nil,
			want:    "[]",
		},
		{
			name:    "empty result does not shift later expressions",
			input:   "${''}-${'x'}",
			globals: nil,
			want:    "-x",
		},
		{
			name:    "sequence result",
			input:   "${items}",
			globals: map[string]any{"items": []any{1, "two", true}},
			want:    "1\n\ntwo\n\ntrue",
		},
		{
			name:        "invalid template syntax - unclosed brace",
			input:       "Hello ${name",
			globals:     map[string]any{"name": "Alice"},
			wantErr:     true,
			errContains: "unclosed template expression",
		},
		{
			name:        "invalid expression inside template",
			input:       "Hello ${1 +}",
			globals:     nil,
			wantErr:     true,
			errContains: "invalid expression",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewTemplate(NewLuaScriptingEngine(DefaultLuaGlobals()), tt.input)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					require.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			require.NoError(t, err)
			require.NotNil(t, s)
			got, err := s.Eval(context.Background(), tt.globals)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTemplateUndefinedVariable(t *testing.T) {
	s, err := NewTemplate(NewLuaScriptingEngine(nil), "Hello ${undefined_var}")
	require.NoError(t, err)
	_, err = s.Eval(context.Background(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "undefined variable")
}
