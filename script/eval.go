package script

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var templateExpr = regexp.MustCompile(`\${([^}]+)}`)

// templatePart is either literal text or a compiled ${...} expression.
type templatePart struct {
	text string
	code Script
}

// Template renders strings with embedded ${expr} segments.
type Template struct {
	raw   string
	parts []templatePart
}

func NewTemplate(engine Compiler, raw string) (*Template, error) {
	t := &Template{raw: raw}

	// First validate that all ${...} expressions are properly closed
	openCount := strings.Count(raw, "${")
	closeCount := strings.Count(raw, "}")
	if openCount > closeCount {
		return nil, fmt.Errorf("unclosed template expression in string: %q", raw)
	}
	if openCount == 0 {
		return t, nil
	}

	var lastEnd int
	for _, match := range templateExpr.FindAllStringSubmatchIndex(raw, -1) {
		if match[0] > lastEnd {
			t.parts = append(t.parts, templatePart{text: raw[lastEnd:match[0]]})
		}
		expr := raw[match[2]:match[3]]
		code, err := engine.Compile(context.Background(), expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile template expression %q: %w", expr, err)
		}
		t.parts = append(t.parts, templatePart{code: code})
		lastEnd = match[1]
	}
	if lastEnd < len(raw) {
		t.parts = append(t.parts, templatePart{text: raw[lastEnd:]})
	}
	return t, nil
}

// Raw returns the template source.
func (t *Template) Raw() string {
	return t.raw
}

func (t *Template) Eval(ctx context.Context, globals map[string]any) (string, error) {
	if len(t.parts) == 0 {
		return t.raw, nil
	}
	var sb strings.Builder
	for _, part := range t.parts {
		if part.code == nil {
			sb.WriteString(part.text)
			continue
		}
		result, err := part.code.Evaluate(ctx, globals)
		if err != nil {
			return "", fmt.Errorf("failed to evaluate template expression: %w", err)
		}
		sb.WriteString(result.String())
	}
	return sb.String(), nil
}
