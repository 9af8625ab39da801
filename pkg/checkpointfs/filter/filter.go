// Package filter decides whether a stored checkpoint matches List criteria:
// exact metadata field values and an optional CEL expression.
package filter

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/cel-go/cel"
)

// Target is the view of a checkpoint that filters are evaluated against.
type Target struct {
	ThreadID     string
	Namespace    string
	CheckpointID string
	// Metadata holds the flattened metadata fields.
	Metadata map[string]any
}

// Matcher evaluates equality filters and a compiled CEL program.
// A nil Matcher matches everything.
type Matcher struct {
	fields map[string]any
	prog   cel.Program
	expr   string
}

// Compile builds a Matcher. fields may be nil; where may be empty.
// Returns nil when there is nothing to evaluate.
func Compile(fields map[string]any, where string) (*Matcher, error) {
	where = strings.TrimSpace(where)
	if len(fields) == 0 && where == "" {
		return nil, nil
	}

	m := &Matcher{fields: fields, expr: where}
	if where == "" {
		return m, nil
	}

	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	ast, iss := env.Compile(where)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", where, iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("compile %q: expression returns %s, want bool", where, out)
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", where, err)
	}
	m.prog = prog
	return m, nil
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("thread_id", cel.StringType),
		cel.Variable("checkpoint_ns", cel.StringType),
		cel.Variable("checkpoint_id", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("step", cel.IntType),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// Expression returns the CEL source, or "" if none was given.
func (m *Matcher) Expression() string {
	if m == nil {
		return ""
	}
	return m.expr
}

// Match reports whether t satisfies every field filter and the expression.
// Expressions that fail at runtime (e.g. a missing metadata key) do not match.
func (m *Matcher) Match(t Target) bool {
	if m == nil {
		return true
	}
	for key, want := range m.fields {
		got, ok := t.Metadata[key]
		if !ok || !Equal(got, want) {
			return false
		}
	}
	if m.prog == nil {
		return true
	}

	source, _ := t.Metadata["source"].(string)
	out, _, err := m.prog.Eval(map[string]any{
		"thread_id":     t.ThreadID,
		"checkpoint_ns": t.Namespace,
		"checkpoint_id": t.CheckpointID,
		"source":        source,
		"step":          toInt64(t.Metadata["step"]),
		"metadata":      t.Metadata,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// Equal compares a stored metadata value with a filter value.
// Numbers compare by value regardless of Go type, so a decoded float64(1)
// equals an int 1. Everything else uses deep equality.
func Equal(got, want any) bool {
	gf, gNum := toFloat64(got)
	wf, wNum := toFloat64(want)
	if gNum && wNum {
		return gf == wf
	}
	return reflect.DeepEqual(got, want)
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}

func toInt64(v any) int64 {
	f, ok := toFloat64(v)
	if !ok {
		return 0
	}
	return int64(f)
}
