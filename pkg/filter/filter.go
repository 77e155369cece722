// Package filter selects rows and listed objects on the client side, either
// with compiled expr-lang expressions or with exact field matches.
package filter

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/mstr-client/pkg/pagination"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/file"
	"github.com/expr-lang/expr/vm"
)

// Filter decides whether a row is kept. A nil *Filter keeps every row.
type Filter struct {
	expression string
	program    *vm.Program
	equals     map[string]any
}

// Compile compiles a boolean expression. Row fields are available as
// variables; fields whose names are not identifiers are reachable through
// row, e.g. row["Region@DESC"] == "North".
func Compile(expression string) (*Filter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "empty expression",
			Position:   -1,
		}
	}

	program, err := expr.Compile(expression,
		expr.Env(helperFunctions()),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		pos := -1
		var fileErr *file.Error
		if errors.As(err, &fileErr) {
			pos = fileErr.Column
		}
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "failed to compile expression",
			Position:   pos,
			Err:        err,
		}
	}

	return &Filter{expression: expression, program: program}, nil
}

// Equals returns a filter that keeps rows whose fields equal every given
// value. Keys may address nested objects with dots, e.g. "owner.name".
// Numbers compare by value regardless of their Go type.
func Equals(fields map[string]any) *Filter {
	if len(fields) == 0 {
		return nil
	}
	return &Filter{equals: maps.Clone(fields)}
}

// String returns the expression or a description of the exact-match fields.
func (f *Filter) String() string {
	switch {
	case f == nil:
		return "<all>"
	case f.program != nil:
		return f.expression
	default:
		parts := make([]string, 0, len(f.equals))
		for k, v := range f.equals {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
		return strings.Join(parts, ",")
	}
}

// Match reports whether row passes the filter. Rows that fail evaluation do
// not match.
func (f *Filter) Match(row pagination.Row) bool {
	ok, err := f.Evaluate(row)
	return err == nil && ok
}

// Evaluate is Match with the evaluation error.
func (f *Filter) Evaluate(row pagination.Row) (bool, error) {
	if f == nil {
		return true, nil
	}
	if f.program == nil {
		for key, want := range f.equals {
			got, ok := lookup(row, key)
			if !ok || !equal(got, want) {
				return false, nil
			}
		}
		return true, nil
	}

	result, err := expr.Run(f.program, runtimeEnvironment(row))
	if err != nil {
		return false, &EvaluationError{
			Expression: f.expression,
			Reason:     "failed to evaluate expression",
			Err:        err,
		}
	}
	return result.(bool), nil
}

// Apply returns the rows that pass the filter, in their original order.
func (f *Filter) Apply(rows []pagination.Row) []pagination.Row {
	if f == nil {
		return rows
	}
	kept := make([]pagination.Row, 0, len(rows))
	for _, row := range rows {
		if f.Match(row) {
			kept = append(kept, row)
		}
	}
	return kept
}

// lookup resolves a dotted key through nested maps.
func lookup(row pagination.Row, key string) (any, bool) {
	if v, ok := row[key]; ok {
		return v, true
	}

	var cur any = map[string]any(row)
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func equal(got, want any) bool {
	gf, gok := toFloat(got)
	wf, wok := toFloat(want)
	if gok && wok {
		return gf == wf
	}
	return fmt.Sprint(got) == fmt.Sprint(want)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// helperFunctions are available to every expression.
func helperFunctions() map[string]any {
	env := make(map[string]any, 16)
	addHelperFunctions(env)
	return env
}

func addHelperFunctions(env map[string]any) {
	env["contains"] = func(str, substr string) bool {
		return strings.Contains(strings.ToLower(str), strings.ToLower(substr))
	}
	env["startsWith"] = func(str, prefix string) bool {
		return strings.HasPrefix(strings.ToLower(str), strings.ToLower(prefix))
	}
	env["endsWith"] = func(str, suffix string) bool {
		return strings.HasSuffix(strings.ToLower(str), strings.ToLower(suffix))
	}
	env["lower"] = strings.ToLower
	env["upper"] = strings.ToUpper
	// server timestamps look like 2024-03-01T10:15:00.000+0000
	env["parseTime"] = func(s string) time.Time {
		for _, layout := range []string{"2006-01-02T15:04:05.000-0700", time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
		return time.Time{}
	}
	env["daysAgo"] = func(days int) time.Time {
		return time.Now().AddDate(0, 0, -days)
	}
	env["now"] = time.Now
}

func runtimeEnvironment(row pagination.Row) map[string]any {
	env := make(map[string]any, len(row)+16)
	addHelperFunctions(env)
	for k, v := range row {
		env[k] = v
	}
	env["row"] = map[string]any(row)
	return env
}
