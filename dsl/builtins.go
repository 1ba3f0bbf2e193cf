package dsl

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/everydev1618/goconvo/schema"
)

func builtin(name string, ctrl *FlowController, impl ScopeFunc) *FunctionEntry {
	return &FunctionEntry{Name: name, Kind: FuncBuiltin, Controller: ctrl, Impl: impl}
}

// builtins returns a fresh builtin registry.
func builtins() map[string]*FunctionEntry {
	entries := []*FunctionEntry{
		builtin("if", ifControl, ifImpl),
		builtin("elif", elifControl, ifImpl),
		builtin("then", thenControl, lastParam),
		builtin("else", elseControl, lastParam),
		builtin("while", whileControl, noValue),
		builtin("foreach", foreachControl, noValue),
		builtin("in", inControl, inImpl),
		builtin("do", discardControl, lastParam),
		builtin("break", discardControl, breakImpl),
		builtin("return", discardControl, returnImpl),

		builtin("and", andControl, andImpl),
		builtin("or", orControl, orImpl),
		builtin("not", nil, notImpl),
		builtin("eq", nil, compareImpl(func(c int) bool { return c == 0 })),
		builtin("neq", nil, compareImpl(func(c int) bool { return c != 0 })),
		builtin("gt", nil, compareImpl(func(c int) bool { return c > 0 })),
		builtin("gte", nil, compareImpl(func(c int) bool { return c >= 0 })),
		builtin("lt", nil, compareImpl(func(c int) bool { return c < 0 })),
		builtin("lte", nil, compareImpl(func(c int) bool { return c <= 0 })),

		builtin("add", nil, addImpl),
		builtin("sub", nil, arith("sub", func(a, b float64) (float64, error) { return a - b, nil })),
		builtin("mul", nil, arith("mul", func(a, b float64) (float64, error) { return a * b, nil })),
		builtin("div", nil, arith("div", func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, errors.New("division by zero")
			}
			return a / b, nil
		})),
		builtin("mod", nil, arith("mod", func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, errors.New("division by zero")
			}
			return math.Mod(a, b), nil
		})),
		builtin("pow", nil, arith("pow", func(a, b float64) (float64, error) { return math.Pow(a, b), nil })),
		builtin("inc", nil, stepImpl(1)),
		builtin("dec", nil, stepImpl(-1)),

		{Name: "map", Kind: FuncBuiltin, Controller: labelControl, Impl: mapImpl, Type: schema.Base(schema.TypeMap)},
		{Name: "array", Kind: FuncBuiltin, Impl: arrayImpl, Type: schema.Base(schema.TypeArray)},
		builtin("enum", nil, enumImpl),
		builtin("optional", nil, optionalImpl),

		builtin("md", nil, mdImpl),
		builtin("toString", nil, toStringImpl),
		builtin("toJson", nil, toJSONImpl),
		builtin("isUndefined", &FlowController{TolerantRefs: true}, isUndefinedImpl),
		builtin("len", nil, lenImpl),
		builtin("now", nil, nowImpl),
		builtin("sleep", nil, sleepImpl),
		builtin("print", nil, printImpl),
	}
	out := make(map[string]*FunctionEntry, len(entries))
	for _, e := range entries {
		out[e.Name] = e
	}
	return out
}

func lastParam(s *Scope, _ *Context) (any, error) {
	if len(s.paramValues) == 0 {
		return nil, nil
	}
	return s.paramValues[len(s.paramValues)-1], nil
}

func noValue(*Scope, *Context) (any, error) {
	return nil, nil
}

func breakImpl(s *Scope, c *Context) (any, error) {
	s.bl = true
	return lastParam(s, c)
}

func returnImpl(s *Scope, c *Context) (any, error) {
	s.r = true
	return lastParam(s, c)
}

func andImpl(s *Scope, _ *Context) (any, error) {
	if len(s.paramValues) == 0 {
		return true, nil
	}
	return truthy(s.last), nil
}

func orImpl(s *Scope, _ *Context) (any, error) {
	if len(s.paramValues) == 0 {
		return false, nil
	}
	return truthy(s.last), nil
}

func notImpl(s *Scope, _ *Context) (any, error) {
	for _, v := range s.paramValues {
		if truthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// truthy follows the usual scripting rules. Markers for a false branch and
// loop exhaustion are falsy.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case *marker:
		return x != ifFalse && x != loopEnd
	}
	if schema.IsNull(v) {
		return false
	}
	if f, ok := schema.ToFloat(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

func compareImpl(ok func(int) bool) ScopeFunc {
	return func(s *Scope, _ *Context) (any, error) {
		if len(s.paramValues) < 2 {
			return nil, errors.New("comparison needs two values")
		}
		a, b := clean(s.paramValues[0]), clean(s.paramValues[1])
		if schema.Equal(a, b) {
			return ok(0), nil
		}
		c, comparable := compare(a, b)
		if !comparable {
			// Unordered values only support (in)equality.
			return ok(1) && ok(-1), nil
		}
		return ok(c), nil
	}
}

func compare(a, b any) (int, bool) {
	if fa, ok := schema.ToFloat(a); ok {
		if fb, ok := schema.ToFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

// addImpl sums numbers, concatenates strings and arrays and merges maps.
func addImpl(s *Scope, _ *Context) (any, error) {
	values := make([]any, len(s.paramValues))
	for i, v := range s.paramValues {
		values[i] = clean(v)
	}
	if len(values) == 0 {
		return nil, nil
	}
	switch first := values[0].(type) {
	case []any:
		out := append([]any(nil), first...)
		for _, v := range values[1:] {
			if items, ok := schema.ToSlice(v); ok {
				out = append(out, items...)
			} else {
				out = append(out, v)
			}
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(first))
		for _, v := range values {
			m, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("add: cannot merge %s into map", typeName(v))
			}
			for k, x := range m {
				out[k] = x
			}
		}
		return out, nil
	}
	for _, v := range values {
		if _, ok := v.(string); ok {
			var b strings.Builder
			for _, x := range values {
				b.WriteString(toString(x))
			}
			return b.String(), nil
		}
	}
	sum := 0.0
	for _, v := range values {
		f, ok := schema.ToFloat(v)
		if !ok {
			return nil, fmt.Errorf("add: expected number, received %s", typeName(v))
		}
		sum += f
	}
	return sum, nil
}

func arith(name string, op func(a, b float64) (float64, error)) ScopeFunc {
	return func(s *Scope, _ *Context) (any, error) {
		if len(s.paramValues) == 0 {
			return nil, fmt.Errorf("%s: expected at least one number", name)
		}
		var acc float64
		for i, v := range s.paramValues {
			f, ok := schema.ToFloat(v)
			if !ok {
				return nil, fmt.Errorf("%s: expected number, received %s", name, typeName(v))
			}
			if i == 0 {
				acc = f
				continue
			}
			var err error
			if acc, err = op(acc, f); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}
		return acc, nil
	}
}

// stepImpl adds delta to a referenced variable and returns the new value.
func stepImpl(delta float64) ScopeFunc {
	return func(s *Scope, c *Context) (any, error) {
		if len(s.s.Params) == 0 || s.s.Params[0].Kind() != KindRef {
			return nil, errors.New("expected a variable reference")
		}
		f, _ := schema.ToFloat(s.Param(0))
		by := delta
		if len(s.paramValues) > 1 {
			n, ok := schema.ToFloat(s.paramValues[1])
			if !ok {
				return nil, fmt.Errorf("expected number, received %s", typeName(s.paramValues[1]))
			}
			by = delta * n
		}
		next := f + by
		if err := c.SetRef(s.s.Params[0], next, s); err != nil {
			return nil, err
		}
		return next, nil
	}
}

// mapImpl builds an object, or a map type value when any field holds a
// type or is optional.
func mapImpl(s *Scope, _ *Context) (any, error) {
	isType := len(s.optional) > 0
	for _, v := range s.paramValues {
		if isTypeLike(v) {
			isType = true
			break
		}
	}

	if !isType {
		out := make(map[string]any, len(s.paramValues))
		for i, p := range s.s.Params {
			v := clean(s.Param(i))
			if p.Label != "" {
				out[p.Label] = v
				continue
			}
			if m, ok := v.(map[string]any); ok {
				for k, x := range m {
					out[k] = x
				}
			}
		}
		return out, nil
	}

	t := schema.Map()
	t.Description = s.s.Comment
	put := func(f schema.Field) {
		for i := range t.Fields {
			if t.Fields[i].Name == f.Name {
				t.Fields[i] = f
				return
			}
		}
		t.Fields = append(t.Fields, f)
	}
	for i, p := range s.s.Params {
		v := clean(s.Param(i))
		if p.Label == "" {
			switch x := v.(type) {
			case *schema.TypeValue:
				if x.Kind == schema.KindMap {
					for _, f := range x.Fields {
						put(f)
					}
				}
			case map[string]any:
				for _, k := range sortedKeys(x) {
					put(schema.Field{Name: k, Type: x[k]})
				}
			}
			continue
		}
		f := schema.Field{Name: p.Label, Type: v, Optional: s.optional[p.Label], Description: p.Comment}
		if o, ok := v.(schema.Optional); ok {
			f.Type, f.Optional = o.Value, true
		}
		put(f)
	}
	return t, nil
}

func isTypeLike(v any) bool {
	switch x := v.(type) {
	case *schema.TypeValue:
		return true
	case schema.Optional:
		return true
	case []any:
		return len(x) > 0 && isTypeLike(x[0])
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func arrayImpl(s *Scope, _ *Context) (any, error) {
	for _, v := range s.paramValues {
		if _, ok := v.(*schema.TypeValue); ok {
			return schema.Array(s.paramValues[0]), nil
		}
	}
	out := make([]any, len(s.paramValues))
	for i, v := range s.paramValues {
		out[i] = clean(v)
	}
	return out, nil
}

func enumImpl(s *Scope, _ *Context) (any, error) {
	values := make([]any, len(s.paramValues))
	for i, v := range s.paramValues {
		values[i] = clean(v)
	}
	t := schema.Enum(values...)
	t.Description = s.s.Comment
	return t, nil
}

func optionalImpl(s *Scope, c *Context) (any, error) {
	v, _ := lastParam(s, c)
	return schema.Optional{Value: clean(v)}, nil
}

func mdImpl(s *Scope, _ *Context) (any, error) {
	var b strings.Builder
	for _, v := range s.paramValues {
		b.WriteString(toString(clean(v)))
	}
	return b.String(), nil
}

func toStringImpl(s *Scope, c *Context) (any, error) {
	return mdImpl(s, c)
}

func toJSONImpl(s *Scope, c *Context) (any, error) {
	v, _ := lastParam(s, c)
	data, err := json.Marshal(clean(v))
	if err != nil {
		return nil, fmt.Errorf("toJson: %w", err)
	}
	return string(data), nil
}

func isUndefinedImpl(s *Scope, c *Context) (any, error) {
	v, _ := lastParam(s, c)
	return clean(v) == nil, nil
}

func lenImpl(s *Scope, c *Context) (any, error) {
	v, _ := lastParam(s, c)
	switch x := clean(v).(type) {
	case nil:
		return 0.0, nil
	case string:
		return float64(len([]rune(x))), nil
	case map[string]any:
		return float64(len(x)), nil
	case *schema.TypeValue:
		return float64(len(x.Fields)), nil
	default:
		items, ok := schema.ToSlice(x)
		if !ok {
			return nil, fmt.Errorf("len: unsupported %s", typeName(x))
		}
		return float64(len(items)), nil
	}
}

func nowImpl(*Scope, *Context) (any, error) {
	return float64(time.Now().UnixMilli()), nil
}

// sleepImpl resolves to its second parameter after a delay in milliseconds.
func sleepImpl(s *Scope, _ *Context) (any, error) {
	ms, ok := schema.ToFloat(s.Param(0))
	if !ok {
		return nil, errors.New("sleep: expected milliseconds")
	}
	v := clean(s.Param(1))
	f := NewFuture()
	time.AfterFunc(time.Duration(ms*float64(time.Millisecond)), func() { f.Resolve(v) })
	return f, nil
}

func printImpl(s *Scope, c *Context) (any, error) {
	parts := make([]string, len(s.paramValues))
	for i, v := range s.paramValues {
		parts[i] = toString(clean(v))
	}
	line := strings.Join(parts, " ")
	fmt.Fprintln(c.out, line)
	c.logger.Debug("print", "text", line)
	return lastParam(s, c)
}

// toString renders values the way templates embed them.
func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case *schema.TypeValue:
		return x.String()
	case fmt.Stringer:
		return x.String()
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
	if f, ok := schema.ToFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "undefined"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case *schema.TypeValue:
		return "type"
	case *FunctionEntry:
		return "function"
	}
	if schema.IsNull(v) {
		return "null"
	}
	if _, ok := schema.ToFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
