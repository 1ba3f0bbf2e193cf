package schema

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"
)

// DefaultMaxDepth bounds FromValue recursion when callers have no opinion.
const DefaultMaxDepth = 20

// Schema validates a value and returns its normalized form.
type Schema interface {
	// Parse returns the normalized data or a *ValidationError.
	Parse(value any) (any, error)

	// JSONSchema returns the JSON Schema form used for LLM tool definitions.
	JSONSchema() map[string]any
}

// ValidationError describes why a value did not match a schema.
type ValidationError struct {
	Path    []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	return strings.Join(e.Path, ".") + ": " + e.Message
}

func mismatch(want string, got any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf("expected %s, received %s", want, describe(got))}
}

func prefixed(name string, err error) error {
	if ve, ok := err.(*ValidationError); ok {
		return &ValidationError{Path: append([]string{name}, ve.Path...), Message: ve.Message}
	}
	return &ValidationError{Path: []string{name}, Message: err.Error()}
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "undefined"
	case nullValue:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

// FromValue derives a schema from a type value or data value. Recursion
// deeper than maxDepth degrades to an always-valid schema.
func FromValue(value any, maxDepth int) Schema {
	return fromValue(value, maxDepth, 0)
}

func fromValue(value any, maxDepth, depth int) Schema {
	if depth > maxDepth {
		return anySchema{}
	}
	next := depth + 1
	switch v := value.(type) {
	case nil:
		return voidSchema{}
	case nullValue:
		return nullSchema{}
	case Optional:
		return optionalSchema{inner: fromValue(v.Value, maxDepth, next)}
	case *Optional:
		return optionalSchema{inner: fromValue(v.Value, maxDepth, next)}
	case *TypeValue:
		return typeSchema(v, maxDepth, next)
	case []any:
		if len(v) == 0 {
			return arraySchema{elem: anySchema{}}
		}
		return arraySchema{elem: fromValue(v[0], maxDepth, next)}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := objectSchema{}
		for _, k := range keys {
			fv := v[k]
			f := objectField{name: k, schema: fromValue(fv, maxDepth, next)}
			switch fv.(type) {
			case Optional, *Optional:
				f.optional = true
			}
			obj.fields = append(obj.fields, f)
		}
		return obj
	case string, bool:
		return literalSchema{value: v}
	}
	if f, ok := toFloat(value); ok {
		return literalSchema{value: f}
	}
	return anySchema{}
}

func typeSchema(t *TypeValue, maxDepth, depth int) Schema {
	switch t.Kind {
	case KindBase:
		return baseSchema(t.Base)
	case KindEnum:
		return enumSchema{values: t.Values, description: t.Description}
	case KindArray:
		if t.Elem == nil {
			return arraySchema{elem: anySchema{}}
		}
		return arraySchema{elem: fromValue(t.Elem, maxDepth, depth)}
	case KindMap:
		obj := objectSchema{description: t.Description}
		for _, f := range t.Fields {
			ft := f.Type
			opt := f.Optional
			if o, ok := ft.(Optional); ok {
				ft, opt = o.Value, true
			}
			obj.fields = append(obj.fields, objectField{
				name:        f.Name,
				schema:      fromValue(ft, maxDepth, depth),
				optional:    opt,
				description: f.Description,
			})
		}
		return obj
	}
	return anySchema{}
}

func baseSchema(name string) Schema {
	switch name {
	case TypeString:
		return stringSchema{}
	case TypeNumber:
		return numberSchema{}
	case TypeInt:
		return numberSchema{integer: true}
	case TypeTime:
		return timeSchema{}
	case TypeVoid:
		return voidSchema{}
	case TypeBoolean:
		return boolSchema{}
	case TypeMap:
		return recordSchema{}
	case TypeArray:
		return arraySchema{elem: anySchema{}}
	}
	return anySchema{}
}

type anySchema struct{}

func (anySchema) Parse(v any) (any, error)    { return v, nil }
func (anySchema) JSONSchema() map[string]any { return map[string]any{} }

type stringSchema struct{}

func (stringSchema) Parse(v any) (any, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return nil, mismatch("string", v)
}

func (stringSchema) JSONSchema() map[string]any { return map[string]any{"type": "string"} }

type numberSchema struct {
	integer bool
}

func (s numberSchema) Parse(v any) (any, error) {
	f, ok := toFloat(v)
	if !ok {
		return nil, mismatch("number", v)
	}
	if s.integer && f != math.Trunc(f) {
		return nil, &ValidationError{Message: fmt.Sprintf("expected integer, received %v", f)}
	}
	return f, nil
}

func (s numberSchema) JSONSchema() map[string]any {
	if s.integer {
		return map[string]any{"type": "integer"}
	}
	return map[string]any{"type": "number"}
}

// timeSchema accepts numeric millisecond timestamps and time.Time.
type timeSchema struct{}

func (timeSchema) Parse(v any) (any, error) {
	if t, ok := v.(time.Time); ok {
		return float64(t.UnixMilli()), nil
	}
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	return nil, mismatch("timestamp", v)
}

func (timeSchema) JSONSchema() map[string]any {
	return map[string]any{"type": "number", "description": "unix timestamp in milliseconds"}
}

type boolSchema struct{}

func (boolSchema) Parse(v any) (any, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return nil, mismatch("boolean", v)
}

func (boolSchema) JSONSchema() map[string]any { return map[string]any{"type": "boolean"} }

type voidSchema struct{}

func (voidSchema) Parse(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return nil, mismatch("undefined", v)
}

func (voidSchema) JSONSchema() map[string]any { return map[string]any{"type": "null"} }

type nullSchema struct{}

func (nullSchema) Parse(v any) (any, error) {
	if v == nil || IsNull(v) {
		return Null, nil
	}
	return nil, mismatch("null", v)
}

func (nullSchema) JSONSchema() map[string]any { return map[string]any{"type": "null"} }

type literalSchema struct {
	value any
}

func (s literalSchema) Parse(v any) (any, error) {
	if Equal(s.value, v) {
		return s.value, nil
	}
	return nil, &ValidationError{Message: fmt.Sprintf("expected %s, received %s", FormatLiteral(s.value), FormatLiteral(v))}
}

func (s literalSchema) JSONSchema() map[string]any { return map[string]any{"const": s.value} }

type enumSchema struct {
	values      []any
	description string
}

func (s enumSchema) Parse(v any) (any, error) {
	for _, e := range s.values {
		if Equal(e, v) {
			return e, nil
		}
	}
	names := make([]string, len(s.values))
	for i, e := range s.values {
		names[i] = FormatLiteral(e)
	}
	return nil, &ValidationError{Message: fmt.Sprintf("expected one of %s, received %s", strings.Join(names, ", "), FormatLiteral(v))}
}

func (s enumSchema) JSONSchema() map[string]any {
	out := map[string]any{"enum": s.values}
	allStrings := len(s.values) > 0
	for _, v := range s.values {
		if _, ok := v.(string); !ok {
			allStrings = false
		}
	}
	if allStrings {
		out["type"] = "string"
	}
	if s.description != "" {
		out["description"] = s.description
	}
	return out
}

type objectField struct {
	name        string
	schema      Schema
	optional    bool
	description string
}

type objectSchema struct {
	fields      []objectField
	description string
}

// Parse keeps only declared fields, the way a strict object parser strips
// unknown keys.
func (s objectSchema) Parse(v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, mismatch("object", v)
	}
	out := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		fv, present := m[f.name]
		if !present || fv == nil {
			if f.optional || IsOptional(f.schema) {
				continue
			}
			return nil, &ValidationError{Path: []string{f.name}, Message: "required"}
		}
		data, err := f.schema.Parse(fv)
		if err != nil {
			return nil, prefixed(f.name, err)
		}
		out[f.name] = data
	}
	return out, nil
}

func (s objectSchema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.fields))
	required := []string{}
	for _, f := range s.fields {
		p := f.schema.JSONSchema()
		if f.description != "" {
			p["description"] = f.description
		}
		props[f.name] = p
		if !f.optional && !IsOptional(f.schema) {
			required = append(required, f.name)
		}
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
	if s.description != "" {
		out["description"] = s.description
	}
	return out
}

type recordSchema struct{}

func (recordSchema) Parse(v any) (any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	return nil, mismatch("object", v)
}

func (recordSchema) JSONSchema() map[string]any { return map[string]any{"type": "object"} }

type arraySchema struct {
	elem Schema
}

func (s arraySchema) Parse(v any) (any, error) {
	items, ok := toSlice(v)
	if !ok {
		return nil, mismatch("array", v)
	}
	out := make([]any, len(items))
	for i, item := range items {
		data, err := s.elem.Parse(item)
		if err != nil {
			return nil, prefixed(fmt.Sprint(i), err)
		}
		out[i] = data
	}
	return out, nil
}

func (s arraySchema) JSONSchema() map[string]any {
	return map[string]any{"type": "array", "items": s.elem.JSONSchema()}
}

type optionalSchema struct {
	inner Schema
}

func (s optionalSchema) Parse(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return s.inner.Parse(v)
}

func (s optionalSchema) JSONSchema() map[string]any { return s.inner.JSONSchema() }

// IsOptional reports whether s accepts undefined in place of a value.
func IsOptional(s Schema) bool {
	switch s.(type) {
	case optionalSchema, anySchema, voidSchema:
		return true
	}
	return false
}

// ToSlice converts any Go slice or array to []any.
func ToSlice(v any) ([]any, bool) { return toSlice(v) }

func toSlice(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Equal compares two convo values, treating all numeric types alike.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string, bool, nullValue:
		return a == b
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			if !Equal(v, y[k]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// ToFloat converts any Go numeric value to float64.
func ToFloat(v any) (float64, bool) { return toFloat(v) }

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
