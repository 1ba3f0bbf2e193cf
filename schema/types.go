// Package schema maps convo type values onto runtime validators.
//
// A type value is what evaluating map(...), array(...) or enum(...) over
// type arguments produces. FromValue turns any such value, or any plain
// data value, into a Schema that validates and normalizes input.
package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Base type names.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInt     = "int"
	TypeTime    = "time"
	TypeVoid    = "void"
	TypeBoolean = "boolean"
	TypeAny     = "any"
	TypeMap     = "map"
	TypeArray   = "array"
)

// BaseTypes lists every base type name in declaration order.
var BaseTypes = []string{
	TypeString, TypeNumber, TypeInt, TypeTime, TypeVoid,
	TypeBoolean, TypeAny, TypeMap, TypeArray,
}

// IsBaseType reports whether name is one of the base type names.
func IsBaseType(name string) bool {
	for _, b := range BaseTypes {
		if b == name {
			return true
		}
	}
	return false
}

// Kind identifies what a TypeValue describes.
type Kind int

const (
	KindBase Kind = iota
	KindEnum
	KindMap
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindEnum:
		return "enum"
	case KindMap:
		return "map"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Field is one labeled entry of a map type value.
type Field struct {
	Name        string `json:"name" yaml:"name"`
	Type        any    `json:"type" yaml:"type"`
	Optional    bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// TypeValue is a runtime value that describes a schema rather than data.
type TypeValue struct {
	Kind Kind

	// Base is set for KindBase.
	Base string

	// Values holds the closed set of literals for KindEnum.
	Values []any

	// Fields holds the ordered fields of a KindMap value.
	Fields []Field

	// Elem is the element type or example value of a KindArray value.
	Elem any

	// Description comes from doc comments attached to the defining statement.
	Description string
}

// Base returns a base type value.
func Base(name string) *TypeValue {
	return &TypeValue{Kind: KindBase, Base: name}
}

// Enum returns an enum type value over values.
func Enum(values ...any) *TypeValue {
	return &TypeValue{Kind: KindEnum, Values: values}
}

// Map returns a map type value with the given fields.
func Map(fields ...Field) *TypeValue {
	return &TypeValue{Kind: KindMap, Fields: fields}
}

// Array returns an array type value whose elements match elem.
func Array(elem any) *TypeValue {
	return &TypeValue{Kind: KindArray, Elem: elem}
}

// Field looks up a map field by name.
func (t *TypeValue) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// String renders the type value in convo source syntax.
func (t *TypeValue) String() string {
	switch t.Kind {
	case KindBase:
		return t.Base
	case KindEnum:
		parts := make([]string, len(t.Values))
		for i, v := range t.Values {
			parts[i] = FormatLiteral(v)
		}
		return "enum(" + strings.Join(parts, " ") + ")"
	case KindMap:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			sep := ":"
			if f.Optional {
				sep = "?:"
			}
			parts[i] = f.Name + sep + FormatLiteral(f.Type)
		}
		return "map(" + strings.Join(parts, " ") + ")"
	case KindArray:
		return "array(" + FormatLiteral(t.Elem) + ")"
	}
	return "any"
}

// MarshalYAML renders type values as their source form.
func (t *TypeValue) MarshalYAML() (any, error) {
	return t.String(), nil
}

// MarshalJSON renders type values as their source form.
func (t *TypeValue) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.String())), nil
}

// Optional marks a value as not required inside a labeled construction.
type Optional struct {
	Value any
}

type nullValue struct{}

// Null is the explicit null value. Go nil stands for undefined.
var Null = nullValue{}

func (nullValue) String() string { return "null" }

func (nullValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func (nullValue) MarshalYAML() (any, error) { return nil, nil }

// IsNull reports whether v is the explicit null value.
func IsNull(v any) bool {
	_, ok := v.(nullValue)
	return ok
}

// FormatLiteral renders a value as convo source.
func FormatLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "undefined"
	case nullValue:
		return "null"
	case string:
		return Quote(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case *TypeValue:
		return x.String()
	case Optional:
		return "optional(" + FormatLiteral(x.Value) + ")"
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = FormatLiteral(e)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = formatKey(k) + ":" + FormatLiteral(x[k])
		}
		return "{" + strings.Join(parts, " ") + "}"
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return Quote(fmt.Sprint(v))
}

// Quote renders s as a double quoted convo string. Embed openers are
// escaped so the text never re-enters statement parsing.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				b.WriteByte('\\')
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func formatKey(k string) string {
	if k == "" {
		return `""`
	}
	for i, r := range k {
		ident := r == '_' || r == '$' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9')
		if !ident {
			return Quote(k)
		}
	}
	return k
}
