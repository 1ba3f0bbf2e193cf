package dsl

import (
	"strings"

	"github.com/everydev1618/goconvo/schema"
)

// StatementKind is the primary operation of a Statement.
type StatementKind int

const (
	KindValue StatementKind = iota
	KindCall
	KindRef
	KindKeyword
)

// Statement is a node of the call tree. Exactly one of Value, Fn, Ref or
// Keyword is its primary operation; Params is only meaningful for calls.
type Statement struct {
	Value   any          `json:"value,omitempty" yaml:"value,omitempty"`
	Fn      string       `json:"fn,omitempty" yaml:"fn,omitempty"`
	FnPath  []string     `json:"fnPath,omitempty" yaml:"fnPath,omitempty"`
	Params  []*Statement `json:"params,omitempty" yaml:"params,omitempty"`
	Ref     string       `json:"ref,omitempty" yaml:"ref,omitempty"`
	RefPath []string     `json:"refPath,omitempty" yaml:"refPath,omitempty"`
	Keyword string       `json:"keyword,omitempty" yaml:"keyword,omitempty"`

	// Set names the variable the statement's result is assigned to.
	Set     string   `json:"set,omitempty" yaml:"set,omitempty"`
	SetPath []string `json:"setPath,omitempty" yaml:"setPath,omitempty"`

	// Label and Opt name a parameter, both in declarations and in
	// labeled constructions like map(a:1).
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Opt   bool   `json:"opt,omitempty" yaml:"opt,omitempty"`

	// Shared forces the assignment into the shared variable table.
	Shared bool `json:"shared,omitempty" yaml:"shared,omitempty"`

	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`
	Tags    []Tag  `json:"tags,omitempty" yaml:"tags,omitempty"`

	Start int `json:"s" yaml:"s"`
	End   int `json:"e" yaml:"e"`
}

// Kind returns the statement's primary operation.
func (s *Statement) Kind() StatementKind {
	switch {
	case s.Fn != "":
		return KindCall
	case s.Ref != "":
		return KindRef
	case s.Keyword != "":
		return KindKeyword
	default:
		return KindValue
	}
}

// FnName returns the dotted callee name.
func (s *Statement) FnName() string {
	return joinPath(s.Fn, s.FnPath)
}

// RefName returns the dotted reference name.
func (s *Statement) RefName() string {
	return joinPath(s.Ref, s.RefPath)
}

// Tag returns the value of the named tag.
func (s *Statement) Tag(name string) (string, bool) {
	return findTag(s.Tags, name)
}

func joinPath(root string, path []string) string {
	if len(path) == 0 {
		return root
	}
	return root + "." + strings.Join(path, ".")
}

// Tag is an @name value annotation.
type Tag struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

func findTag(tags []Tag, name string) (string, bool) {
	for _, t := range tags {
		if t.Name == name {
			return t.Value, true
		}
	}
	return "", false
}

// Function is a parsed function definition, proxy call or top-level block.
type Function struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Params declares the parameters, each optionally labeled, typed and
	// optional. For proxy calls Params holds the call arguments.
	Params []*Statement `json:"params,omitempty" yaml:"params,omitempty"`

	// Body is nil for proxy and extern-backed declarations.
	Body []*Statement `json:"body,omitempty" yaml:"body,omitempty"`

	// ParamsName exposes the whole argument object inside the body.
	ParamsName string `json:"paramsName,omitempty" yaml:"paramsName,omitempty"`
	ParamType  string `json:"paramType,omitempty" yaml:"paramType,omitempty"`
	ReturnType string `json:"returnType,omitempty" yaml:"returnType,omitempty"`

	// Local functions are not exposed to the external orchestrator.
	Local bool `json:"local,omitempty" yaml:"local,omitempty"`

	// Call marks a proxy invocation of an earlier defined function.
	Call bool `json:"call,omitempty" yaml:"call,omitempty"`

	// TopLevel marks a do/define/result block run immediately rather
	// than a callable unit.
	TopLevel bool `json:"topLevel,omitempty" yaml:"topLevel,omitempty"`

	Tags []Tag `json:"tags,omitempty" yaml:"tags,omitempty"`

	argsSchema   schema.Schema
	returnSchema schema.Schema
	bodyStmt     *Statement
}

// HasBody reports whether the function carries its own body.
func (f *Function) HasBody() bool {
	return f.Body != nil
}

// Message is one parsed "> ..." block. Exactly one of Content, Statement
// and Fn is set.
type Message struct {
	Role      string     `json:"role" yaml:"role"`
	Content   string     `json:"content,omitempty" yaml:"content,omitempty"`
	Statement *Statement `json:"statement,omitempty" yaml:"statement,omitempty"`
	Fn        *Function  `json:"fn,omitempty" yaml:"fn,omitempty"`
	Tags      []Tag      `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Tag returns the value of the named tag.
func (m *Message) Tag(name string) (string, bool) {
	return findTag(m.Tags, name)
}
