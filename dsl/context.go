package dsl

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/everydev1618/goconvo/schema"
)

// DefaultMaxExecDepth bounds scope nesting, including function recursion.
const DefaultMaxExecDepth = 500

// ExternFunc implements a function declared without a body.
type ExternFunc func(c *Context, args map[string]any) (any, error)

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithLogger sets the logger used for debug and warning records.
func WithLogger(l *slog.Logger) ContextOption {
	return func(c *Context) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOutput sets where print writes. Defaults to os.Stdout.
func WithOutput(w io.Writer) ContextOption {
	return func(c *Context) {
		if w != nil {
			c.out = w
		}
	}
}

// WithMaxDepth overrides DefaultMaxExecDepth.
func WithMaxDepth(n int) ContextOption {
	return func(c *Context) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithSchemaDepth bounds type value to schema conversion.
func WithSchemaDepth(n int) ContextOption {
	return func(c *Context) {
		if n > 0 {
			c.schemaDepth = n
		}
	}
}

// WithExterns supplies implementations for body-less functions.
func WithExterns(externs map[string]ExternFunc) ContextOption {
	return func(c *Context) {
		for name, fn := range externs {
			c.externs[name] = fn
		}
	}
}

// WithSharedVars seeds the shared table, e.g. from a stored snapshot.
// Seeded values are not reported as shared setters.
func WithSharedVars(vars map[string]any) ContextOption {
	return func(c *Context) {
		for name, v := range vars {
			if !c.reserved[name] {
				c.shared[name] = v
			}
		}
	}
}

// WithScopeFunction registers a host function next to the builtins.
func WithScopeFunction(name string, impl ScopeFunc, ctrl *FlowController) ContextOption {
	return func(c *Context) {
		c.shared[name] = &FunctionEntry{Name: name, Kind: FuncHost, Impl: impl, Controller: ctrl}
		c.reserved[name] = true
	}
}

// Context evaluates statement trees. It owns the shared variable table
// and the table of suspended scopes.
//
// A Context is not safe for concurrent use. Futures may settle on another
// goroutine as long as only one evaluation is in flight.
type Context struct {
	shared        map[string]any
	reserved      map[string]bool
	sharedSetters []string
	setterIndex   map[string]bool
	suspended     map[string]*Scope
	functions     map[string]*Function
	externs       map[string]ExternFunc

	bodyEntry *FunctionEntry

	// mu guards queue, draining and suspended. Only the draining
	// goroutine evaluates.
	mu       sync.Mutex
	queue    []func()
	draining bool

	logger      *slog.Logger
	out         io.Writer
	maxDepth    int
	schemaDepth int
}

// NewContext creates an execution context with the builtin library loaded.
func NewContext(opts ...ContextOption) *Context {
	c := &Context{
		shared:      make(map[string]any),
		reserved:    make(map[string]bool),
		setterIndex: make(map[string]bool),
		suspended:   make(map[string]*Scope),
		functions:   make(map[string]*Function),
		externs:     make(map[string]ExternFunc),
		logger:      slog.Default(),
		out:         os.Stdout,
		maxDepth:    DefaultMaxExecDepth,
		schemaDepth: schema.DefaultMaxDepth,
	}
	c.bodyEntry = &FunctionEntry{
		Name:       "function body",
		Kind:       FuncBuiltin,
		Controller: &FlowController{DiscardParams: true, CatchReturn: true},
		Impl:       lastParam,
	}
	for name, entry := range builtins() {
		c.shared[name] = entry
		c.reserved[name] = true
	}
	for _, name := range schema.BaseTypes {
		if _, isFn := c.shared[name]; !isFn {
			c.shared[name] = schema.Base(name)
		}
		c.reserved[name] = true
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Logger returns the context's logger.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// Shared returns a shared variable.
func (c *Context) Shared(name string) (any, bool) {
	v, ok := c.shared[name]
	return v, ok
}

// SharedVars returns a copy of the shared table without builtin slots.
func (c *Context) SharedVars() map[string]any {
	out := make(map[string]any, len(c.shared))
	for name, v := range c.shared {
		if c.reserved[name] {
			continue
		}
		if _, isFn := v.(*FunctionEntry); isFn {
			continue
		}
		out[name] = v
	}
	return out
}

// SharedSetters returns the names written into the shared table, in
// first-write order.
func (c *Context) SharedSetters() []string {
	return append([]string(nil), c.sharedSetters...)
}

// ClearSharedSetters resets change tracking.
func (c *Context) ClearSharedSetters() {
	c.sharedSetters = nil
	c.setterIndex = make(map[string]bool)
}

// Suspended returns the number of scopes waiting on pending values.
func (c *Context) Suspended() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.suspended)
}

// Function returns a function registered by LoadFunctions.
func (c *Context) Function(name string) (*Function, bool) {
	fn, ok := c.functions[name]
	return fn, ok
}

func (c *Context) recordSetter(name string) {
	if c.setterIndex[name] {
		return
	}
	c.setterIndex[name] = true
	c.sharedSetters = append(c.sharedSetters, name)
}

// GetVar resolves name in the scope's local table, then the shared table.
// Missing path segments yield undefined; a missing root is an error
// unless tolerant is set.
func (c *Context) GetVar(name string, path []string, scope *Scope, tolerant bool) (any, error) {
	var (
		v     any
		found bool
	)
	if scope != nil && scope.vars != nil {
		v, found = scope.vars[name]
	}
	if !found {
		v, found = c.shared[name]
	}
	if !found {
		if tolerant {
			return nil, nil
		}
		return nil, &ExecError{Err: ErrVariableNotDefined, Detail: name}
	}
	for _, key := range path {
		v = property(v, key)
	}
	return v, nil
}

// SetVar assigns value. Writes go to the shared table when shared is set
// or the scope has no local table, otherwise to the scope's locals.
func (c *Context) SetVar(shared bool, value any, name string, path []string, scope *Scope) error {
	toShared := shared || scope == nil || scope.vars == nil
	if !toShared && len(path) > 0 {
		if _, local := scope.vars[name]; !local {
			_, toShared = c.shared[name]
		}
	}

	if toShared && c.reserved[name] {
		return &ExecError{Err: ErrReservedName, Detail: name}
	}
	target := c.shared
	if !toShared {
		target = scope.vars
	}

	if len(path) == 0 {
		target[name] = value
	} else {
		obj, ok := target[name]
		if !ok {
			return &ExecError{Err: ErrVariableNotDefined, Detail: name}
		}
		for i, key := range path[:len(path)-1] {
			obj = property(obj, key)
			if obj == nil {
				return &ExecError{Err: ErrVariableNotDefined, Detail: joinPath(name, path[:i+1])}
			}
		}
		if err := setProperty(obj, path[len(path)-1], value); err != nil {
			return &ExecError{Err: err, Detail: joinPath(name, path)}
		}
	}

	if toShared {
		if _, isFn := value.(*FunctionEntry); !isFn {
			c.recordSetter(name)
		}
	}
	return nil
}

// SetRef writes value back to the variable a reference statement names,
// wherever that variable currently lives.
func (c *Context) SetRef(ref *Statement, value any, scope *Scope) error {
	if ref == nil || ref.Kind() != KindRef {
		return &ExecError{Err: fmt.Errorf("expected a variable reference"), Statement: ref}
	}
	shared := true
	if scope != nil && scope.vars != nil {
		if _, local := scope.vars[ref.Ref]; local {
			shared = false
		}
	}
	return c.SetVar(shared, value, ref.Ref, ref.RefPath, scope)
}

func property(v any, key string) any {
	switch obj := v.(type) {
	case map[string]any:
		return obj[key]
	case []any:
		if key == "length" {
			return float64(len(obj))
		}
		if i, err := strconv.Atoi(key); err == nil && i >= 0 && i < len(obj) {
			return obj[i]
		}
	case string:
		if key == "length" {
			return float64(len([]rune(obj)))
		}
	case *schema.TypeValue:
		if f, ok := obj.Field(key); ok {
			return f.Type
		}
	}
	return nil
}

func setProperty(obj any, key string, value any) error {
	switch o := obj.(type) {
	case map[string]any:
		o[key] = value
		return nil
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(o) {
			return fmt.Errorf("index %q out of range", key)
		}
		o[i] = value
		return nil
	}
	return fmt.Errorf("cannot set property %q on %s", key, typeName(obj))
}
