package dsl

import "github.com/everydev1618/goconvo/schema"

// ScopeFunc implements a callable. It reads collected parameter values
// from the scope and may return an unsettled *Future to suspend.
type ScopeFunc func(s *Scope, c *Context) (any, error)

// FuncKind distinguishes callable registry entries.
type FuncKind int

const (
	FuncBuiltin FuncKind = iota
	FuncHost
	FuncUser
)

// StopParams returned from NextParam ends parameter iteration.
const StopParams = -1

// FlowController customizes how the interpreter walks a call's parameters.
type FlowController struct {
	// DiscardParams keeps only the most recent parameter value.
	DiscardParams bool

	// UsesLabels records label name to parameter index.
	UsesLabels bool

	// CatchReturn completes the scope with a returned value instead of
	// propagating the return. Function bodies catch returns.
	CatchReturn bool

	// CatchBreak ends iteration on break instead of propagating it.
	CatchBreak bool

	// KeepData persists the scope's ctrlData in the parent's per-site table.
	KeepData bool

	// TolerantRefs resolves unknown references among the direct
	// parameters to undefined instead of failing.
	TolerantRefs bool

	StartParam      func(s *Scope, c *Context) int
	NextParam       func(s *Scope, index int, value any, c *Context) int
	ShouldExecute   func(s *Scope, c *Context) bool
	SkipValue       func(s *Scope, c *Context) any
	TransformResult func(v any, s *Scope, c *Context) any
}

var noControl = &FlowController{}

var userControl = &FlowController{UsesLabels: true}

// FunctionEntry is a registry slot in the shared table.
type FunctionEntry struct {
	Name       string
	Kind       FuncKind
	Controller *FlowController
	Impl       ScopeFunc

	// Def is set for FuncUser entries.
	Def *Function

	// Type is the type value a bare reference to the entry yields, as for
	// map and array.
	Type *schema.TypeValue
}

// LoadFunctions registers every callable function message. Body-less
// functions are backed by externs keyed by name.
func (c *Context) LoadFunctions(messages []*Message, externs map[string]ExternFunc) error {
	for name, fn := range externs {
		c.externs[name] = fn
	}
	for _, msg := range messages {
		fn := msg.Fn
		if fn == nil || fn.Local || fn.Call || fn.TopLevel {
			continue
		}
		if c.reserved[fn.Name] {
			return &ExecError{Err: ErrReservedName, Fn: fn, Detail: fn.Name}
		}
		if !fn.HasBody() {
			if _, ok := c.externs[fn.Name]; !ok {
				c.logger.Warn("function has no body or extern implementation", "function", fn.Name)
			}
		}
		c.shared[fn.Name] = &FunctionEntry{Name: fn.Name, Kind: FuncUser, Controller: userControl, Def: fn}
		c.functions[fn.Name] = fn
		c.logger.Debug("function registered", "function", fn.Name, "extern", !fn.HasBody())
	}
	return nil
}

// ArgsSchema returns the schema arguments of fn are validated against.
// The schema is derived once and cached on fn.
func (c *Context) ArgsSchema(fn *Function) (schema.Schema, error) {
	if fn.argsSchema != nil {
		return fn.argsSchema, nil
	}
	var value any
	switch {
	case fn.ParamType != "":
		v, ok := c.shared[fn.ParamType]
		if !ok {
			return nil, &ExecError{Err: ErrArgsTypeNotDefined, Fn: fn, Detail: fn.ParamType}
		}
		if !isObjectType(v) {
			return nil, &ExecError{Err: ErrArgsTypeNotAnObject, Fn: fn, Detail: fn.ParamType}
		}
		value = v
	case len(fn.Params) == 0:
		value = schema.Base(schema.TypeAny)
	default:
		v, err := c.evalSync(&Statement{Fn: "map", Params: fn.Params})
		if err != nil {
			return nil, err
		}
		value = v
	}
	fn.argsSchema = schema.FromValue(value, c.schemaDepth)
	return fn.argsSchema, nil
}

// ReturnSchema returns the schema results of fn are validated against.
func (c *Context) ReturnSchema(fn *Function) (schema.Schema, error) {
	if fn.returnSchema != nil {
		return fn.returnSchema, nil
	}
	var value any = schema.Base(schema.TypeAny)
	if fn.ReturnType != "" {
		v, ok := c.shared[fn.ReturnType]
		if !ok {
			return nil, &ExecError{Err: ErrReturnTypeNotDefined, Fn: fn, Detail: fn.ReturnType}
		}
		if e, isFn := v.(*FunctionEntry); isFn && e.Type != nil {
			v = e.Type
		}
		value = v
	}
	fn.returnSchema = schema.FromValue(value, c.schemaDepth)
	return fn.returnSchema, nil
}

func isObjectType(v any) bool {
	switch t := v.(type) {
	case *schema.TypeValue:
		return t.Kind == schema.KindMap
	case *FunctionEntry:
		return t.Type != nil && t.Type.Base == schema.TypeMap
	case map[string]any:
		return true
	}
	return false
}

// ExecuteFunction calls fn with args. The result is an unsettled *Future
// when evaluation suspended. Proxy calls need ExecuteFunctionAsync.
func (c *Context) ExecuteFunction(fn *Function, args map[string]any) (any, error) {
	if fn.Call {
		return nil, &ExecError{Err: ErrProxyCallNotSupported, Fn: fn, Detail: fn.Name}
	}
	var (
		v   any
		err error
	)
	c.exclusive(func() {
		v, err = c.callFunction(fn, args, nil)
		v, err = publicResult(v, err)
	})
	return v, err
}

// ExecuteFunctionAsync calls fn and always returns a future. Proxy calls
// are resolved against the registered definition, with the proxy's own
// arguments evaluated first and args merged over them.
func (c *Context) ExecuteFunctionAsync(fn *Function, args map[string]any) *Future {
	out := NewFuture()
	c.exclusive(func() {
		target := fn
		if fn.Call {
			def, ok := c.functions[fn.Name]
			if !ok {
				out.Reject(&ExecError{Err: ErrFunctionNotDefined, Fn: fn, Detail: fn.Name})
				return
			}
			target = def
		}
		if !fn.Call || len(fn.Params) == 0 {
			v, err := c.callFunction(target, args, nil)
			settleInto(out, v, err)
			return
		}

		top := c.executeScope(&Statement{Fn: "map", Params: fn.Params}, nil, 0)
		call := func(v any) {
			merged := make(map[string]any)
			if m, ok := v.(map[string]any); ok {
				for k, x := range m {
					merged[k] = x
				}
			}
			for k, x := range args {
				merged[k] = x
			}
			res, err := c.callFunction(target, merged, nil)
			settleInto(out, res, err)
		}
		if top.Suspended() {
			top.onComplete = append(top.onComplete, call)
			top.onError = append(top.onError, out.Reject)
			return
		}
		if top.err != nil {
			out.Reject(top.err)
			return
		}
		call(top.v)
	})
	return out
}

func settleInto(f *Future, v any, err error) {
	if err != nil {
		f.Reject(err)
		return
	}
	f.Resolve(clean(v))
}

// callFunction validates args, runs the body or extern, and validates the
// result. An unsettled *Future is returned when the body suspends.
func (c *Context) callFunction(fn *Function, args map[string]any, caller *Scope) (any, error) {
	argsSchema, err := c.ArgsSchema(fn)
	if err != nil {
		return nil, err
	}
	returnSchema, err := c.ReturnSchema(fn)
	if err != nil {
		return nil, err
	}

	var input any = args
	if args == nil {
		input = map[string]any{}
	}
	data, err := argsSchema.Parse(input)
	if err != nil {
		return nil, &ExecError{Err: ErrInvalidArgs, Fn: fn, Detail: err.Error()}
	}
	bound, _ := data.(map[string]any)
	if bound == nil {
		bound = map[string]any{}
	}

	if !fn.HasBody() {
		ext, ok := c.externs[fn.Name]
		if !ok {
			return nil, &ExecError{Err: ErrFunctionNotDefined, Fn: fn, Detail: fn.Name}
		}
		v, err := ext(c, bound)
		if err != nil {
			return nil, &ExecError{Err: err, Fn: fn}
		}
		return checkReturn(fn, returnSchema, v)
	}

	vars := make(map[string]any, len(fn.Params)+len(bound)+1)
	for _, p := range fn.Params {
		if p.Label != "" {
			vars[p.Label] = nil
		}
	}
	for k, v := range bound {
		vars[k] = v
	}
	if fn.ParamsName != "" {
		vars[fn.ParamsName] = bound
	}
	if fn.bodyStmt == nil {
		fn.bodyStmt = &Statement{Fn: fn.Name, Params: fn.Body}
	}

	depth := 0
	if caller != nil {
		depth = caller.depth + 1
	}
	body := &Scope{s: fn.bodyStmt, entry: c.bodyEntry, fn: fn, depth: depth, vars: vars}
	c.run(body)

	if body.Suspended() {
		out := NewFuture()
		body.onComplete = append(body.onComplete, func(v any) {
			res, err := checkReturn(fn, returnSchema, v)
			settleInto(out, res, err)
		})
		body.onError = append(body.onError, out.Reject)
		return out, nil
	}
	if body.err != nil {
		return nil, body.err
	}
	return checkReturn(fn, returnSchema, body.v)
}

func checkReturn(fn *Function, rs schema.Schema, v any) (any, error) {
	if f, ok := v.(*Future); ok {
		if !f.Settled() {
			out := NewFuture()
			f.Then(func(x any) {
				res, err := checkReturn(fn, rs, x)
				settleInto(out, res, err)
			}, func(err error) {
				out.Reject(&ExecError{Err: err, Fn: fn})
			})
			return out, nil
		}
		x, err := f.Result()
		if err != nil {
			return nil, &ExecError{Err: err, Fn: fn}
		}
		v = x
	}
	v = clean(v)
	data, err := rs.Parse(v)
	if err != nil {
		return nil, &ExecError{Err: ErrInvalidReturnValue, Fn: fn, Detail: err.Error()}
	}
	return data, nil
}

// publicResult unwraps settled futures and strips interpreter markers.
func publicResult(v any, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if f, ok := v.(*Future); ok && f.Settled() {
		return f.Result()
	}
	return clean(v), nil
}

// evalSync evaluates st at top level and fails if it suspends.
func (c *Context) evalSync(st *Statement) (any, error) {
	s := c.executeScope(st, nil, 0)
	if s.Suspended() {
		c.abandon(s)
		return nil, &ExecError{Err: ErrNotSettled, Statement: st}
	}
	if s.err != nil {
		return nil, s.err
	}
	return clean(s.v), nil
}
