package dsl

import (
	"fmt"

	"github.com/google/uuid"
)

// ExecuteStatement evaluates st against the shared table. When evaluation
// suspends the result is an unsettled *Future settled once it resumes.
func (c *Context) ExecuteStatement(st *Statement) (any, error) {
	var (
		v   any
		err error
	)
	c.exclusive(func() {
		v, err = c.result(c.executeScope(st, nil, 0))
	})
	return v, err
}

// ExecuteTopLevel runs the body of a do, define or result block.
func (c *Context) ExecuteTopLevel(fn *Function) (any, error) {
	return c.ExecuteStatement(&Statement{Fn: "do", Params: fn.Body})
}

// Run loads the functions of messages, then runs every top-level block in
// order and returns the value of the last one.
func (c *Context) Run(messages []*Message) (any, error) {
	if err := c.LoadFunctions(messages, nil); err != nil {
		return nil, err
	}
	run := &Statement{Fn: "do"}
	for _, msg := range messages {
		if msg.Fn != nil && msg.Fn.TopLevel {
			run.Params = append(run.Params, &Statement{Fn: "do", Params: msg.Fn.Body})
		}
	}
	return c.ExecuteStatement(run)
}

func (c *Context) result(s *Scope) (any, error) {
	if s.Suspended() {
		f := NewFuture()
		s.onComplete = append(s.onComplete, func(v any) { f.Resolve(clean(v)) })
		s.onError = append(s.onError, f.Reject)
		return f, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return clean(s.v), nil
}

// exclusive runs fn as the active evaluation. Work posted by settling
// futures meanwhile runs after fn returns, in order.
func (c *Context) exclusive(fn func()) {
	c.mu.Lock()
	if c.draining {
		// Nested call from a function implementation.
		c.mu.Unlock()
		fn()
		return
	}
	c.draining = true
	c.mu.Unlock()
	fn()
	c.drain()
}

// post queues resumption work, running it now when no evaluation is active.
func (c *Context) post(fn func()) {
	c.mu.Lock()
	c.queue = append(c.queue, fn)
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	c.mu.Unlock()
	c.drain()
}

func (c *Context) drain() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		next()
	}
}

// executeScope evaluates st as parameter site of parent. The returned
// scope is either done or suspended.
func (c *Context) executeScope(st *Statement, parent *Scope, site int) *Scope {
	s := &Scope{s: st, parent: parent, site: site}
	if parent != nil {
		s.depth = parent.depth + 1
		s.vars = parent.vars
		s.fn = parent.fn
	}
	if s.depth > c.maxDepth {
		c.fail(s, &ExecError{Err: ErrMaxDepth, Statement: st, Detail: fmt.Sprint(c.maxDepth)})
		return s
	}

	switch st.Kind() {
	case KindValue:
		c.complete(s, st.Value)
	case KindRef:
		tolerant := parent != nil && parent.controller().TolerantRefs
		v, err := c.GetVar(st.Ref, st.RefPath, s, tolerant)
		if err != nil {
			c.fail(s, err)
			return s
		}
		if e, ok := v.(*FunctionEntry); ok && e.Type != nil {
			v = e.Type
		}
		c.complete(s, v)
	case KindKeyword:
		switch st.Keyword {
		case "break":
			s.bl = true
		case "return":
			s.r = true
		}
		c.complete(s, nil)
	case KindCall:
		c.call(s)
	}
	return s
}

func (c *Context) call(s *Scope) {
	st := s.s
	target, err := c.GetVar(st.Fn, st.FnPath, s, false)
	if err != nil {
		c.fail(s, err)
		return
	}
	entry, ok := target.(*FunctionEntry)
	if !ok {
		c.fail(s, &ExecError{Err: ErrNotAFunction, Statement: st, Detail: st.FnName()})
		return
	}
	s.entry = entry
	ctrl := s.controller()

	if ctrl.KeepData && s.parent != nil {
		s.ctrlData = s.parent.siteData[s.site]
	}
	if ctrl.ShouldExecute != nil && !ctrl.ShouldExecute(s, c) {
		s.skipped = true
		var v any
		if ctrl.SkipValue != nil {
			v = ctrl.SkipValue(s, c)
		}
		c.complete(s, v)
		return
	}
	if ctrl.UsesLabels {
		s.labels = make(map[string]int)
	}
	if ctrl.StartParam != nil {
		s.i = ctrl.StartParam(s, c)
	}
	c.run(s)
}

// run iterates the remaining parameters of s, then invokes it.
func (c *Context) run(s *Scope) {
	params := s.s.Params
	for s.i < len(params) {
		idx := s.i
		child := c.executeScope(params[idx], s, idx)
		if child.Suspended() {
			c.suspendOnChild(s, child)
			return
		}
		if !c.accept(s, child, idx) {
			return
		}
	}
	c.invoke(s)
}

// accept records the value of the child at idx. It returns false when s
// has completed or failed.
func (c *Context) accept(s *Scope, child *Scope, idx int) bool {
	ctrl := s.controller()
	if cc := child.controller(); cc.KeepData {
		s.recordSite(idx, child.ctrlData)
	}
	if child.err != nil {
		c.fail(s, child.err)
		return false
	}

	v := child.v
	param := s.s.Params[idx]
	if ctrl.DiscardParams {
		s.paramValues = append(s.paramValues[:0], v)
	} else {
		if ctrl.UsesLabels && param.Label != "" {
			s.labels[param.Label] = len(s.paramValues)
			if param.Opt {
				if s.optional == nil {
					s.optional = make(map[string]bool)
				}
				s.optional[param.Label] = true
			}
		}
		s.paramValues = append(s.paramValues, v)
	}
	s.last = v

	if child.r {
		if !ctrl.CatchReturn {
			s.r = true
		}
		c.complete(s, v)
		return false
	}
	if child.bl {
		if ctrl.CatchBreak {
			s.i = len(s.s.Params)
			return true
		}
		s.bl = true
		c.complete(s, nil)
		return false
	}

	next := idx + 1
	if ctrl.NextParam != nil {
		next = ctrl.NextParam(s, idx, v, c)
	}
	if next == StopParams || next > len(s.s.Params) {
		next = len(s.s.Params)
	}
	s.i = next
	return true
}

func (c *Context) invoke(s *Scope) {
	var (
		v   any
		err error
	)
	switch s.entry.Kind {
	case FuncUser:
		var args map[string]any
		if args, err = labeledArgs(s); err == nil {
			v, err = c.callFunction(s.entry.Def, args, s)
		}
	default:
		v, err = s.entry.Impl(s, c)
	}
	if err != nil {
		c.fail(s, err)
		return
	}
	c.settle(s, v)
}

// settle completes s with v, suspending first when v is pending.
func (c *Context) settle(s *Scope, v any) {
	if f, ok := v.(*Future); ok {
		if !f.Settled() {
			c.suspend(s)
			s.wi = "future"
			id := s.si
			f.Then(func(x any) {
				c.post(func() { c.resumeWithValue(id, x, nil) })
			}, func(err error) {
				c.post(func() { c.resumeWithValue(id, nil, err) })
			})
			return
		}
		x, err := f.Result()
		if err != nil {
			c.fail(s, err)
			return
		}
		v = x
	}
	if t := s.controller().TransformResult; t != nil {
		v = t(v, s, c)
	}
	c.complete(s, v)
}

func (c *Context) complete(s *Scope, v any) {
	if st := s.s; st.Set != "" && !s.skipped && !s.r && !s.bl && v != loopEnd {
		if err := c.SetVar(st.Shared, clean(v), st.Set, st.SetPath, s); err != nil {
			c.fail(s, err)
			return
		}
	}
	s.v = v
	s.done = true
	callbacks := s.onComplete
	s.onComplete, s.onError = nil, nil
	for _, cb := range callbacks {
		cb(v)
	}
}

func (c *Context) fail(s *Scope, err error) {
	err = execErr(err, s.s, "")
	if ee, ok := err.(*ExecError); ok && ee.Fn == nil {
		ee.Fn = s.fn
	}
	s.err = err
	s.done = true
	callbacks := s.onError
	s.onComplete, s.onError = nil, nil
	for _, cb := range callbacks {
		cb(err)
	}
}

func (c *Context) suspend(s *Scope) {
	if s.si != "" {
		panic(&ExecError{Err: ErrScopeAlreadySuspended, Statement: s.s, Detail: s.si})
	}
	s.si = uuid.NewString()
	c.mu.Lock()
	c.suspended[s.si] = s
	c.mu.Unlock()
	c.logger.Debug("scope suspended", "id", s.si, "fn", s.s.FnName(), "param", s.i)
}

func (c *Context) unsuspend(s *Scope) {
	c.mu.Lock()
	delete(c.suspended, s.si)
	c.mu.Unlock()
	c.logger.Debug("scope resumed", "id", s.si, "fn", s.s.FnName(), "param", s.i)
	s.si, s.wi = "", ""
}

func (c *Context) suspendOnChild(parent, child *Scope) {
	c.suspend(parent)
	parent.wi = child.si
	child.pi = parent.si
	pid := parent.si
	child.onComplete = append(child.onComplete, func(any) { c.resumeFromChild(pid, child) })
	child.onError = append(child.onError, func(error) { c.resumeFromChild(pid, child) })
}

func (c *Context) resumeFromChild(pid string, child *Scope) {
	parent, ok := c.lookupSuspended(pid)
	if !ok {
		panic(&ExecError{Err: ErrSuspensionParentNotFound, Statement: child.s, Detail: pid})
	}
	c.unsuspend(parent)
	if c.accept(parent, child, parent.i) {
		c.run(parent)
	}
}

func (c *Context) resumeWithValue(id string, v any, err error) {
	s, ok := c.lookupSuspended(id)
	if !ok {
		panic(&ExecError{Err: ErrSuspensionParentNotFound, Detail: id})
	}
	c.unsuspend(s)
	if err != nil {
		c.fail(s, err)
		return
	}
	c.settle(s, v)
}

func (c *Context) lookupSuspended(id string) (*Scope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.suspended[id]
	return s, ok
}

// abandon drops s and every suspended scope below it.
func (c *Context) abandon(s *Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, sc := range c.suspended {
		for p := sc; p != nil; p = p.parent {
			if p == s {
				delete(c.suspended, id)
				break
			}
		}
	}
}

// labeledArgs builds the argument object of a user function call.
// Unlabeled values that are not objects bind to the declared parameters
// not already given by label, in declaration order.
func labeledArgs(s *Scope) (map[string]any, error) {
	args := make(map[string]any)
	var positional []any
	for i, p := range s.s.Params {
		if i >= len(s.paramValues) {
			break
		}
		v := clean(s.paramValues[i])
		if p.Label != "" {
			args[p.Label] = v
			continue
		}
		if m, ok := v.(map[string]any); ok {
			for k, x := range m {
				args[k] = x
			}
			continue
		}
		positional = append(positional, v)
	}
	if len(positional) == 0 {
		return args, nil
	}

	fn := s.entry.Def
	for _, p := range fn.Params {
		if len(positional) == 0 {
			break
		}
		if p.Label == "" {
			continue
		}
		if _, given := args[p.Label]; given {
			continue
		}
		args[p.Label] = positional[0]
		positional = positional[1:]
	}
	if len(positional) > 0 {
		return nil, &ExecError{Err: ErrInvalidArgs, Fn: fn, Statement: s.s,
			Detail: fmt.Sprintf("%d positional argument(s) without a parameter; label them", len(positional))}
	}
	return args, nil
}
