package dsl

// Scope is the evaluation record of one statement. Scopes are created per
// statement visit and discarded once their value is delivered upward.
//
// A suspended scope keeps its parameter cursor and accumulated values so
// that resumption continues at the exact parameter it stopped on.
type Scope struct {
	s      *Statement
	parent *Scope
	entry  *FunctionEntry
	fn     *Function
	depth  int
	site   int

	// i is the index of the next parameter to evaluate.
	i           int
	paramValues []any
	labels      map[string]int
	optional    map[string]bool

	// si is the scope's own suspension id, wi the id it waits on and pi
	// the id of the suspended parent waiting on it.
	si string
	wi string
	pi string

	onComplete []func(any)
	onError    []func(error)

	// ctrlData is controller state threaded across visits of the same
	// call site through the parent's siteData.
	ctrlData any
	siteData map[int]any

	// vars is the function-local variable table, nil at top level.
	vars map[string]any

	last    any
	r       bool
	bl      bool
	skipped bool
	done    bool
	v       any
	err     error
}

// Statement returns the statement being evaluated.
func (s *Scope) Statement() *Statement {
	return s.s
}

// Parent returns the enclosing scope, nil at the root.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Params returns the parameter values collected so far.
func (s *Scope) Params() []any {
	return s.paramValues
}

// Param returns the i-th collected parameter value, or nil.
func (s *Scope) Param(i int) any {
	if i < 0 || i >= len(s.paramValues) {
		return nil
	}
	return s.paramValues[i]
}

// Last returns the most recently evaluated parameter value.
func (s *Scope) Last() any {
	return s.last
}

// Label returns the parameter value recorded under a label.
func (s *Scope) Label(name string) (any, bool) {
	i, ok := s.labels[name]
	if !ok || i >= len(s.paramValues) {
		return nil, false
	}
	return s.paramValues[i], true
}

// CtrlData returns controller state restored for this call site.
func (s *Scope) CtrlData() any {
	return s.ctrlData
}

// SetCtrlData stores controller state for the next visit of this call site.
func (s *Scope) SetCtrlData(v any) {
	s.ctrlData = v
}

// Suspended reports whether the scope is waiting on a pending value.
func (s *Scope) Suspended() bool {
	return s.si != ""
}

func (s *Scope) parentLast() any {
	if s.parent == nil {
		return nil
	}
	return s.parent.last
}

func (s *Scope) controller() *FlowController {
	if s.entry == nil || s.entry.Controller == nil {
		return noControl
	}
	return s.entry.Controller
}

func (s *Scope) recordSite(idx int, v any) {
	if s.siteData == nil {
		s.siteData = make(map[int]any)
	}
	if v == nil {
		delete(s.siteData, idx)
		return
	}
	s.siteData[idx] = v
}
