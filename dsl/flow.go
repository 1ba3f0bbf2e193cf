package dsl

import (
	"fmt"
	"sort"

	"github.com/everydev1618/goconvo/schema"
)

// marker values steer the if/loop controllers. They never escape the
// interpreter.
type marker struct {
	name string
}

func (m *marker) String() string { return m.name }

var (
	ifTrue      = &marker{"ifTrue"}
	ifFalse     = &marker{"ifFalse"}
	branchTaken = &marker{"branchTaken"}
	loopEnd     = &marker{"loopEnd"}
)

func isMarker(v any) bool {
	_, ok := v.(*marker)
	return ok
}

// clean replaces marker values with undefined.
func clean(v any) any {
	if isMarker(v) {
		return nil
	}
	return v
}

var (
	ifControl = &FlowController{}

	elifControl = &FlowController{
		ShouldExecute: func(s *Scope, _ *Context) bool { return s.parentLast() == ifFalse },
		SkipValue:     passThrough,
	}

	thenControl = &FlowController{
		DiscardParams:   true,
		ShouldExecute:   func(s *Scope, _ *Context) bool { return s.parentLast() == ifTrue },
		SkipValue:       passThrough,
		TransformResult: takeBranch,
	}

	elseControl = &FlowController{
		DiscardParams:   true,
		ShouldExecute:   func(s *Scope, _ *Context) bool { return s.parentLast() == ifFalse },
		SkipValue:       passThrough,
		TransformResult: takeBranch,
	}

	whileControl = &FlowController{
		DiscardParams: true,
		CatchBreak:    true,
		NextParam: func(s *Scope, index int, value any, _ *Context) int {
			if index == 0 && !truthy(value) {
				return StopParams
			}
			return loopNext(s, index)
		},
	}

	foreachControl = &FlowController{
		DiscardParams: true,
		CatchBreak:    true,
		NextParam: func(s *Scope, index int, value any, _ *Context) int {
			if index == 0 && value == loopEnd {
				return StopParams
			}
			return loopNext(s, index)
		},
	}

	inControl = &FlowController{
		KeepData: true,
		StartParam: func(s *Scope, _ *Context) int {
			if s.ctrlData != nil {
				return len(s.s.Params)
			}
			return 0
		},
	}

	andControl = &FlowController{
		DiscardParams: true,
		NextParam: func(_ *Scope, index int, value any, _ *Context) int {
			if !truthy(value) {
				return StopParams
			}
			return index + 1
		},
	}

	orControl = &FlowController{
		DiscardParams: true,
		NextParam: func(_ *Scope, index int, value any, _ *Context) int {
			if truthy(value) {
				return StopParams
			}
			return index + 1
		},
	}

	discardControl = &FlowController{DiscardParams: true}

	labelControl = &FlowController{UsesLabels: true}
)

func passThrough(s *Scope, _ *Context) any {
	return s.parentLast()
}

func takeBranch(v any, _ *Scope, _ *Context) any {
	if isMarker(v) {
		return branchTaken
	}
	return v
}

// loopNext rewinds to the condition after the last body statement.
func loopNext(s *Scope, index int) int {
	if index >= len(s.s.Params)-1 {
		return 0
	}
	return index + 1
}

func ifImpl(s *Scope, _ *Context) (any, error) {
	if truthy(s.last) {
		return ifTrue, nil
	}
	return ifFalse, nil
}

// cursor is the iteration state of an in call site.
type cursor struct {
	items []any
	keys  []string
	obj   map[string]any
	next  int
}

func inImpl(s *Scope, _ *Context) (any, error) {
	cur, _ := s.ctrlData.(*cursor)
	if cur == nil {
		src := clean(s.Param(0))
		cur = &cursor{}
		switch v := src.(type) {
		case nil:
		case map[string]any:
			cur.obj = v
			for k := range v {
				cur.keys = append(cur.keys, k)
			}
			sort.Strings(cur.keys)
		default:
			items, ok := schema.ToSlice(v)
			if !ok {
				return nil, fmt.Errorf("in: cannot iterate %s", typeName(v))
			}
			cur.items = items
		}
	}

	if cur.obj != nil {
		if cur.next >= len(cur.keys) {
			s.ctrlData = nil
			return loopEnd, nil
		}
		k := cur.keys[cur.next]
		cur.next++
		s.ctrlData = cur
		return map[string]any{"key": k, "value": cur.obj[k]}, nil
	}
	if cur.next >= len(cur.items) {
		s.ctrlData = nil
		return loopEnd, nil
	}
	item := cur.items[cur.next]
	cur.next++
	s.ctrlData = cur
	return item, nil
}
