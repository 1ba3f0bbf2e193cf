package dsl

import (
	"context"
	"sync"
)

// Future is a value that is not available yet. Returning an unsettled
// Future from a function implementation suspends evaluation until the
// future settles.
type Future struct {
	mu      sync.Mutex
	done    chan struct{}
	settled bool
	value   any
	err     error
	onValue []func(any)
	onError []func(error)
}

// NewFuture creates an unsettled future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// ResolvedFuture returns a future already settled with v.
func ResolvedFuture(v any) *Future {
	f := NewFuture()
	f.Resolve(v)
	return f
}

// RejectedFuture returns a future already settled with err.
func RejectedFuture(err error) *Future {
	f := NewFuture()
	f.Reject(err)
	return f
}

// Resolve settles the future with v. Resolving with another future adopts
// its outcome. Settling twice is a no-op.
func (f *Future) Resolve(v any) {
	if other, ok := v.(*Future); ok {
		other.Then(f.Resolve, f.Reject)
		return
	}
	f.settle(v, nil)
}

// Reject settles the future with err.
func (f *Future) Reject(err error) {
	f.settle(nil, err)
}

func (f *Future) settle(v any, err error) {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return
	}
	f.settled = true
	f.value = v
	f.err = err
	onValue, onError := f.onValue, f.onError
	f.onValue, f.onError = nil, nil
	close(f.done)
	f.mu.Unlock()

	if err != nil {
		for _, cb := range onError {
			cb(err)
		}
		return
	}
	for _, cb := range onValue {
		cb(v)
	}
}

// Then registers callbacks run once the future settles. Callbacks run
// immediately when the future has already settled.
func (f *Future) Then(onValue func(any), onError func(error)) {
	f.mu.Lock()
	if !f.settled {
		if onValue != nil {
			f.onValue = append(f.onValue, onValue)
		}
		if onError != nil {
			f.onError = append(f.onError, onError)
		}
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()

	if err != nil {
		if onError != nil {
			onError(err)
		}
		return
	}
	if onValue != nil {
		onValue(v)
	}
}

// Settled returns true once the future has a value or error.
func (f *Future) Settled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// Result returns the settled value, or ErrNotSettled.
func (f *Future) Result() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.settled {
		return nil, ErrNotSettled
	}
	return f.value, f.err
}

// Done is closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return f.Result()
	}
}
