package execution

import (
	"context"
	"fmt"
	"sync"
)

// Result is the outcome of an execution strategy. It is either immediate,
// carrying its value already, or pending, settling later with a value or an
// error.
type Result struct {
	value   any
	pending *pending
}

type pending struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func (p *pending) settle(value any, err error) {
	p.once.Do(func() {
		p.value, p.err = value, err
		close(p.done)
	})
}

// Immediate returns a Result that already holds value.
func Immediate(value any) Result {
	return Result{value: value}
}

// Pending runs fn on its own goroutine and returns a Result that settles with
// fn's return values. A panic inside fn settles the result with an error.
func Pending(ctx context.Context, fn func(ctx context.Context) (any, error)) Result {
	p := &pending{done: make(chan struct{})}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.settle(nil, fmt.Errorf("execution panicked: %v", r))
			}
		}()

		v, err := fn(ctx)
		p.settle(v, err)
	}()

	return Result{pending: p}
}

// IsPending reports whether the result settles asynchronously.
func (r Result) IsPending() bool {
	return r.pending != nil
}

// Value returns the value of an immediate result. For a pending result it
// returns nil; use Await.
func (r Result) Value() any {
	return r.value
}

// Await blocks until the result settles. Immediate results return at once.
// Await may be called any number of times.
func (r Result) Await() (any, error) {
	if r.pending == nil {
		return r.value, nil
	}

	<-r.pending.done
	return r.pending.value, r.pending.err
}
