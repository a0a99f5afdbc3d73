package pods

import (
	"context"
)

// Mutation is a deferred write. When a Promise settles with one, Await
// applies it on the concurrent-mutation path.
type Mutation func() error

// Promise is the result of asynchronous work started by an action. The
// work runs on its own goroutine and must not touch states; anything it
// wants to write it returns as a Mutation, which Await applies on the
// caller's goroutine.
type Promise struct {
	done   chan struct{}
	value  any
	err    error
	engine *Engine

	applied bool
}

func Go(ctx context.Context, work func(ctx context.Context) (any, error)) *Promise {
	p := &Promise{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.value, p.err = work(ctx)
	}()
	return p
}

func (p *Promise) bind(e *Engine) {
	p.engine = e
}

// Done is closed once the work has finished.
func (p *Promise) Done() <-chan struct{} { return p.done }

// Await waits for the work. A Mutation (or func() error) result is
// applied exactly once and Await then returns a nil value.
func (p *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
	}
	if p.err != nil {
		return nil, p.err
	}

	var fn func() error
	switch m := p.value.(type) {
	case Mutation:
		fn = m
	case func() error:
		fn = m
	default:
		return p.value, nil
	}
	if p.applied {
		return nil, nil
	}
	p.applied = true
	if p.engine == nil {
		return nil, &UnregisteredStateError{Reason: "promise was not returned from an action handler"}
	}
	return nil, p.engine.Apply(fn)
}
