package webapi

import (
	"context"
)

// PromiseState is the settlement state of a Promise.
type PromiseState int

const (
	Pending PromiseState = iota
	Fulfilled
	Rejected
)

func (s PromiseState) String() string {
	switch s {
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Promise is an asynchronous result settled through the loop's microtasks.
type Promise struct {
	loop      *Loop
	state     PromiseState
	value     any
	reactions []reaction
	resolving bool
}

type reaction struct {
	onFulfilled any
	onRejected  any
	result      *Promise
}

// NewPromise creates a pending promise with its resolving functions.
func NewPromise(loop *Loop) (*Promise, func(any), func(any)) {
	p := &Promise{loop: loop}
	return p, p.resolveOnce, p.rejectOnce
}

// RunPromise creates a promise and runs executor synchronously with Func
// resolve and reject arguments. An error from the executor rejects.
func RunPromise(ctx context.Context, loop *Loop, executor Callable) *Promise {
	p, resolve, reject := NewPromise(loop)
	resolveFn := Func(func(_ context.Context, args ...any) (any, error) {
		resolve(Arg(args, 0))
		return nil, nil
	})
	rejectFn := Func(func(_ context.Context, args ...any) (any, error) {
		reject(Arg(args, 0))
		return nil, nil
	})
	if _, err := executor.Call(ctx, resolveFn, rejectFn); err != nil {
		reject(ThrownValue(err))
	}
	return p
}

// ResolvedPromise implements Promise.resolve.
func ResolvedPromise(loop *Loop, v any) *Promise {
	if p, ok := v.(*Promise); ok {
		return p
	}
	p, resolve, _ := NewPromise(loop)
	resolve(v)
	return p
}

// RejectedPromise implements Promise.reject.
func RejectedPromise(loop *Loop, v any) *Promise {
	p, _, reject := NewPromise(loop)
	reject(v)
	return p
}

// State returns the settlement state.
func (p *Promise) State() PromiseState {
	return p.state
}

// Result returns the fulfillment value or rejection reason.
func (p *Promise) Result() any {
	return p.value
}

// ConstructorName names the object for diagnostics.
func (p *Promise) ConstructorName() string {
	return "Promise"
}

// Then registers reactions and returns the derived promise.
// Either handler may be nil or a non-callable value, meaning pass-through.
func (p *Promise) Then(onFulfilled, onRejected any) *Promise {
	result := &Promise{loop: p.loop}
	r := reaction{onFulfilled: onFulfilled, onRejected: onRejected, result: result}
	if p.state == Pending {
		p.reactions = append(p.reactions, r)
	} else {
		p.schedule(r)
	}
	return result
}

func (p *Promise) resolveOnce(v any) {
	if p.resolving || p.state != Pending {
		return
	}
	p.resolving = true
	p.resolve(v)
}

func (p *Promise) rejectOnce(v any) {
	if p.resolving || p.state != Pending {
		return
	}
	p.resolving = true
	p.settle(Rejected, v)
}

func (p *Promise) resolve(v any) {
	if v == p {
		p.settle(Rejected, NewError(TypeErrorName, "Chaining cycle detected for promise"))
		return
	}
	if other, ok := v.(*Promise); ok {
		// Adopt the other promise's eventual state.
		p.loop.Enqueue(func(context.Context) error {
			other.Then(
				Func(func(_ context.Context, args ...any) (any, error) {
					p.resolve(Arg(args, 0))
					return nil, nil
				}),
				Func(func(_ context.Context, args ...any) (any, error) {
					p.settle(Rejected, Arg(args, 0))
					return nil, nil
				}),
			)
			return nil
		})
		return
	}
	p.settle(Fulfilled, v)
}

func (p *Promise) settle(state PromiseState, v any) {
	if p.state != Pending {
		return
	}
	p.state = state
	p.value = v
	reactions := p.reactions
	p.reactions = nil
	for _, r := range reactions {
		p.schedule(r)
	}
}

func (p *Promise) schedule(r reaction) {
	state, value := p.state, p.value
	p.loop.Enqueue(func(ctx context.Context) error {
		handler := r.onFulfilled
		if state == Rejected {
			handler = r.onRejected
		}

		fn, ok := handler.(Callable)
		if !ok {
			if state == Rejected {
				r.result.settle(Rejected, value)
			} else {
				r.result.resolve(value)
			}
			return nil
		}

		out, err := fn.Call(ctx, value)
		if err != nil {
			r.result.settle(Rejected, ThrownValue(err))
			return nil
		}
		r.result.resolve(out)
		return nil
	})
}
