// Package lazy provides process-lifetime singletons built on first use.
//
// A Handle holds one expensive resource, such as a store connection or a
// request engine, in a cold-start execution model: many overlapping
// requests may race to initialize it, and the handle collapses those
// attempts into a single construction whose outcome every waiter observes.
package lazy

import (
	"context"
	"sync"
)

// BuildFunc constructs the resource. It is invoked at most once per
// construction attempt, outside the handle's lock.
type BuildFunc[T any] func(ctx context.Context) (T, error)

// attempt is one in-flight construction. value and err are written
// exactly once, before done is closed.
type attempt[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Handle memoizes a lazily-constructed resource of type T.
//
// States: absent (neither value nor attempt), pending (one in-flight
// attempt shared by all waiters), ready (value set). A failed attempt
// returns the handle to absent: failures are never cached, the next
// caller retries from scratch.
type Handle[T any] struct {
	build BuildFunc[T]

	mu      sync.Mutex
	ready   bool
	value   T
	pending *attempt[T]
}

func NewHandle[T any](build BuildFunc[T]) *Handle[T] {
	return &Handle[T]{build: build}
}

// Ensure returns the ready value without I/O, joins an in-flight
// construction, or starts one. Every concurrent caller of a cold handle
// receives the outcome of the same single attempt.
//
// Construction is not bound to the caller: a caller whose ctx is
// cancelled gets ctx.Err(), but the attempt runs to completion and its
// result remains available to other waiters and future callers.
func (h *Handle[T]) Ensure(ctx context.Context) (T, error) {
	h.mu.Lock()
	if h.ready {
		value := h.value
		h.mu.Unlock()
		return value, nil
	}

	a := h.pending
	if a == nil {
		a = &attempt[T]{done: make(chan struct{})}
		h.pending = a
		go h.run(context.WithoutCancel(ctx), a)
	}
	h.mu.Unlock()

	select {
	case <-a.done:
		return a.value, a.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (h *Handle[T]) run(ctx context.Context, a *attempt[T]) {
	value, err := h.build(ctx)

	h.mu.Lock()
	if err == nil {
		h.value = value
		h.ready = true
	}
	h.pending = nil
	h.mu.Unlock()

	a.value = value
	a.err = err
	close(a.done)
}

// Reset drops a ready value, returning the handle to absent so the next
// Ensure rebuilds. Intended for passive observers, such as a disconnect
// monitor; it never blocks a caller and does not interrupt an in-flight
// attempt.
func (h *Handle[T]) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero T
	h.value = zero
	h.ready = false
}

// Peek reports the ready value, if any, without triggering construction.
func (h *Handle[T]) Peek() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.value, h.ready
}
