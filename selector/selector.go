// Package selector binds derived values to atoms in a store.
//
// A Binding computes a value from an atom's slice, mounts itself as an
// observer of the atom, and recomputes whenever the atom's key is written.
// The cached value only changes, and OnChange only fires, when the equality
// policy reports a difference:
//
//	b, err := selector.New(ctx, s, todos, func(items []Todo) int {
//	    return len(items)
//	}, selector.OnChange(func(n int) {
//	    fmt.Println("todo count:", n)
//	}))
//	defer b.Close(ctx)
package selector

import (
	"context"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/atomstore/atom"
	"github.com/tailored-agentic-units/atomstore/equal"
	"github.com/tailored-agentic-units/atomstore/store"
)

// Option configures a Binding or MultiBinding producing values of type V.
type Option[V any] func(*options[V])

type options[V any] struct {
	isEqual  func(prev, next V) bool
	onChange func(V)
}

// WithEqual replaces the default equality policy, equal.Shallow.
func WithEqual[V any](fn func(prev, next V) bool) Option[V] {
	return func(o *options[V]) { o.isEqual = fn }
}

// OnChange registers a callback invoked with each new cached value.
func OnChange[V any](fn func(V)) Option[V] {
	return func(o *options[V]) { o.onChange = fn }
}

func resolve[V any](opts []Option[V]) options[V] {
	o := options[V]{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.isEqual == nil {
		o.isEqual = shallow[V]
	}
	return o
}

func shallow[V any](prev, next V) bool {
	return equal.Shallow(prev, next)
}

// changed reports whether next replaces prev. Identical values never count
// as a change, whatever the equality policy says.
func changed[V any](isEqual func(prev, next V) bool, prev, next V) bool {
	return !equal.Same(prev, next) && !isEqual(prev, next)
}

// Binding holds the value a selector derives from one atom.
type Binding[T, V any] struct {
	store       *store.Store
	atom        *atom.Atom[T]
	selector    func(T) V
	isEqual     func(prev, next V) bool
	onChange    func(V)
	value       V
	unsubscribe func()
	closed      bool
	mu          sync.Mutex
}

// New computes sel over a's current slice, subscribes to a's key, and
// mounts an observer of a. Mounting on a placeholder store fails with
// store.ErrMissingRoot.
func New[T, V any](ctx context.Context, s *store.Store, a *atom.Atom[T], sel func(T) V, opts ...Option[V]) (*Binding[T, V], error) {
	o := resolve(opts)

	b := &Binding[T, V]{
		store:    s,
		atom:     a,
		selector: sel,
		isEqual:  o.isEqual,
		onChange: o.onChange,
		value:    sel(a.Slice(s.State())),
	}

	b.unsubscribe = s.SubscribeToKey(a.Key(), b.handle)
	if err := s.Mount(ctx, a); err != nil {
		b.unsubscribe()
		return nil, fmt.Errorf("failed to bind %s: %w", a.Key(), err)
	}

	return b, nil
}

// Value returns the cached value.
func (b *Binding[T, V]) Value() V {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

// SetSelector replaces the selector and recomputes the value from the
// store's current state, bypassing the equality policy.
func (b *Binding[T, V]) SetSelector(sel func(T) V) {
	next := sel(b.atom.Slice(b.store.State()))

	b.mu.Lock()
	b.selector = sel
	b.value = next
	onChange := b.onChange
	b.mu.Unlock()

	if onChange != nil {
		onChange(next)
	}
}

// SetEqual replaces the equality policy used for subsequent changes.
func (b *Binding[T, V]) SetEqual(fn func(prev, next V) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.isEqual = fn
}

// Close unmounts the binding's observer and then removes its subscription,
// so cleanup writes triggered by the unmount are still delivered. Closing
// twice is a no-op.
func (b *Binding[T, V]) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.store.Unmount(ctx, b.atom)
	b.unsubscribe()
	return err
}

func (b *Binding[T, V]) handle(_ context.Context, e store.ChangeEvent) {
	b.mu.Lock()
	sel := b.selector
	b.mu.Unlock()

	next := sel(b.atom.Slice(e.NewState))

	b.mu.Lock()
	if !changed(b.isEqual, b.value, next) {
		b.mu.Unlock()
		return
	}
	b.value = next
	onChange := b.onChange
	b.mu.Unlock()

	if onChange != nil {
		onChange(next)
	}
}
