package selector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/atomstore/atom"
	"github.com/tailored-agentic-units/atomstore/equal"
	"github.com/tailored-agentic-units/atomstore/store"
)

// MultiBinding holds the value a selector derives from several atoms. The
// selector receives one slice per atom, in the order the atoms were given,
// with defaults substituted for absent slices.
type MultiBinding[V any] struct {
	store        *store.Store
	atoms        []atom.Descriptor
	selector     func([]any) V
	isEqual      func(prev, next V) bool
	onChange     func(V)
	value        V
	unsubscribes []func()
	closed       bool
	mu           sync.Mutex
}

// NewMulti computes sel over the atoms' current slices, subscribes once per
// distinct key, and mounts one observer per atom. A change is only
// recomputed when some constituent slice differs by identity between the
// old and new state.
func NewMulti[V any](ctx context.Context, s *store.Store, atoms []atom.Descriptor, sel func([]any) V, opts ...Option[V]) (*MultiBinding[V], error) {
	o := resolve(opts)

	m := &MultiBinding[V]{
		store:    s,
		atoms:    atoms,
		selector: sel,
		isEqual:  o.isEqual,
		onChange: o.onChange,
	}
	m.value = sel(m.slices(s.State()))

	seen := make(map[string]bool, len(atoms))
	for _, a := range atoms {
		if seen[a.Key()] {
			continue
		}
		seen[a.Key()] = true
		m.unsubscribes = append(m.unsubscribes, s.SubscribeToKey(a.Key(), m.handle))
	}

	for i, a := range atoms {
		if err := s.Mount(ctx, a); err != nil {
			for _, mounted := range atoms[:i] {
				s.Unmount(ctx, mounted)
			}
			m.removeSubscriptions()
			return nil, fmt.Errorf("failed to bind %s: %w", a.Key(), err)
		}
	}

	return m, nil
}

// Value returns the cached value.
func (m *MultiBinding[V]) Value() V {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

// SetSelector replaces the selector and recomputes the value from the
// store's current state, bypassing the equality policy.
func (m *MultiBinding[V]) SetSelector(sel func([]any) V) {
	next := sel(m.slices(m.store.State()))

	m.mu.Lock()
	m.selector = sel
	m.value = next
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(next)
	}
}

// SetEqual replaces the equality policy used for subsequent changes.
func (m *MultiBinding[V]) SetEqual(fn func(prev, next V) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isEqual = fn
}

// Close unmounts every atom's observer and then removes the subscriptions.
// Closing twice is a no-op.
func (m *MultiBinding[V]) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	var errs []error
	for _, a := range m.atoms {
		if err := m.store.Unmount(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	m.removeSubscriptions()
	return errors.Join(errs...)
}

func (m *MultiBinding[V]) removeSubscriptions() {
	for _, unsubscribe := range m.unsubscribes {
		unsubscribe()
	}
	m.unsubscribes = nil
}

func (m *MultiBinding[V]) slices(tree store.StateTree) []any {
	values := make([]any, len(m.atoms))
	for i, a := range m.atoms {
		v, ok := tree[a.Key()]
		if !ok || v == nil {
			v = a.Default()
		}
		values[i] = v
	}
	return values
}

func (m *MultiBinding[V]) dirty(e store.ChangeEvent) bool {
	for _, a := range m.atoms {
		if !equal.Same(e.OldState[a.Key()], e.NewState[a.Key()]) {
			return true
		}
	}
	return false
}

func (m *MultiBinding[V]) handle(_ context.Context, e store.ChangeEvent) {
	if !m.dirty(e) {
		return
	}

	m.mu.Lock()
	sel := m.selector
	m.mu.Unlock()

	next := sel(m.slices(e.NewState))

	m.mu.Lock()
	if !changed(m.isEqual, m.value, next) {
		m.mu.Unlock()
		return
	}
	m.value = next
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(next)
	}
}
