// Package atom defines atoms, the key-addressed descriptors of a slice of
// store state, and the Registry that keeps their keys unique.
//
// An atom owns no state. It names a slice of a store's tree and supplies the
// value readers see while the slice is absent:
//
//	keys := atom.NewRegistry()
//	counter := atom.New(keys, "counter", 0)
//	n := counter.Slice(s.State())
package atom

// Descriptor is the untyped view of an atom consumed by the store engine.
type Descriptor interface {
	// Key addresses the atom's slice within a state tree.
	Key() string
	// Default is the value readers see while the slice is absent.
	Default() any
	// ResetOnInactive reports whether the slice is removed from the tree
	// once its last observer unmounts.
	ResetOnInactive() bool
}

// Option configures an Atom.
type Option func(*options)

type options struct {
	resetOnInactive bool
}

// WithResetOnInactive controls whether the atom's slice is dropped when its
// last observer unmounts. The default is true.
func WithResetOnInactive(reset bool) Option {
	return func(o *options) { o.resetOnInactive = reset }
}

// Atom is an immutable descriptor of a slice of type T.
type Atom[T any] struct {
	key             string
	defaultState    T
	resetOnInactive bool
}

// New creates an atom. When reg is non-nil the key is claimed from it and
// may come back remapped if another atom already holds it; Key reports the
// key actually in use.
func New[T any](reg *Registry, key string, defaultState T, opts ...Option) *Atom[T] {
	o := options{resetOnInactive: true}
	for _, opt := range opts {
		opt(&o)
	}

	if reg != nil {
		key = reg.Claim(key)
	}

	return &Atom[T]{
		key:             key,
		defaultState:    defaultState,
		resetOnInactive: o.resetOnInactive,
	}
}

func (a *Atom[T]) Key() string { return a.key }

func (a *Atom[T]) Default() any { return a.defaultState }

func (a *Atom[T]) ResetOnInactive() bool { return a.resetOnInactive }

// DefaultState returns the typed default.
func (a *Atom[T]) DefaultState() T { return a.defaultState }

// Slice returns the atom's value in tree, falling back to the default when
// the key is absent, nil, or holds a value of another type. A nil written
// to an Atom[any] therefore reads back as the default, and a value of the
// wrong type is dropped silently rather than reported.
func (a *Atom[T]) Slice(tree map[string]any) T {
	v, ok := tree[a.key]
	if !ok || v == nil {
		return a.defaultState
	}
	typed, ok := v.(T)
	if !ok {
		return a.defaultState
	}
	return typed
}
