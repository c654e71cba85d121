package scenario

import (
	"context"
	"fmt"
	"maps"
	"reflect"

	"github.com/tailored-agentic-units/atomstore/atom"
	"github.com/tailored-agentic-units/atomstore/devtools"
	"github.com/tailored-agentic-units/atomstore/store"
)

// Result summarizes a completed run.
type Result struct {
	Name      string
	Steps     int
	Log       []devtools.Entry
	Observers map[string]int
	State     store.StateTree
}

// RunOption configures a scenario run.
type RunOption func(*runOptions)

type runOptions struct {
	atoms map[string]*atom.Atom[any]
}

// WithAtoms makes atoms declared outside the scenario, keyed by their
// configured key, available to its steps. Atoms the scenario declares
// itself take precedence.
func WithAtoms(atoms map[string]*atom.Atom[any]) RunOption {
	return func(o *runOptions) { o.atoms = atoms }
}

// Run declares the scenario's atoms in keys, which may be nil, and executes
// each step against s. The first failing step stops the run; the returned
// Result still describes everything up to that point.
func (sc *Scenario) Run(ctx context.Context, s *store.Store, keys *atom.Registry, opts ...RunOption) (*Result, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	atoms := make(map[string]*atom.Atom[any], len(o.atoms)+len(sc.Atoms))
	maps.Copy(atoms, o.atoms)
	for i := range sc.Atoms {
		cfg := &sc.Atoms[i]
		if shadowed, exists := atoms[cfg.Key]; exists && keys != nil {
			keys.Release(shadowed.Key())
		}
		atoms[cfg.Key] = store.AtomFromConfig(keys, cfg)
	}

	rec := devtools.NewRecorder(s)
	defer rec.Close()

	result := &Result{Name: sc.Name}
	var runErr error
	for i, step := range sc.Steps {
		if err := runStep(ctx, s, atoms, step); err != nil {
			runErr = fmt.Errorf("step %d (%s): %w", i+1, step, err)
			break
		}
		result.Steps++
	}

	result.Log = rec.Log()
	result.Observers = s.ObserverCounts()
	result.State = s.State()
	return result, runErr
}

func runStep(ctx context.Context, s *store.Store, atoms map[string]*atom.Atom[any], step Step) error {
	if step.Op == OpWriteRoot {
		tree, ok := step.Value.(map[string]any)
		if !ok {
			return fmt.Errorf("write_root value must be a mapping, got %T", step.Value)
		}
		return s.WriteRoot(ctx, store.StateTree(tree))
	}

	a, exists := atoms[step.Atom]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownAtom, step.Atom)
	}

	switch step.Op {
	case OpMount:
		return s.Mount(ctx, a)
	case OpUnmount:
		return s.Unmount(ctx, a)
	case OpSet:
		return store.Send(ctx, s, a, set, step.Value)
	case OpAdd:
		return store.Send(ctx, s, a, add, step.Value)
	case OpToggle:
		return store.Send(ctx, s, a, toggle, step.Value)
	case OpReset:
		return store.Reset(ctx, s, a)
	case OpExpect:
		return expect(s, a, step)
	}
	return fmt.Errorf("unsupported op %q", step.Op)
}

func expect(s *store.Store, a *atom.Atom[any], step Step) error {
	state := s.State()

	if step.Absent && state.Has(a.Key()) {
		return fmt.Errorf("%w: %s present with %v, want absent", ErrExpectation, a.Key(), state[a.Key()])
	}
	if step.Value != nil {
		if got := a.Slice(state); !sameValue(got, step.Value) {
			return fmt.Errorf("%w: %s = %v, want %v", ErrExpectation, a.Key(), got, step.Value)
		}
	}
	if step.Observers != nil {
		if got := s.ObserverCount(a.Key()); got != *step.Observers {
			return fmt.Errorf("%w: %s has %d observers, want %d", ErrExpectation, a.Key(), got, *step.Observers)
		}
	}
	return nil
}

func set(_ any, value any) any {
	return value
}

func add(current any, delta any) any {
	c, cInt := current.(int)
	d, dInt := delta.(int)
	if cInt && dInt {
		return c + d
	}
	return toFloat(current) + toFloat(delta)
}

func toggle(current any, _ any) any {
	on, _ := current.(bool)
	return !on
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

// sameValue compares decoded YAML values, treating int and float64 numbers
// as equal when they hold the same quantity.
func sameValue(got, want any) bool {
	if isNumber(got) && isNumber(want) {
		return toFloat(got) == toFloat(want)
	}
	return reflect.DeepEqual(got, want)
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, float64:
		return true
	}
	return false
}
