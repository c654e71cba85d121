package store

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"strings"

	"github.com/tailored-agentic-units/atomstore/atom"
	"github.com/tailored-agentic-units/atomstore/equal"
	"github.com/tailored-agentic-units/atomstore/observability"
)

// Mutator derives the next slice of an atom from its current slice and a
// payload. Mutators must not modify current in place.
type Mutator[T, P any] func(current T, payload P) T

// Send applies fn to a's current slice, or its default when absent, and
// writes the result through SetState. Outside production mode a warning is
// logged when fn has no name; use SendNamed to name closures.
func Send[T, P any](ctx context.Context, s *Store, a *atom.Atom[T], fn Mutator[T, P], payload P) error {
	return send(ctx, s, a, FuncName(fn), fn, payload)
}

// SendNamed is Send with an explicit mutator name for tooling.
func SendNamed[T, P any](ctx context.Context, s *Store, a *atom.Atom[T], name string, fn Mutator[T, P], payload P) error {
	return send(ctx, s, a, name, fn, payload)
}

// Reset writes a's default state.
func Reset[T any](ctx context.Context, s *Store, a *atom.Atom[T]) error {
	return send(ctx, s, a, "resetAtom", Mutator[T, T](resetAtom[T]), a.DefaultState())
}

func resetAtom[T any](_ T, defaultState T) T {
	return defaultState
}

func send[T, P any](ctx context.Context, s *Store, a *atom.Atom[T], name string, fn Mutator[T, P], payload P) error {
	if s.placeholder {
		s.ignored(ctx, "Send", a.Key())
		return fmt.Errorf("send %s: %w", a.Key(), ErrMissingRoot)
	}

	if name == "" && !s.production {
		s.logger.Warn("mutator should be a named function for easier debugging", "atom", a.Key())
	}

	current := s.State()
	next := current.With(a.Key(), fn(a.Slice(current), payload))

	s.setState(ctx, next, a, fn, name, payload)
	return nil
}

// WriteRoot replaces the entire tree. Listeners of every key whose slice
// changed identity are notified, followed by a single any-change
// notification and a stateChange lifecycle event for RootKey.
func (s *Store) WriteRoot(ctx context.Context, newState StateTree) error {
	if s.placeholder {
		s.ignored(ctx, "WriteRoot", RootKey)
		return fmt.Errorf("write root: %w", ErrMissingRoot)
	}
	if newState == nil {
		newState = StateTree{}
	}

	s.mu.Lock()
	old := s.state
	s.state = newState
	s.mu.Unlock()

	event := ChangeEvent{
		OldState:    old,
		NewState:    newState,
		Key:         RootKey,
		MutatorName: "writeRoot",
		Payload:     newState,
		StoreID:     s.id,
	}

	changed := changedKeys(old, newState)
	for _, key := range changed {
		keyed := event
		keyed.Key = key
		s.changes.Emit(ctx, key, keyed)
	}
	s.changes.Emit(ctx, AnyChangeTopic, event)
	s.emitLifecycle(ctx, LifecycleStateChange, RootKey, newState)

	s.notify(ctx, EventStoreWrite, observability.LevelVerbose, RootKey, map[string]any{
		"changed": len(changed),
	})
	return nil
}

func changedKeys(old, next StateTree) []string {
	var keys []string
	for key, v := range next {
		if !equal.Same(old[key], v) {
			keys = append(keys, key)
		}
	}
	for key := range old {
		if _, exists := next[key]; !exists {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

// FuncName returns the name of a mutator for display: the method or
// function name without its package path. Values implementing
// MutatorName() string report that name. Anonymous functions and non-funcs
// yield "".
func FuncName(fn any) string {
	if fn == nil {
		return ""
	}
	if named, ok := fn.(interface{ MutatorName() string }); ok {
		return named.MutatorName()
	}

	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return ""
	}

	name := strings.TrimSuffix(rf.Name(), "-fm")
	name = strings.ReplaceAll(name, "[...]", "")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return ""
	}
	last := parts[len(parts)-1]
	if last == "" || isClosure(last) {
		return ""
	}
	return last
}

// isClosure matches the compiler's names for function literals: "func1",
// and the bare indices ("1", "2") of literals nested inside them.
func isClosure(part string) bool {
	digits := strings.TrimPrefix(part, "func")
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
