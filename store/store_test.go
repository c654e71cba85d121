package store_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/tailored-agentic-units/atomstore/atom"
	"github.com/tailored-agentic-units/atomstore/config"
	"github.com/tailored-agentic-units/atomstore/observability"
	"github.com/tailored-agentic-units/atomstore/store"
)

func increment(n int, by int) int {
	return n + by
}

func setText(_ string, text string) string {
	return text
}

func setCount(_ int, n int) int {
	return n
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNew(t *testing.T) {
	s := store.New(nil)

	if s.State() == nil {
		t.Error("State() should be an empty tree, got nil")
	}
	if len(s.State()) != 0 {
		t.Errorf("State() = %v, want empty", s.State())
	}
	if s.ID() == "" {
		t.Error("ID() should not be empty")
	}
	if s.IsPlaceholder() {
		t.Error("IsPlaceholder() = true for a regular store")
	}

	initial := store.StateTree{"a": 1}
	s = store.New(initial, store.WithID("fixed"))
	if s.ID() != "fixed" {
		t.Errorf("ID() = %q, want fixed", s.ID())
	}
	if s.State()["a"] != 1 {
		t.Errorf("State()[a] = %v, want 1", s.State()["a"])
	}
}

func TestCounterScenario(t *testing.T) {
	ctx := context.Background()
	keys := atom.NewRegistry()
	counter := atom.New(keys, "counter", 0)
	s := store.New(nil, store.WithKeyRegistry(keys), store.WithLogger(quietLogger()))

	if err := s.Mount(ctx, counter); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	if got := counter.Slice(s.State()); got != 0 {
		t.Errorf("initial value = %d, want 0", got)
	}

	if err := store.Send(ctx, s, counter, increment, 1); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := counter.Slice(s.State()); got != 1 {
		t.Errorf("value after send = %d, want 1", got)
	}

	if err := s.Unmount(ctx, counter); err != nil {
		t.Fatalf("Unmount() error = %v", err)
	}
	if s.State().Has("counter") {
		t.Errorf("State() = %v, counter should be removed after last unmount", s.State())
	}
	if keys.Has("counter") {
		t.Error("counter key should be released after last unmount")
	}
	if counts := s.ObserverCounts(); len(counts) != 0 {
		t.Errorf("ObserverCounts() = %v, want empty", counts)
	}
}

func TestSetState_KeyIsolation(t *testing.T) {
	ctx := context.Background()
	a := atom.New(nil, "a", 0)
	b := atom.New(nil, "b", 0)
	s := store.New(nil)

	var aCalls, bCalls int
	s.SubscribeToKey("a", func(context.Context, store.ChangeEvent) { aCalls++ })
	s.SubscribeToKey("b", func(context.Context, store.ChangeEvent) { bCalls++ })

	s.SetState(ctx, s.State().With("b", 1), b, nil, nil)

	if aCalls != 0 {
		t.Errorf("listener of a fired %d times for a write to b", aCalls)
	}
	if bCalls != 1 {
		t.Errorf("listener of b fired %d times, want 1", bCalls)
	}

	// Unchanged slices still notify their key; the tree is not diffed.
	s.SetState(ctx, s.State().Clone(), a, nil, nil)
	if aCalls != 1 {
		t.Errorf("listener of a fired %d times, want 1", aCalls)
	}
}

func TestSetState_EmissionOrder(t *testing.T) {
	ctx := context.Background()
	a := atom.New(nil, "a", 0)
	s := store.New(nil)

	var order []string
	s.SubscribeToKey("a", func(context.Context, store.ChangeEvent) { order = append(order, "key") })
	s.SubscribeToChanges(func(context.Context, store.ChangeEvent) { order = append(order, "any") })
	s.SubscribeToLifecycle(func(_ context.Context, e store.LifecycleEvent) {
		order = append(order, string(e.Type))
	}, nil)

	s.SetState(ctx, store.StateTree{"a": 1}, a, nil, nil)

	want := []string{"key", "any", "stateChange"}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestSetState_Event(t *testing.T) {
	ctx := context.Background()
	a := atom.New(nil, "text", "")
	s := store.New(store.StateTree{"text": "old"})

	var got store.ChangeEvent
	s.SubscribeToKey("text", func(_ context.Context, e store.ChangeEvent) { got = e })

	if err := store.Send(ctx, s, a, setText, "new"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got.OldState["text"] != "old" {
		t.Errorf("OldState[text] = %v, want old", got.OldState["text"])
	}
	if got.NewState["text"] != "new" {
		t.Errorf("NewState[text] = %v, want new", got.NewState["text"])
	}
	if got.Key != "text" {
		t.Errorf("Key = %q, want text", got.Key)
	}
	if got.Atom != a {
		t.Errorf("Atom = %v, want the written atom", got.Atom)
	}
	if got.MutatorName != "setText" {
		t.Errorf("MutatorName = %q, want setText", got.MutatorName)
	}
	if got.Payload != "new" {
		t.Errorf("Payload = %v, want new", got.Payload)
	}
	if got.StoreID != s.ID() {
		t.Errorf("StoreID = %q, want %q", got.StoreID, s.ID())
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	a := atom.New(nil, "a", 0)
	s := store.New(nil)

	calls := 0
	unsubscribe := s.SubscribeToKey("a", func(context.Context, store.ChangeEvent) { calls++ })
	if s.ListenerCount("a") != 1 {
		t.Errorf("ListenerCount(a) = %d, want 1", s.ListenerCount("a"))
	}

	unsubscribe()
	s.SetState(ctx, store.StateTree{"a": 1}, a, nil, nil)

	if calls != 0 {
		t.Errorf("listener fired %d times after unsubscribe", calls)
	}
	if s.ListenerCount("a") != 0 {
		t.Errorf("ListenerCount(a) = %d, want 0", s.ListenerCount("a"))
	}
}

func TestObserverCounts(t *testing.T) {
	ctx := context.Background()
	a := atom.New(nil, "a", 0)
	s := store.New(nil)

	for range 3 {
		if err := s.Mount(ctx, a); err != nil {
			t.Fatalf("Mount() error = %v", err)
		}
	}
	for range 2 {
		if err := s.Unmount(ctx, a); err != nil {
			t.Fatalf("Unmount() error = %v", err)
		}
	}

	if got := s.ObserverCount("a"); got != 1 {
		t.Errorf("ObserverCount(a) = %d, want 1", got)
	}

	snapshot := s.ObserverCounts()
	snapshot["a"] = 99
	if got := s.ObserverCount("a"); got != 1 {
		t.Errorf("ObserverCounts() should return a copy, count changed to %d", got)
	}

	if err := s.Unmount(ctx, a); err != nil {
		t.Fatalf("Unmount() error = %v", err)
	}
	if _, exists := s.ObserverCounts()["a"]; exists {
		t.Error("zero count should be removed, not stored")
	}

	err := s.Unmount(ctx, a)
	if !errors.Is(err, store.ErrObserverUnderflow) {
		t.Errorf("Unmount() on inactive key error = %v, want ErrObserverUnderflow", err)
	}
	if got := s.ObserverCount("a"); got != 0 {
		t.Errorf("ObserverCount(a) = %d after underflow, want 0", got)
	}
}

func TestUnmount_ResetOnInactive(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		reset    bool
		wantKept bool
	}{
		{name: "reset enabled", reset: true, wantKept: false},
		{name: "reset disabled", reset: false, wantKept: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := atom.New(nil, "a", 0, atom.WithResetOnInactive(tt.reset))
			s := store.New(nil)

			var mutators []string
			s.SubscribeToKey("a", func(_ context.Context, e store.ChangeEvent) {
				mutators = append(mutators, e.MutatorName)
			})

			s.Mount(ctx, a)
			store.Send(ctx, s, a, increment, 5)
			s.Unmount(ctx, a)

			if got := s.State().Has("a"); got != tt.wantKept {
				t.Errorf("State().Has(a) = %v, want %v", got, tt.wantKept)
			}

			want := []string{"increment"}
			if tt.reset {
				want = append(want, "removeInactiveKey")
			}
			if !slices.Equal(mutators, want) {
				t.Errorf("mutators = %v, want %v", mutators, want)
			}
		})
	}
}

func TestLifecycle_Sequence(t *testing.T) {
	ctx := context.Background()
	a := atom.New(nil, "foo", "")
	s := store.New(nil)

	var events []store.LifecycleEvent
	s.SubscribeToLifecycle(func(_ context.Context, e store.LifecycleEvent) {
		events = append(events, e)
	}, nil)

	s.Mount(ctx, a)
	s.Mount(ctx, a)
	store.Send(ctx, s, a, setText, "bar")
	s.Unmount(ctx, a)
	s.Unmount(ctx, a)

	want := []struct {
		typ       store.LifecycleType
		observers map[string]int
		hasFoo    bool
	}{
		{store.LifecycleMount, map[string]int{"foo": 1}, false},
		{store.LifecycleMount, map[string]int{"foo": 2}, false},
		{store.LifecycleStateChange, map[string]int{"foo": 2}, true},
		{store.LifecycleUnmount, map[string]int{"foo": 1}, true},
		{store.LifecycleStateChange, map[string]int{}, false},
		{store.LifecycleUnmount, map[string]int{}, false},
	}

	if len(events) != len(want) {
		t.Fatalf("got %d lifecycle events, want %d", len(events), len(want))
	}
	for i, w := range want {
		e := events[i]
		if e.Type != w.typ {
			t.Errorf("event %d Type = %s, want %s", i, e.Type, w.typ)
		}
		if e.Key != "foo" {
			t.Errorf("event %d Key = %q, want foo", i, e.Key)
		}
		if !maps.Equal(e.Observers, w.observers) {
			t.Errorf("event %d Observers = %v, want %v", i, e.Observers, w.observers)
		}
		if e.State.Has("foo") != w.hasFoo {
			t.Errorf("event %d State = %v, want foo present = %v", i, e.State, w.hasFoo)
		}
		if e.StoreID != s.ID() {
			t.Errorf("event %d StoreID = %q, want %q", i, e.StoreID, s.ID())
		}
	}
}

func TestLifecycle_Predicate(t *testing.T) {
	ctx := context.Background()
	a := atom.New(nil, "a", 0)
	s := store.New(nil)

	var types []store.LifecycleType
	unsubscribe := s.SubscribeToLifecycle(func(_ context.Context, e store.LifecycleEvent) {
		types = append(types, e.Type)
	}, func(e store.LifecycleEvent) bool {
		return e.Type != store.LifecycleStateChange
	})

	s.Mount(ctx, a)
	s.Unmount(ctx, a)

	want := []store.LifecycleType{store.LifecycleMount, store.LifecycleUnmount}
	if !slices.Equal(types, want) {
		t.Errorf("types = %v, want %v", types, want)
	}

	unsubscribe()
	s.Mount(ctx, a)
	if len(types) != 2 {
		t.Errorf("listener fired after unsubscribe, types = %v", types)
	}
}

func TestLifecycle_StateIsSnapshot(t *testing.T) {
	ctx := context.Background()
	a := atom.New(nil, "a", 0)
	s := store.New(nil)

	var got store.LifecycleEvent
	s.SubscribeToLifecycle(func(_ context.Context, e store.LifecycleEvent) { got = e }, nil)

	s.SetState(ctx, store.StateTree{"a": 1}, a, nil, nil)
	got.State["a"] = 2

	if s.State()["a"] != 1 {
		t.Errorf("modifying a lifecycle snapshot changed the store: %v", s.State())
	}
}

func TestListenerReentrancy(t *testing.T) {
	ctx := context.Background()
	a := atom.New(nil, "a", 0)
	b := atom.New(nil, "b", 0)
	s := store.New(nil)

	// A listener of a mirrors every value into b.
	s.SubscribeToKey("a", func(ctx context.Context, e store.ChangeEvent) {
		store.Send(ctx, s, b, setCount, a.Slice(e.NewState))
	})

	store.Send(ctx, s, a, increment, 3)

	if got := b.Slice(s.State()); got != 3 {
		t.Errorf("b = %d, want 3", got)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	a := atom.New(nil, "count", 10)
	s := store.New(nil)

	var names []string
	s.SubscribeToChanges(func(_ context.Context, e store.ChangeEvent) {
		names = append(names, e.MutatorName)
	})

	store.Send(ctx, s, a, increment, 5)
	if got := a.Slice(s.State()); got != 15 {
		t.Errorf("value = %d, want 15", got)
	}

	if err := store.Reset(ctx, s, a); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if got := a.Slice(s.State()); got != 10 {
		t.Errorf("value after reset = %d, want 10", got)
	}
	if !slices.Equal(names, []string{"increment", "resetAtom"}) {
		t.Errorf("mutator names = %v, want [increment resetAtom]", names)
	}
}

func TestSend_UnnamedMutatorWarning(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		production bool
		named      bool
		wantWarn   bool
	}{
		{name: "anonymous in development", wantWarn: true},
		{name: "anonymous in production", production: true},
		{name: "explicitly named in development", named: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			s := store.New(nil,
				store.WithProduction(tt.production),
				store.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
			a := atom.New(nil, "a", 0)
			double := func(n int, _ struct{}) int { return n * 2 }

			if tt.named {
				store.SendNamed(ctx, s, a, "double", double, struct{}{})
			} else {
				store.Send(ctx, s, a, double, struct{}{})
			}

			if warned := strings.Contains(buf.String(), "named function"); warned != tt.wantWarn {
				t.Errorf("warned = %v, want %v (log: %s)", warned, tt.wantWarn, buf.String())
			}
		})
	}
}

func TestWriteRoot(t *testing.T) {
	ctx := context.Background()
	shared := []string{"x"}
	s := store.New(store.StateTree{"same": shared, "changed": 1, "removed": true})

	var keyed []string
	for _, key := range []string{"same", "changed", "removed", "added"} {
		s.SubscribeToKey(key, func(_ context.Context, e store.ChangeEvent) {
			keyed = append(keyed, e.Key)
		})
	}
	anyCalls := 0
	s.SubscribeToChanges(func(context.Context, store.ChangeEvent) { anyCalls++ })
	var lifecycle []string
	s.SubscribeToLifecycle(func(_ context.Context, e store.LifecycleEvent) {
		lifecycle = append(lifecycle, e.Key)
	}, nil)

	next := store.StateTree{"same": shared, "changed": 2, "added": "new"}
	if err := s.WriteRoot(ctx, next); err != nil {
		t.Fatalf("WriteRoot() error = %v", err)
	}

	if !slices.Equal(keyed, []string{"added", "changed", "removed"}) {
		t.Errorf("keyed notifications = %v, want [added changed removed]", keyed)
	}
	if anyCalls != 1 {
		t.Errorf("any-change fired %d times, want 1", anyCalls)
	}
	if !slices.Equal(lifecycle, []string{store.RootKey}) {
		t.Errorf("lifecycle keys = %v, want [%s]", lifecycle, store.RootKey)
	}
	if s.State()["changed"] != 2 || s.State().Has("removed") {
		t.Errorf("State() = %v, want the written tree", s.State())
	}
}

func TestPlaceholder(t *testing.T) {
	ctx := context.Background()
	a := atom.New(nil, "a", 0)
	p := store.Placeholder()

	if !p.IsPlaceholder() {
		t.Fatal("IsPlaceholder() = false")
	}

	calls := 0
	p.SubscribeToChanges(func(context.Context, store.ChangeEvent) { calls++ })

	tests := []struct {
		name string
		op   func() error
	}{
		{name: "mount", op: func() error { return p.Mount(ctx, a) }},
		{name: "unmount", op: func() error { return p.Unmount(ctx, a) }},
		{name: "send", op: func() error { return store.Send(ctx, p, a, increment, 1) }},
		{name: "reset", op: func() error { return store.Reset(ctx, p, a) }},
		{name: "write root", op: func() error { return p.WriteRoot(ctx, store.StateTree{"a": 1}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, store.ErrMissingRoot) {
				t.Errorf("error = %v, want ErrMissingRoot", err)
			}
		})
	}

	p.SetState(ctx, store.StateTree{"a": 1}, a, nil, nil)

	if len(p.State()) != 0 {
		t.Errorf("placeholder State() = %v, want empty", p.State())
	}
	if len(p.ObserverCounts()) != 0 {
		t.Errorf("placeholder ObserverCounts() = %v, want empty", p.ObserverCounts())
	}
	if calls != 0 {
		t.Errorf("placeholder notified %d times, want 0", calls)
	}
}

func TestNewRoot(t *testing.T) {
	ctx := context.Background()

	if !store.FromContext(ctx).IsPlaceholder() {
		t.Error("FromContext() without a root should return a placeholder")
	}

	rootCtx, root, err := store.NewRoot(ctx, store.StateTree{"a": 1})
	if err != nil {
		t.Fatalf("NewRoot() error = %v", err)
	}
	if got := store.FromContext(rootCtx); got != root {
		t.Error("FromContext() should return the root store")
	}

	_, nested, err := store.NewRoot(rootCtx, nil)
	if !errors.Is(err, store.ErrNestedRoot) {
		t.Errorf("nested NewRoot() error = %v, want ErrNestedRoot", err)
	}
	if nested != nil {
		t.Error("nested NewRoot() should not return a store")
	}

	if _, _, err := store.NewRoot(store.WithStore(ctx, store.Placeholder()), nil); err != nil {
		t.Errorf("NewRoot() over a placeholder error = %v, want nil", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	var seen []observability.EventType
	observability.RegisterObserver("store-test", observability.ObserverFunc(
		func(_ context.Context, e observability.Event) { seen = append(seen, e.Type) }))

	s, err := store.NewFromConfig(&config.StoreConfig{Name: "app", Observer: "store-test", Production: true})
	if err != nil {
		t.Fatalf("NewFromConfig() error = %v", err)
	}
	if s.ID() != "app" {
		t.Errorf("ID() = %q, want app", s.ID())
	}
	if !s.Production() {
		t.Error("Production() = false, want true")
	}
	if !slices.Contains(seen, store.EventStoreCreate) {
		t.Errorf("events = %v, want %s", seen, store.EventStoreCreate)
	}

	_, err = store.NewFromConfig(&config.StoreConfig{Observer: "missing"})
	if !errors.Is(err, observability.ErrUnknownObserver) {
		t.Errorf("NewFromConfig() error = %v, want ErrUnknownObserver", err)
	}
}

func TestAtomFromConfig(t *testing.T) {
	keep := false
	a := store.AtomFromConfig(nil, &config.AtomConfig{Key: "todos", Default: "none", ResetOnInactiveNil: &keep})

	if a.Key() != "todos" {
		t.Errorf("Key() = %q, want todos", a.Key())
	}
	if a.DefaultState() != "none" {
		t.Errorf("DefaultState() = %v, want none", a.DefaultState())
	}
	if a.ResetOnInactive() {
		t.Error("ResetOnInactive() = true, want false")
	}
}

func TestObserverEvents(t *testing.T) {
	ctx := context.Background()
	var events []observability.Event
	obs := observability.ObserverFunc(func(_ context.Context, e observability.Event) {
		events = append(events, e)
	})

	a := atom.New(nil, "a", 0)
	s := store.New(nil, store.WithObserver(obs))
	s.Mount(ctx, a)
	s.Unmount(ctx, a)

	var mountObservers, unmountObservers any
	for _, e := range events {
		if e.Scope != s.ID() {
			t.Errorf("%s Scope = %q, want %q", e.Type, e.Scope, s.ID())
		}
		switch e.Type {
		case store.EventMount:
			mountObservers = e.Data[observability.DataObservers]
		case store.EventUnmount:
			unmountObservers = e.Data[observability.DataObservers]
		}
	}
	if mountObservers != 1 || unmountObservers != 0 {
		t.Errorf("observer counts in events = %v and %v, want 1 and 0", mountObservers, unmountObservers)
	}
}

func TestDuplicateKeys_Isolation(t *testing.T) {
	ctx := context.Background()
	keys := atom.NewRegistry(atom.WithLogger(quietLogger()))
	s := store.New(nil, store.WithKeyRegistry(keys))

	first := atom.New(keys, "x", 0)
	second := atom.New(keys, "x", 10)
	if first.Key() != "x" || second.Key() == "x" {
		t.Fatalf("keys = %q, %q, want x and a remapped key", first.Key(), second.Key())
	}

	secondFired := 0
	unsubscribe := s.SubscribeToKey(second.Key(), func(context.Context, store.ChangeEvent) {
		secondFired++
	})
	defer unsubscribe()

	for _, a := range []*atom.Atom[int]{first, second} {
		if err := s.Mount(ctx, a); err != nil {
			t.Fatalf("Mount(%s) error = %v", a.Key(), err)
		}
	}

	if err := store.Send(ctx, s, first, increment, 5); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got := first.Slice(s.State()); got != 5 {
		t.Errorf("first.Slice() = %d, want 5", got)
	}
	if got := second.Slice(s.State()); got != 10 {
		t.Errorf("second.Slice() = %d, want 10", got)
	}
	if secondFired != 0 {
		t.Errorf("second key listener fired %d times, want 0", secondFired)
	}

	for _, a := range []*atom.Atom[int]{first, second} {
		if err := s.Unmount(ctx, a); err != nil {
			t.Fatalf("Unmount(%s) error = %v", a.Key(), err)
		}
	}

	if keys.Has("x") || keys.Has(second.Key()) {
		t.Errorf("Keys() = %v, want both keys released", keys.Keys())
	}
	if again := atom.New(keys, "x", 0); again.Key() != "x" {
		t.Errorf("Key() after release = %q, want x", again.Key())
	}
}
