// Package store implements the state store and subscription engine: a single
// state tree owned by a Store, change notifications scoped by atom key, and
// per-key observer counts that drive cleanup of inactive slices.
//
// Writes replace the tree wholesale and then notify, in order, the
// listeners of the written key, the any-change listeners, and the lifecycle
// listeners. Emission is synchronous and never happens while a Store lock is
// held, so listeners may read, write, mount, or unmount from inside a
// callback.
//
//	keys := atom.NewRegistry()
//	counter := atom.New(keys, "counter", 0)
//	s := store.New(nil, store.WithKeyRegistry(keys))
//
//	s.Mount(ctx, counter)
//	store.Send(ctx, s, counter, increment, 1)
//	counter.Slice(s.State()) // 1
//	s.Unmount(ctx, counter)  // slice removed, key released
package store

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/atomstore/atom"
	"github.com/tailored-agentic-units/atomstore/channel"
	"github.com/tailored-agentic-units/atomstore/observability"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for convention warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithObserver sets the observer notified of store activity.
func WithObserver(obs observability.Observer) Option {
	return func(s *Store) { s.observer = obs }
}

// WithKeyRegistry sets the registry that atom keys are released from once
// their last observer unmounts.
func WithKeyRegistry(reg *atom.Registry) Option {
	return func(s *Store) { s.keys = reg }
}

// WithProduction disables development-only warnings.
func WithProduction(production bool) Option {
	return func(s *Store) { s.production = production }
}

// WithID overrides the generated store id.
func WithID(id string) Option {
	return func(s *Store) { s.id = id }
}

// Store owns a state tree, its change and lifecycle channels, and the
// observer counts of the atoms reading from it.
//
// Reads are safe from any goroutine. Writes are not serialized: Send, Reset,
// WriteRoot, and the cleanup run by the last Unmount read the tree, derive a
// new one, and then store it, so concurrent writers can lose updates. Issue
// writes, mounts, and unmounts from one goroutine.
type Store struct {
	id          string
	state       StateTree
	observers   map[string]int
	changes     *channel.Channel[ChangeEvent]
	lifecycle   *channel.Channel[LifecycleEvent]
	keys        *atom.Registry
	logger      *slog.Logger
	observer    observability.Observer
	production  bool
	placeholder bool
	mu          sync.RWMutex
}

// New creates a Store holding initial. A nil initial tree starts empty.
func New(initial StateTree, opts ...Option) *Store {
	if initial == nil {
		initial = StateTree{}
	}

	s := &Store{
		id:        uuid.Must(uuid.NewV7()).String(),
		state:     initial,
		observers: make(map[string]int),
		changes:   channel.New[ChangeEvent](),
		lifecycle: channel.New[LifecycleEvent](),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.observer = observability.OrNoOp(s.observer)

	s.notify(context.Background(), EventStoreCreate, observability.LevelVerbose, "", map[string]any{
		"keys": len(initial),
	})

	return s
}

// Placeholder returns a store that stands in when no root store is in
// scope. Its operations change nothing; Mount, Unmount, Send, Reset, and
// WriteRoot report ErrMissingRoot.
func Placeholder() *Store {
	s := New(nil)
	s.placeholder = true
	return s
}

// IsPlaceholder reports whether s was created by Placeholder.
func (s *Store) IsPlaceholder() bool {
	return s.placeholder
}

func (s *Store) ID() string {
	return s.id
}

// Production reports whether development-only warnings are disabled.
func (s *Store) Production() bool {
	return s.production
}

// State returns the current tree. The tree is shared and must not be
// modified.
func (s *Store) State() StateTree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState replaces the tree with newState and then notifies the listeners
// of a's key, the any-change listeners, and the lifecycle listeners, in that
// order. It returns after every listener has run. The tree is not diffed:
// listeners of a's key are notified even when its slice is unchanged.
//
// mutator and payload are carried on the ChangeEvent for tooling; the
// mutator's name is resolved with FuncName.
func (s *Store) SetState(ctx context.Context, newState StateTree, a atom.Descriptor, mutator any, payload any) {
	s.setState(ctx, newState, a, mutator, FuncName(mutator), payload)
}

func (s *Store) setState(ctx context.Context, newState StateTree, a atom.Descriptor, mutator any, name string, payload any) {
	if s.placeholder {
		s.ignored(ctx, "SetState", a.Key())
		return
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
		Key:         a.Key(),
		Atom:        a,
		Mutator:     mutator,
		MutatorName: name,
		Payload:     payload,
		StoreID:     s.id,
	}

	s.changes.Emit(ctx, a.Key(), event)
	s.changes.Emit(ctx, AnyChangeTopic, event)
	s.emitLifecycle(ctx, LifecycleStateChange, a.Key(), newState)

	s.notify(ctx, EventStoreSet, observability.LevelVerbose, a.Key(), map[string]any{
		"mutator": name,
	})
}

// SubscribeToKey registers fn for changes written through atoms with the
// given key. The returned function removes the subscription.
func (s *Store) SubscribeToKey(key string, fn channel.Listener[ChangeEvent]) func() {
	id := s.changes.Subscribe(key, fn)
	return func() { s.changes.Unsubscribe(id) }
}

// SubscribeToChanges registers fn for every change.
func (s *Store) SubscribeToChanges(fn channel.Listener[ChangeEvent]) func() {
	return s.SubscribeToKey(AnyChangeTopic, fn)
}

// SubscribeToLifecycle registers fn for lifecycle events accepted by
// predicate. A nil predicate accepts every event.
func (s *Store) SubscribeToLifecycle(fn channel.Listener[LifecycleEvent], predicate func(LifecycleEvent) bool) func() {
	listener := fn
	if predicate != nil {
		listener = func(ctx context.Context, e LifecycleEvent) {
			if predicate(e) {
				fn(ctx, e)
			}
		}
	}

	id := s.lifecycle.Subscribe(LifecycleTopic, listener)
	return func() { s.lifecycle.Unsubscribe(id) }
}

// ListenerCount returns the number of change listeners registered for key.
func (s *Store) ListenerCount(key string) int {
	return s.changes.ListenerCount(key)
}

// ChannelMetrics returns delivery counters of the change channel.
func (s *Store) ChannelMetrics() channel.MetricsSnapshot {
	return s.changes.Metrics()
}

// ObserverCounts returns a snapshot of the active observer count per key.
// Keys without observers are absent.
func (s *Store) ObserverCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.observers)
}

// ObserverCount returns the number of active observers of key.
func (s *Store) ObserverCount(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.observers[key]
}

func (s *Store) emitLifecycle(ctx context.Context, t LifecycleType, key string, state StateTree) {
	if s.lifecycle.ListenerCount(LifecycleTopic) == 0 {
		return
	}

	s.lifecycle.Emit(ctx, LifecycleTopic, LifecycleEvent{
		Type:      t,
		Key:       key,
		State:     state.Clone(),
		Observers: s.ObserverCounts(),
		StoreID:   s.id,
		Timestamp: time.Now(),
	})
}

func (s *Store) ignored(ctx context.Context, op, key string) {
	s.logger.Error(fmt.Sprintf("%s called without a root store", op), "atom", key)
	s.notify(ctx, EventStoreIgnored, observability.LevelError, key, map[string]any{"operation": op})
}

func (s *Store) notify(ctx context.Context, t observability.EventType, level observability.Level, key string, data map[string]any) {
	s.observer.OnEvent(ctx, observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "store",
		Scope:     s.id,
		Key:       key,
		Data:      data,
	})
}
