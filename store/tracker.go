package store

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/atomstore/atom"
	"github.com/tailored-agentic-units/atomstore/observability"
)

// Mount records a new observer of a and emits a mount lifecycle event
// carrying the incremented counts.
func (s *Store) Mount(ctx context.Context, a atom.Descriptor) error {
	if s.placeholder {
		s.ignored(ctx, "Mount", a.Key())
		return fmt.Errorf("mount %s: %w", a.Key(), ErrMissingRoot)
	}

	key := a.Key()

	s.mu.Lock()
	s.observers[key]++
	count := s.observers[key]
	state := s.state
	s.mu.Unlock()

	s.emitLifecycle(ctx, LifecycleMount, key, state)
	s.notify(ctx, EventMount, observability.LevelVerbose, key, map[string]any{
		observability.DataObservers: count,
	})

	return nil
}

// Unmount removes an observer of a. When the last observer leaves, the
// count entry is deleted, the key is released from the key registry, and,
// if a resets on inactive, the slice is removed from the tree through
// SetState before the unmount lifecycle event is emitted.
//
// Unmounting a key without observers changes nothing and returns
// ErrObserverUnderflow.
func (s *Store) Unmount(ctx context.Context, a atom.Descriptor) error {
	if s.placeholder {
		s.ignored(ctx, "Unmount", a.Key())
		return fmt.Errorf("unmount %s: %w", a.Key(), ErrMissingRoot)
	}

	key := a.Key()

	s.mu.Lock()
	count, exists := s.observers[key]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("unmount %s: %w", key, ErrObserverUnderflow)
	}
	count--
	if count == 0 {
		delete(s.observers, key)
	} else {
		s.observers[key] = count
	}
	s.mu.Unlock()

	if count == 0 {
		s.cleanup(ctx, a)
	}

	s.emitLifecycle(ctx, LifecycleUnmount, key, s.State())
	s.notify(ctx, EventUnmount, observability.LevelVerbose, key, map[string]any{
		observability.DataObservers: count,
	})

	return nil
}

func (s *Store) cleanup(ctx context.Context, a atom.Descriptor) {
	key := a.Key()

	if s.keys != nil {
		s.keys.Release(key)
	}

	if a.ResetOnInactive() {
		s.setState(ctx, s.State().Without(key), a, removeInactiveKey, "removeInactiveKey", nil)
	}

	s.notify(ctx, EventCleanup, observability.LevelVerbose, key, map[string]any{
		"reset": a.ResetOnInactive(),
	})
}

func removeInactiveKey(tree StateTree, key string) StateTree {
	return tree.Without(key)
}
