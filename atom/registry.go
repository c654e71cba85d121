package atom

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/tailored-agentic-units/atomstore/observability"
)

const (
	EventKeyClaim   observability.EventType = "atom.key.claim"
	EventKeyRemap   observability.EventType = "atom.key.remap"
	EventKeyRelease observability.EventType = "atom.key.release"
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDevelopment marks remapped keys with an "/@atomDuplicate" segment so
// they stand out in tooling.
func WithDevelopment(dev bool) RegistryOption {
	return func(r *Registry) { r.development = dev }
}

// WithLogger sets the logger used for duplicate-key warnings.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithObserver sets the observer notified of key activity.
func WithObserver(obs observability.Observer) RegistryOption {
	return func(r *Registry) { r.observer = obs }
}

// Registry tracks the atom keys in use and remaps collisions. Remap
// suffixes come from a counter that only grows, so a remapped key is never
// handed out twice by the same registry.
type Registry struct {
	keys        map[string]struct{}
	duplicates  int
	development bool
	logger      *slog.Logger
	observer    observability.Observer
	mu          sync.Mutex
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		keys:   make(map[string]struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.observer = observability.OrNoOp(r.observer)
	return r
}

// Claim registers key and returns it, or returns a remapped key when key is
// already held.
func (r *Registry) Claim(key string) string {
	r.mu.Lock()
	actual := key
	for r.held(actual) {
		actual = r.remap(key)
	}
	r.keys[actual] = struct{}{}
	r.mu.Unlock()

	if actual != key {
		r.logger.Warn("duplicate atom key detected, generated a new key",
			"key", key,
			"remapped", actual)
		r.notify(EventKeyRemap, observability.LevelWarning, key, map[string]any{"remapped": actual})
	} else {
		r.notify(EventKeyClaim, observability.LevelVerbose, key, nil)
	}

	return actual
}

// Release frees key for reuse. Releasing an unknown key is a no-op.
func (r *Registry) Release(key string) {
	r.mu.Lock()
	_, exists := r.keys[key]
	delete(r.keys, key)
	r.mu.Unlock()

	if exists {
		r.notify(EventKeyRelease, observability.LevelVerbose, key, nil)
	}
}

// Has reports whether key is currently held.
func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held(key)
}

// Keys returns the held keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.keys))
	for k := range r.keys {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	slices.Sort(keys)
	return keys
}

// Duplicates returns how many remapped keys the registry has generated.
func (r *Registry) Duplicates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.duplicates
}

func (r *Registry) held(key string) bool {
	_, exists := r.keys[key]
	return exists
}

func (r *Registry) remap(key string) string {
	var remapped string
	if r.development {
		remapped = fmt.Sprintf("%s/@atomDuplicate/%d", key, r.duplicates)
	} else {
		remapped = fmt.Sprintf("%s/%d", key, r.duplicates)
	}
	r.duplicates++
	return remapped
}

func (r *Registry) notify(t observability.EventType, level observability.Level, key string, data map[string]any) {
	r.observer.OnEvent(context.Background(), observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "atom.Registry",
		Key:       key,
		Data:      data,
	})
}
