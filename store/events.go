package store

import (
	"time"

	"github.com/tailored-agentic-units/atomstore/atom"
	"github.com/tailored-agentic-units/atomstore/observability"
)

const (
	// AnyChangeTopic receives every ChangeEvent regardless of key.
	AnyChangeTopic = "$$atomstore.anyChange"

	// LifecycleTopic is the single topic of the lifecycle channel.
	LifecycleTopic = "$$atomstore.lifecycle"

	// RootKey is the key reported for whole-tree writes.
	RootKey = "$$atomstore.root"
)

const (
	// Store operations
	EventStoreCreate  observability.EventType = "store.create"
	EventStoreSet     observability.EventType = "store.set"
	EventStoreWrite   observability.EventType = "store.write_root"
	EventStoreIgnored observability.EventType = "store.ignored"

	// Observer tracking
	EventMount   observability.EventType = "store.mount"
	EventUnmount observability.EventType = "store.unmount"
	EventCleanup observability.EventType = "store.cleanup"
)

// ChangeEvent describes a single state replacement. Key is the topic the
// event was emitted for; Atom is nil for whole-tree writes.
type ChangeEvent struct {
	OldState    StateTree
	NewState    StateTree
	Key         string
	Atom        atom.Descriptor
	Mutator     any
	MutatorName string
	Payload     any
	StoreID     string
}

// LifecycleType enumerates lifecycle notifications.
type LifecycleType string

const (
	LifecycleMount       LifecycleType = "mount"
	LifecycleUnmount     LifecycleType = "unmount"
	LifecycleStateChange LifecycleType = "stateChange"
)

// LifecycleEvent reports observer and state activity to tooling. State and
// Observers are copies taken at emission time.
type LifecycleEvent struct {
	Type      LifecycleType
	Key       string
	State     StateTree
	Observers map[string]int
	StoreID   string
	Timestamp time.Time
}
