// Package devtools passively records a store's activity for inspection: a
// bounded action log built from change events, and the latest observer
// counts and state reported by lifecycle events. A Server exposes the
// recording over HTTP with a websocket live feed.
//
// Recording never writes to the store.
package devtools

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/tailored-agentic-units/atomstore/channel"
	"github.com/tailored-agentic-units/atomstore/store"
)

// DefaultLogSize is the number of entries kept when no size is configured.
const DefaultLogSize = 50

const feedTopic = "entry"

// Action identifies the write that produced a log entry.
type Action struct {
	FunctionName string `json:"functionName"`
	Payload      any    `json:"payload"`
	AtomKey      string `json:"atomKey"`
}

// Entry is one action log record. AtomState is the whole tree after the
// write.
type Entry struct {
	Action    Action          `json:"action"`
	AtomState store.StateTree `json:"atomState"`
	Timestamp time.Time       `json:"timestamp"`
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogSize bounds the action log. Values below 1 are ignored.
func WithLogSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.logSize = n
		}
	}
}

// Recorder subscribes to a store and keeps the newest entries first.
type Recorder struct {
	logSize      int
	log          []Entry
	observers    map[string]int
	state        store.StateTree
	feed         *channel.Channel[Entry]
	unsubscribes []func()
	mu           sync.RWMutex
}

// NewRecorder starts recording s. Close stops it.
func NewRecorder(s *store.Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		logSize:   DefaultLogSize,
		observers: s.ObserverCounts(),
		state:     s.State(),
		feed:      channel.New[Entry](),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.unsubscribes = []func(){
		s.SubscribeToChanges(r.onChange),
		s.SubscribeToLifecycle(r.onLifecycle, nil),
	}
	return r
}

// Log returns the recorded entries, newest first.
func (r *Recorder) Log() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.log)
}

// Observers returns the observer counts from the latest lifecycle event.
func (r *Recorder) Observers() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.observers)
}

// State returns the latest state seen by the recorder.
func (r *Recorder) State() store.StateTree {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Subscribe registers fn for every new entry. fn runs synchronously inside
// the store's write and must not block.
func (r *Recorder) Subscribe(fn channel.Listener[Entry]) func() {
	id := r.feed.Subscribe(feedTopic, fn)
	return func() { r.feed.Unsubscribe(id) }
}

// Subscribers returns the number of live entry subscriptions.
func (r *Recorder) Subscribers() int {
	return r.feed.ListenerCount(feedTopic)
}

// Close stops recording. Recorded data stays readable.
func (r *Recorder) Close() {
	r.mu.Lock()
	unsubscribes := r.unsubscribes
	r.unsubscribes = nil
	r.mu.Unlock()

	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}
}

func (r *Recorder) onChange(ctx context.Context, e store.ChangeEvent) {
	entry := Entry{
		Action: Action{
			FunctionName: e.MutatorName,
			Payload:      e.Payload,
			AtomKey:      e.Key,
		},
		AtomState: e.NewState,
		Timestamp: time.Now(),
	}

	r.mu.Lock()
	r.log = append([]Entry{entry}, r.log[:min(len(r.log), r.logSize-1)]...)
	r.state = e.NewState
	r.mu.Unlock()

	r.feed.Emit(ctx, feedTopic, entry)
}

func (r *Recorder) onLifecycle(_ context.Context, e store.LifecycleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = e.Observers
	r.state = e.State
}
