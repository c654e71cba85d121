package store

import "maps"

// StateTree maps atom keys to their slices. Trees handed out by a Store are
// shared and must be treated as read-only; derive new trees with With and
// Without.
type StateTree map[string]any

// Clone returns a shallow copy. Cloning a nil tree yields an empty one.
func (t StateTree) Clone() StateTree {
	if t == nil {
		return StateTree{}
	}
	return maps.Clone(t)
}

// With returns a copy of t with key set to value.
func (t StateTree) With(key string, value any) StateTree {
	next := t.Clone()
	next[key] = value
	return next
}

// Without returns a copy of t with key removed.
func (t StateTree) Without(key string) StateTree {
	next := t.Clone()
	delete(next, key)
	return next
}

// Has reports whether key is present.
func (t StateTree) Has(key string) bool {
	_, exists := t[key]
	return exists
}
