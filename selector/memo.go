package selector

import (
	"sync"

	"github.com/tailored-agentic-units/atomstore/equal"
)

// Memo wraps fn so that it keeps returning its previous result until
// isNew(prev, next) reports a change. A nil isNew treats results as new
// unless they are equal.Shallow. The first call always caches.
func Memo[X, Y any](fn func(X) Y, isNew func(prev, next Y) bool) func(X) Y {
	if isNew == nil {
		isNew = func(prev, next Y) bool { return !equal.Shallow(prev, next) }
	}

	var (
		cached Y
		primed bool
		mu     sync.Mutex
	)

	return func(x X) Y {
		next := fn(x)

		mu.Lock()
		defer mu.Unlock()

		if !primed || isNew(cached, next) {
			cached = next
			primed = true
		}
		return cached
	}
}
