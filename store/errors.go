package store

import "errors"

// ErrMissingRoot is returned by operations invoked on the placeholder store,
// which stands in when no root store is in scope.
var ErrMissingRoot = errors.New("no root store in scope")

// ErrNestedRoot is returned by NewRoot when the context already carries a
// root store.
var ErrNestedRoot = errors.New("root store already in scope")

// ErrObserverUnderflow is returned by Unmount for a key with no active
// observers.
var ErrObserverUnderflow = errors.New("unmount without matching mount")
