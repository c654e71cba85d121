package store

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/atomstore/atom"
	"github.com/tailored-agentic-units/atomstore/config"
	"github.com/tailored-agentic-units/atomstore/observability"
)

type contextKey struct{}

// NewRoot creates a root store and returns a context carrying it. A context
// may carry only one root; nesting returns ErrNestedRoot.
func NewRoot(ctx context.Context, initial StateTree, opts ...Option) (context.Context, *Store, error) {
	if existing, ok := ctx.Value(contextKey{}).(*Store); ok && !existing.placeholder {
		return ctx, nil, fmt.Errorf("new root %s: %w", existing.id, ErrNestedRoot)
	}

	s := New(initial, opts...)
	return WithStore(ctx, s), s, nil
}

// WithStore returns a context carrying s.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the store carried by ctx, or a placeholder when there
// is none.
func FromContext(ctx context.Context) *Store {
	if s, ok := ctx.Value(contextKey{}).(*Store); ok {
		return s
	}
	return Placeholder()
}

// NewFromConfig creates a store from configuration. The configured observer
// name is resolved through the observability registry; options are applied
// after the configured values and may override them.
func NewFromConfig(cfg *config.StoreConfig, opts ...Option) (*Store, error) {
	obs, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	base := []Option{
		WithObserver(obs),
		WithProduction(cfg.Production),
	}
	if cfg.Name != "" {
		base = append(base, WithID(cfg.Name))
	}

	return New(nil, append(base, opts...)...), nil
}

// AtomFromConfig declares an atom from configuration, claiming its key from
// reg when reg is non-nil.
func AtomFromConfig(reg *atom.Registry, cfg *config.AtomConfig) *atom.Atom[any] {
	return atom.New(reg, cfg.Key, cfg.Default, atom.WithResetOnInactive(cfg.ResetOnInactive()))
}
