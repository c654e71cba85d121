package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tailored-agentic-units/atomstore/atom"
	"github.com/tailored-agentic-units/atomstore/config"
	"github.com/tailored-agentic-units/atomstore/observability"
	"github.com/tailored-agentic-units/atomstore/scenario"
	"github.com/tailored-agentic-units/atomstore/store"
)

// app holds what every subcommand needs once the persistent flags are
// resolved.
type app struct {
	configFile string
	observer   string
	verbose    bool

	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *observability.PrometheusObserver
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "atomstore",
		Short:        "Replay and inspect atom store scenarios",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Path to a JSON or YAML config file")
	flags.StringVar(&a.observer, "observer", "", "Observer name (overrides config): noop, slog, zap, otel")
	flags.BoolVar(&a.verbose, "verbose", false, "Enable debug logging to stderr")

	root.AddCommand(newRunCmd(a), newServeCmd(a))
	return root
}

func (a *app) init(stderr io.Writer) error {
	cfg := config.DefaultConfig()
	if a.configFile != "" {
		loaded, err := config.Load(a.configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}
	if a.observer != "" {
		cfg.Store.Observer = a.observer
	}
	a.cfg = &cfg

	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if err := a.registerObservers(); err != nil {
		return err
	}

	return cfg.Validate()
}

// registerObservers binds the named observers to this run's logger and
// creates a private Prometheus registry for the store's metrics.
func (a *app) registerObservers() error {
	observability.RegisterObserver("slog", observability.NewSlogObserver(a.logger))

	zapLogger := zap.NewNop()
	if a.cfg.Store.Observer == "zap" {
		var err error
		if a.cfg.Store.Production {
			zapLogger, err = zap.NewProduction()
		} else {
			zapLogger, err = zap.NewDevelopment()
		}
		if err != nil {
			return fmt.Errorf("failed to create zap logger: %w", err)
		}
	}
	observability.RegisterObserver("zap", observability.NewZapObserver(zapLogger))

	otelObserver, err := observability.NewOTelObserver(nil)
	if err != nil {
		return fmt.Errorf("failed to create otel observer: %w", err)
	}
	observability.RegisterObserver("otel", otelObserver)

	a.registry = prometheus.NewRegistry()
	a.metrics, err = observability.NewPrometheusObserver(a.registry)
	if err != nil {
		return fmt.Errorf("failed to create prometheus observer: %w", err)
	}
	return nil
}

// storeEnv is a store together with the key registry and the atoms the
// config file declares for it.
type storeEnv struct {
	store *store.Store
	keys  *atom.Registry
	atoms map[string]*atom.Atom[any]
}

// newStore creates a store from the resolved config and declares the
// config's atoms in its key registry. Store events go to the configured
// observer and to the Prometheus observer.
func (a *app) newStore() (*storeEnv, error) {
	configured, err := observability.GetObserver(a.cfg.Store.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}
	obs := observability.NewMultiObserver(configured, a.metrics)

	keys := atom.NewRegistry(
		atom.WithDevelopment(!a.cfg.Store.Production),
		atom.WithLogger(a.logger),
		atom.WithObserver(obs),
	)

	s, err := store.NewFromConfig(&a.cfg.Store,
		store.WithObserver(obs),
		store.WithLogger(a.logger),
		store.WithKeyRegistry(keys))
	if err != nil {
		return nil, err
	}

	atoms := make(map[string]*atom.Atom[any], len(a.cfg.Atoms))
	for i := range a.cfg.Atoms {
		atoms[a.cfg.Atoms[i].Key] = store.AtomFromConfig(keys, &a.cfg.Atoms[i])
	}

	return &storeEnv{store: s, keys: keys, atoms: atoms}, nil
}

// run replays sc against the environment's store with the config's atoms
// in scope.
func (e *storeEnv) run(ctx context.Context, sc *scenario.Scenario) (*scenario.Result, error) {
	return sc.Run(ctx, e.store, e.keys, scenario.WithAtoms(e.atoms))
}
