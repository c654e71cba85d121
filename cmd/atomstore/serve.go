package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/atomstore/devtools"
	"github.com/tailored-agentic-units/atomstore/scenario"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve [scenario.yaml]",
		Short: "Serve the devtools API for a store, optionally seeded by a scenario",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Devtools.Addr = addr
			}

			env, err := a.newStore()
			if err != nil {
				return err
			}

			rec := devtools.NewRecorder(env.store, devtools.WithLogSize(a.cfg.Devtools.LogSize))
			defer rec.Close()

			srv := devtools.NewServer(rec, &a.cfg.Devtools,
				devtools.WithGatherer(a.registry),
				devtools.WithLogger(a.logger),
				devtools.WithObserver(a.metrics))

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return srv.Run(ctx)
			})

			if len(args) == 1 {
				path := args[0]
				replay := func(ctx context.Context) {
					sc, err := scenario.Load(path)
					if err != nil {
						a.logger.Error("failed to load scenario", "path", path, "error", err)
						return
					}
					if _, err := env.run(ctx, sc); err != nil {
						a.logger.Error("scenario failed", "scenario", sc.Name, "error", err)
					}
				}

				replay(ctx)
				if watch {
					g.Go(func() error {
						return watchFile(ctx, a.logger, path, func() { replay(ctx) })
					})
				}
			}

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Replay the scenario into the store whenever the file changes")
	return cmd
}
