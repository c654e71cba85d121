package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/atomstore/scenario"
)

func newRunCmd(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Replay a scenario against a fresh store and print the action log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			out := cmd.OutOrStdout()

			if err := a.runScenario(cmd.Context(), out, path); err != nil && !watch {
				return err
			}
			if !watch {
				return nil
			}

			a.logger.Info("watching scenario for changes", "path", path)
			return watchFile(cmd.Context(), a.logger, path, func() {
				a.runScenario(cmd.Context(), out, path)
			})
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Re-run the scenario whenever the file changes")
	return cmd
}

// runScenario replays the scenario at path against a new store and writes
// a report to out. Failures are logged as well as returned so watch mode
// keeps reporting them.
func (a *app) runScenario(ctx context.Context, out io.Writer, path string) error {
	sc, err := scenario.Load(path)
	if err != nil {
		a.logger.Error("failed to load scenario", "path", path, "error", err)
		return err
	}

	env, err := a.newStore()
	if err != nil {
		return err
	}

	result, runErr := env.run(ctx, sc)
	printResult(out, result)

	if runErr != nil {
		a.logger.Error("scenario failed", "scenario", sc.Name, "error", runErr)
		return runErr
	}
	return nil
}

func printResult(out io.Writer, result *scenario.Result) {
	fmt.Fprintf(out, "Scenario: %s\n", result.Name)
	fmt.Fprintf(out, "Steps completed: %d\n", result.Steps)

	fmt.Fprintln(out, "\nAction log (newest first):")
	for i, entry := range result.Log {
		payload, err := json.Marshal(entry.Action.Payload)
		if err != nil {
			payload = []byte(fmt.Sprintf("%v", entry.Action.Payload))
		}
		name := entry.Action.FunctionName
		if name == "" {
			name = "<anonymous>"
		}
		fmt.Fprintf(out, "  [%d] %s %s(%s)\n", i+1, entry.Action.AtomKey, name, payload)
	}

	fmt.Fprintln(out, "\nFinal state:")
	for _, key := range slices.Sorted(maps.Keys(result.State)) {
		fmt.Fprintf(out, "  %s = %v\n", key, result.State[key])
	}

	if len(result.Observers) > 0 {
		fmt.Fprintln(out, "\nActive observers:")
		for _, key := range slices.Sorted(maps.Keys(result.Observers)) {
			fmt.Fprintf(out, "  %s: %d\n", key, result.Observers[key])
		}
	}
}
