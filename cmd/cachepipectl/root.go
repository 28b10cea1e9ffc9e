package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/cachepipe/config"
)

// app carries the runtime shared by subcommands.
type app struct {
	rt *config.Runtime
}

// execute runs the CLI with args and releases the runtime whether or not
// the command succeeded.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	return errors.CombineErrors(err, a.close(context.WithoutCancel(ctx)))
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "cachepipectl",
		Short:        "Inspect and manage a cachepipe cache",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}
	root.PersistentFlags().String("config", "", "path to the YAML config (env CACHEPIPE_CONFIG)")
	root.PersistentFlags().Duration("timeout", 10*time.Second, "timeout for each command")

	root.AddCommand(
		newGetCmd(a),
		newDeleteCmd(a),
		newInvalidateCmd(a),
		newClearCmd(a),
		newBreakerCmd(a),
		newHealthCmd(a),
	)
	return root
}

// flagOrEnv returns the flag value, else the environment value, else def.
func flagOrEnv(cmd *cobra.Command, flag, env, def string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v
	}
	if v, ok := os.LookupEnv(env); ok && v != "" {
		return v
	}
	return def
}

func (a *app) open(cmd *cobra.Command) error {
	if cmd.Name() == "help" || (cmd.HasParent() && cmd.Parent().Name() == "completion") {
		return nil
	}
	path := flagOrEnv(cmd, "config", "CACHEPIPE_CONFIG", "cachepipe.yaml")
	cfg, err := config.Load(cmd.Context(), path)
	if err != nil {
		return err
	}
	// The CLI writes results to stdout; keep library logs off it.
	cfg.Observe.Logging.Enabled = false
	rt, err := config.Build(cmd.Context(), cfg)
	if err != nil {
		return errors.Wrap(err, "build runtime")
	}
	a.rt = rt
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.rt == nil {
		return nil
	}
	err := a.rt.Close(ctx)
	a.rt = nil
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
