package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot(os.Stdout)
	if err := root.Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands.
func buildRoot(out io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	c := command{out: out}

	root := createRootCommand(globalFlags)
	root.SetOut(out)
	root.AddCommand(
		createCheckCommand(c, globalFlags),
		createStatusCommand(c, globalFlags),
		createStopCommand(c, globalFlags),
		createHistoryCommand(c, globalFlags),
		createServeCommand(c, globalFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "procwatch",
		Short: "Liveness watchdog for one background process",
		Long: `Procwatch checks that one background process is running and still
writing to its activity log, and restarts it when either check fails.
Each invocation is a single pass; schedule it with cron or a systemd timer,
or run "procwatch serve" and POST /check.

Examples:
  procwatch check --config=procwatch.toml
  procwatch status
  procwatch history --limit=10
  procwatch serve --listen=127.0.0.1:9105`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createCheckCommand(c command, g *GlobalFlags) *cobra.Command {
	f := &CheckFlags{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one health check and restart the target if unhealthy",
		Long: `Run one pass: probe the process table and the activity log, restart
the target when it is not running or idle for longer than max_idle, and
record the outcome in the status file.

Exit code is 1 only when a restart was attempted and failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = g.ConfigPath
			return c.Check(cmd.Context(), *f)
		},
	}
	cmd.Flags().DurationVar(&f.MaxIdle, "max-idle", 0, "override target.max_idle (e.g. 20m)")
	return cmd
}

func createStatusCommand(c command, g *GlobalFlags) *cobra.Command {
	f := &StatusFlags{}
	return &cobra.Command{
		Use:   "status",
		Short: "Show the recorded status and the last launched PID",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = g.ConfigPath
			return c.Status(*f)
		},
	}
}

func createStopCommand(c command, g *GlobalFlags) *cobra.Command {
	f := &StopFlags{}
	return &cobra.Command{
		Use:   "stop",
		Short: "Terminate the target and record it as Stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = g.ConfigPath
			return c.Stop(cmd.Context(), *f)
		},
	}
}

func createHistoryCommand(c command, g *GlobalFlags) *cobra.Command {
	f := &HistoryFlags{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent passes from the history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = g.ConfigPath
			return c.History(cmd.Context(), *f)
		},
	}
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "number of events to show")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print events as JSON")
	return cmd
}

func createServeCommand(c command, g *GlobalFlags) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve status, history, metrics and on-demand checks over HTTP",
		Long: `Serve a small HTTP surface for one target:

  GET  /healthz   GET /status   GET /history?limit=N
  POST /check     GET /metrics

The server never checks on its own schedule; POST /check runs one pass.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = g.ConfigPath
			return c.Serve(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Listen, "listen", "", "listen address (overrides server.listen)")
	cmd.Flags().StringVar(&f.BasePath, "base-path", "", "URL prefix (overrides server.base_path)")
	return cmd
}
