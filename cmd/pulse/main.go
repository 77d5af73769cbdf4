package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/five82/pulse/internal/app"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, app.ErrNoSnapshot) {
			fmt.Fprintln(os.Stderr, "pulse: no snapshot saved yet, run pulse watch --once first")
			return 2
		}
		fmt.Fprintf(os.Stderr, "pulse: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var opts app.Options

	root := &cobra.Command{
		Use:           "pulse",
		Short:         "Live sales pipeline dashboard",
		Long:          "pulse polls a spreadsheet proxy at an adaptive cadence and shows the pipeline in the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file path (default $XDG_CONFIG_HOME/pulse/config.toml)")
	root.Flags().StringVar(&opts.PrefsPath, "prefs", "", "dashboard preferences path (default $XDG_CONFIG_HOME/pulse/prefs.toml)")
	root.Flags().BoolVar(&opts.StartPaused, "paused", false, "start with polling paused")

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Poll without the dashboard and print each update as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.LogWriter = cmd.ErrOrStderr()
			return app.Watch(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	watch.Flags().BoolVar(&opts.Once, "once", false, "fetch once and exit")

	snapshot := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the last persisted snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.PrintSnapshot(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pulse %s\n", version)
		},
	}

	root.AddCommand(watch, snapshot, versionCmd)
	return root
}
