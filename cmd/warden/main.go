package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	LogJSON    bool
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "warden",
		Short: "Container entrypoint and gateway supervisor",
		Long: `Warden is the top-level control loop of an agent gateway container.
It applies one-shot provider configuration, spawns the gateway subprocess,
polls its liveness endpoint, and restarts it with bounded backoff when
health checks fail. Warden itself never exits on gateway failure.

Examples:
  warden run                         # bootstrap, then supervise the gateway
  warden run --skip-bootstrap        # supervise only
  warden bootstrap                   # apply configuration and exit
  warden status                      # query the local admin endpoint
  warden history --limit 10          # recent gateway lifecycle events`,
	}

	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&globalFlags.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&globalFlags.LogJSON, "log-json", false, "emit logs as JSON")

	root.AddCommand(
		createRunCommand(globalFlags),
		createBootstrapCommand(globalFlags),
		createStatusCommand(globalFlags),
		createHistoryCommand(globalFlags),
	)
	return root
}
