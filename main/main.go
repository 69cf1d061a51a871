package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rtbench/internal/config"
	"rtbench/internal/logging"
)

type globalFlags struct {
	logLevel  string
	logFormat string
	ledger    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rtbench: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "rtbench",
		Short: "Build, deploy, run and analyze real-time benchmarks on an embedded target",
		Long: `rtbench compiles benchmark programs on the host, deploys them over SSH to a
remote board, builds and runs them there, collects traces and timing output,
and turns the data into tables and plots.

Connection defaults come from ~/.rtbench/config.(yaml|json) profiles and
RTBENCH_* environment variables. Runs are recorded in ~/.rtbench/runs.db.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", config.String("RTBENCH_LOG_LEVEL", "info"), "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", config.String("RTBENCH_LOG_FORMAT", "text"), "log format: text or json")
	root.PersistentFlags().StringVar(&g.ledger, "ledger", "", "path of the run ledger (default ~/.rtbench/runs.db)")

	root.AddCommand(
		newRunCmd(g),
		newExperimentCmd(g),
		newAnalyzeCmd(g),
		newListCmd(g),
		newShowCmd(g),
		newArchiveCmd(g),
	)
	return root
}

func (g *globalFlags) logger() (*slog.Logger, error) {
	return logging.New(os.Stderr, g.logLevel, g.logFormat)
}
