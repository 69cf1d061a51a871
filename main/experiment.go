package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rtbench/internal/experiment"
	"rtbench/internal/ledger"
	"rtbench/internal/pipeline"
)

func newExperimentCmd(g *globalFlags) *cobra.Command {
	var (
		conn          connFlags
		experimentDir string
		seed          uint64
	)
	cmd := &cobra.Command{
		Use:   "experiment FILE",
		Short: "Run every variant of an experiment file and compare them",
		Example: `  rtbench experiment experiments/timing.yaml --profile rpi4

  rtbench experiment experiments/timing.yaml --experiment-dir 2024-03-03_23-18-51-RPI4-NP_LB_EGS-ALL`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := g.logger()
			if err != nil {
				return err
			}
			file, err := experiment.Load(args[0])
			if err != nil {
				return err
			}
			prof, env, err := loadProfiles(conn.profile)
			if err != nil {
				return err
			}
			base, err := baseOptions(conn.profileFrom(nil, prof, env))
			if err != nil {
				return err
			}
			base.ChromeTraces = conn.chrome

			runner := pipeline.NewRunner(logger)
			if experimentDir == "" {
				if err := promptPassword(&base.Remote, os.Stdin, os.Stderr); err != nil {
					return err
				}
				l, err := ledger.Open(g.ledger)
				if err != nil {
					logger.Warn("run ledger unavailable", "err", err)
				} else {
					defer l.Close()
					runner.Journal = l
				}
			}
			e := &experiment.Experiment{
				File:   file,
				Base:   base,
				Runner: runner,
				Logger: logger,
				Seed:   seed,
			}
			dir, err := e.Run(cmd.Context(), experimentDir)
			if dir != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Experiment directory: %s\n", dir)
			}
			return err
		},
	}
	conn.bind(cmd.Flags())
	cmd.Flags().StringVar(&experimentDir, "experiment-dir", "", "existing run directory (absolute or under the output root); only post-processing runs")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "seed for sampling plotted points")
	return cmd
}

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze timing|performance DATA_DIR",
		Short: "Analyze one collected data directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := g.logger()
			if err != nil {
				return err
			}
			hook, err := experiment.Hooks(logger).Lookup(args[0])
			if err != nil {
				return err
			}
			if hook == nil {
				return nil
			}
			return hook(cmd.Context(), args[1])
		},
	}
}
