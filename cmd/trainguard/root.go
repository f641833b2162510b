package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"trainguard/internal/config"
	"trainguard/internal/dataset"
	"trainguard/internal/expmanager"
	"trainguard/internal/hardware"
	"trainguard/internal/logging"
	"trainguard/internal/model"
	"trainguard/internal/trainer"
)

const version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trainguard",
		Short:         "Training harness with straggler detection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newTrainCmd())
	root.AddCommand(newProbeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newTrainCmd() *cobra.Command {
	var (
		cfgPath     string
		accelerator string
		maxSteps    int
		batchSize   int
		seed        int64
		logEvery    int
		logDir      string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run a training job from a YAML config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			cfg.ApplyOverrides(config.Overrides{
				Accelerator: accelerator,
				MaxSteps:    maxSteps,
				BatchSize:   batchSize,
				Seed:        seed,
				LogEvery:    logEvery,
				LogDir:      logDir,
			})
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: true})

			tr, err := trainer.New(trainer.Options{
				Strategy:          cfg.Strategy,
				Devices:           cfg.Devices,
				Accelerator:       cfg.Accelerator,
				MaxSteps:          cfg.MaxSteps,
				ValCheckInterval:  cfg.ValCheckInterval,
				BatchSize:         cfg.BatchSize,
				LogEvery:          cfg.LogEvery,
				EnableProgressLog: true,
			}, logger)
			if err != nil {
				return err
			}

			exp, err := expmanager.Setup(tr, cfg.ExpManager, logger)
			if err != nil {
				return err
			}
			logger.Info().Str("run_id", exp.RunID.String()).Msg("Run prepared")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := model.NewLinear(cfg.InFeatures, cfg.OutFeatures, cfg.LearningRate, cfg.Seed)
			data := dataset.NewOnes(cfg.DatasetLen, cfg.InFeatures)
			return tr.Fit(ctx, m, data)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "configs/straggler.yaml", "Path to YAML config")
	cmd.Flags().StringVar(&accelerator, "accelerator", "", "Override accelerator (cpu, gpu)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Override number of training steps")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Override batch size")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Override PRNG seed")
	cmd.Flags().IntVar(&logEvery, "log-every", 0, "Override step log interval")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "Override experiment log directory")
	return cmd
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Print host facts used for run eligibility",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := hardware.Probe(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
