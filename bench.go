package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rotathumb/pkg/benchmark"
)

func newBenchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bench",
		Short: "Time each phase of a sweep and the effect of the result cache",
		RunE:  runBench,
	}
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	phases, err := benchmark.RunPhaseBenchmark(cfg.Render)
	if err != nil {
		return err
	}

	// Cached runs write real frames, keep them out of the user's directories
	tmp, err := os.MkdirTemp("", "rotathumb-bench-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	job := cfg.Render
	job.OutputDir = tmp
	cold, warm, err := benchmark.RunCachedBenchmark(cmd.Context(), job)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), benchmark.GeneratePerformanceSummary(phases, cold, warm))
	return nil
}
