package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"rtbench/internal/pipeline"
)

// Hooks returns the post-analyses available to a single orchestration
// run. Each treats the collected directory as one dataset and writes its
// outputs next to the data.
func Hooks(logger *slog.Logger) pipeline.Hooks {
	return pipeline.Hooks{
		string(KindTiming):      TimingHook(logger),
		string(KindPerformance): PerformanceHook(logger),
	}
}

func TimingHook(logger *slog.Logger) pipeline.PostHook {
	return func(ctx context.Context, dataDir string) error {
		a, err := singleDataset(dataDir, ".csv", logger)
		if err != nil {
			return err
		}
		return a.Timing(ctx)
	}
}

func PerformanceHook(logger *slog.Logger) pipeline.PostHook {
	return func(ctx context.Context, dataDir string) error {
		a, err := singleDataset(dataDir, ".txt", logger)
		if err != nil {
			return err
		}
		return a.Performance(ctx)
	}
}

func singleDataset(dir, ext string, logger *slog.Logger) (*Analyzer, error) {
	programs, err := ProgramsIn(dir, ext)
	if err != nil {
		return nil, err
	}
	if len(programs) == 0 {
		return nil, fmt.Errorf("no %s files in %s", ext, dir)
	}
	label := filepath.Base(filepath.Clean(dir))
	return &Analyzer{
		Dir:      dir,
		Datasets: []Dataset{{Label: label, Header: label, Dir: dir, Instructions: true}},
		Programs: programs,
		Logger:   logger,
	}, nil
}
