// Package experiment runs a benchmark set under several compiler variants
// and compares the variants with timing or performance analysis.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"rtbench/internal/logging"
	"rtbench/internal/pipeline"
)

// PipelineRunner runs one orchestration. *pipeline.Runner implements it.
type PipelineRunner interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.Report, error)
}

// Experiment binds an experiment file to the connection and tool settings
// shared by all its variants.
type Experiment struct {
	File   *File
	Base   pipeline.Options
	Runner PipelineRunner
	Logger *slog.Logger
	Now    func() time.Time
	Seed   uint64
}

// Run executes every variant into a fresh run directory and analyzes the
// result. With existing set, only the analysis runs, over that directory.
// It returns the run directory.
func (e *Experiment) Run(ctx context.Context, existing string) (string, error) {
	logger := logging.Or(e.Logger)
	dir, err := e.runDir(existing)
	if err != nil {
		return "", err
	}
	logger = logger.With("experiment", e.File.Name, "dir", dir)

	if err := os.MkdirAll(filepath.Join(dir, plotsDir), 0o755); err != nil {
		return dir, err
	}
	if e.File.Animation != nil {
		if err := os.MkdirAll(filepath.Join(dir, framesDir), 0o755); err != nil {
			return dir, err
		}
	}

	if existing == "" {
		for _, v := range e.File.Variants {
			opts := e.variantOptions(dir, v)
			logger.Info("running variant", "label", v.Label, "flags", v.Flags)
			report, err := e.Runner.Run(ctx, opts)
			if err != nil {
				return dir, fmt.Errorf("variant %s: %w", v.Label, err)
			}
			logger.Info("variant finished", "label", v.Label, "run", report.RunID,
				"failed", report.Count(pipeline.StatusFailed), "missing", report.Count(pipeline.StatusMissing))
		}
		target := filepath.Join(dir, "src-gen")
		if err := os.CopyFS(target, os.DirFS(e.File.Generated)); err != nil {
			logger.Error("copying generated sources", "src", e.File.Generated, "dst", target, "err", err)
		}
	}

	programs, err := e.programs()
	if err != nil {
		return dir, err
	}
	a := e.analyzer(dir, programs)
	a.Logger = logger
	switch e.File.Analysis {
	case KindPerformance:
		err = a.Performance(ctx)
	default:
		err = a.Timing(ctx)
	}
	if err != nil {
		return dir, fmt.Errorf("%s analysis: %w", e.File.Analysis, err)
	}
	logger.Info("experiment analyzed", "programs", len(programs))
	return dir, nil
}

func (e *Experiment) runDir(existing string) (string, error) {
	if existing != "" {
		dir := existing
		if _, err := os.Stat(dir); err != nil && !filepath.IsAbs(dir) {
			dir = filepath.Join(e.File.Output, existing)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return "", fmt.Errorf("experiment dir: %w", err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("experiment dir %s is not a directory", dir)
		}
		return dir, nil
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	dir := filepath.Join(e.File.Output, e.File.RunDirName(now()))
	if err := os.MkdirAll(e.File.Output, 0o755); err != nil {
		return "", err
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return dir, nil
}

func (e *Experiment) variantOptions(dir string, v Variant) pipeline.Options {
	opts := e.Base
	opts.Name = e.File.Name + "/" + v.Label
	opts.Flags = append(append([]string(nil), e.Base.Flags...), v.Flags...)
	opts.Select = e.File.Select
	opts.Exclude = v.Exclude
	opts.Tracing = e.File.TracingEnabled()
	opts.Repeat = e.File.RepeatCount()
	opts.Source = e.File.Source
	opts.Generated = e.File.Generated
	opts.DataDir = filepath.Join(dir, v.Label)
	opts.PostOnly = false
	opts.PostAnalysis = ""
	return opts
}

// programs is the select list, or every program in the source directory.
func (e *Experiment) programs() ([]string, error) {
	if len(e.File.Select) > 0 {
		return e.File.Select, nil
	}
	programs, err := ProgramsIn(e.File.Source, pipeline.SourceExt)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return programs, nil
}

func (e *Experiment) analyzer(dir string, programs []string) *Analyzer {
	a := &Analyzer{
		Dir:        dir,
		Programs:   programs,
		Source:     e.File.Source,
		LoC:        e.File.LoC,
		References: e.File.References,
		Annotate:   e.File.Annotate,
		Animation:  e.File.Animation,
		Caption:    e.File.Caption,
		Seed:       e.Seed,
	}
	for _, v := range e.File.Variants {
		a.Datasets = append(a.Datasets, Dataset{
			Label:        v.Label,
			Header:       v.Header(),
			Dir:          filepath.Join(dir, v.Label),
			Instructions: v.Instructions,
		})
	}
	return a
}
