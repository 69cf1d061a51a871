package experiment

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"rtbench/internal/analysis"
	"rtbench/internal/logging"
	"rtbench/internal/pipeline"
	"rtbench/internal/report"
	"rtbench/internal/trace"
)

// ErrMissingStatistic is returned by a performance analysis when a program
// has no elapsed times in some dataset.
var ErrMissingStatistic = errors.New("missing statistic")

// AccuracySampleLimit bounds the points drawn in a timing accuracy plot.
const AccuracySampleLimit = 10_000

const (
	groupAxis = "Group (Reactor, Destination)"
	plotsDir  = "plots"
	framesDir = "frames"
)

// Dataset is one directory of collected run data.
type Dataset struct {
	Label  string
	Header string
	Dir    string
	// Instructions marks datasets whose traces carry VM instruction events.
	Instructions bool
}

// Analyzer turns collected data into plots, tables and summaries under Dir.
type Analyzer struct {
	Dir      string
	Datasets []Dataset
	Programs []string
	// Source locates <program>.lf for counting lines when LoC has no entry.
	Source     string
	LoC        map[string]int
	References map[string]string
	Annotate   bool
	Animation  *Animation
	Caption    string
	Seed       uint64
	Logger     *slog.Logger
}

func (a *Analyzer) logger() *slog.Logger { return logging.Or(a.Logger) }

func (a *Analyzer) plots() string { return filepath.Join(a.Dir, plotsDir) }

func (a *Analyzer) order() []string {
	out := make([]string, len(a.Datasets))
	for i, ds := range a.Datasets {
		out[i] = ds.Label
	}
	return out
}

func (a *Analyzer) title(what string) string {
	headers := make([]string, len(a.Datasets))
	for i, ds := range a.Datasets {
		headers[i] = ds.Header
	}
	return what + ": " + strings.Join(headers, " vs. ")
}

func (a *Analyzer) table(caption, label string) report.Table {
	t := report.Table{
		Path:       filepath.Join(a.Dir, "table.tex"),
		Programs:   a.Programs,
		Stats:      make(map[string]map[string]analysis.Summary),
		LoC:        a.linesOfCode(),
		References: a.References,
		Caption:    caption,
		Label:      label,
	}
	if a.Caption != "" {
		t.Caption = a.Caption
	}
	for _, ds := range a.Datasets {
		t.Columns = append(t.Columns, report.Column{Label: ds.Label, Header: ds.Header})
		t.Stats[ds.Label] = make(map[string]analysis.Summary)
	}
	return t
}

func (a *Analyzer) linesOfCode() map[string]int {
	out := make(map[string]int, len(a.Programs))
	for _, p := range a.Programs {
		if n, ok := a.LoC[p]; ok {
			out[p] = n
			continue
		}
		if a.Source == "" {
			continue
		}
		if n, err := CountLines(filepath.Join(a.Source, p+pipeline.SourceExt)); err == nil {
			out[p] = n
		}
	}
	return out
}

// CountLines counts the non-blank lines of a file.
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n, sc.Err()
}

// saved logs an empty figure instead of failing.
func (a *Analyzer) saved(path string, err error) error {
	switch {
	case err == nil:
		a.logger().Debug("plot written", "path", path)
		return nil
	case errors.Is(err, report.ErrNoData):
		a.logger().Info("plot skipped, no data", "path", path)
		return nil
	default:
		return fmt.Errorf("plot %s: %w", filepath.Base(path), err)
	}
}

func (a *Analyzer) prepare() error {
	if len(a.Datasets) == 0 {
		return errors.New("no datasets to analyze")
	}
	return os.MkdirAll(a.plots(), 0o755)
}

// timingSets is the per-dataset analysis of one program's traces.
type timingSets struct {
	precision, accuracy, execution, instructions []analysis.Dataset
}

func (a *Analyzer) loadTiming(program string) timingSets {
	var s timingSets
	for _, ds := range a.Datasets {
		path := filepath.Join(ds.Dir, program+".csv")
		recs, err := trace.LoadCSV(path)
		if errors.Is(err, os.ErrNotExist) {
			a.logger().Warn("trace missing", "program", program, "dataset", ds.Label, "path", path)
			continue
		}
		if err != nil {
			a.logger().Warn("trace unreadable, skipped", "program", program, "dataset", ds.Label, "path", path, "err", err)
			continue
		}
		s.precision = append(s.precision, analysis.Dataset{Label: ds.Label, Points: analysis.TimingPrecision(recs)})
		s.accuracy = append(s.accuracy, analysis.Dataset{Label: ds.Label, Points: analysis.TimingAccuracy(recs)})
		s.execution = append(s.execution, analysis.Dataset{Label: ds.Label, Points: analysis.ExecutionTimes(recs)})
		if ds.Instructions {
			s.instructions = append(s.instructions, analysis.Dataset{Label: ds.Label, Points: analysis.InstructionExecutionTimes(recs)})
		}
	}
	return s
}

// Timing writes, per program, precision, accuracy, execution time and VM
// instruction plots, accuracy statistics and outliers, and finally a
// table of per-program lag statistics.
func (a *Analyzer) Timing(ctx context.Context) error {
	if err := a.prepare(); err != nil {
		return err
	}
	table := a.table(
		"Average, maximum, and standard deviation of the lags in microseconds per scheduler.",
		"tab:accuracy_results",
	)
	for _, program := range a.Programs {
		if err := ctx.Err(); err != nil {
			return err
		}
		sets := a.loadTiming(program)
		for _, ds := range sets.accuracy {
			if s, ok := analysis.ProgramStatistics(ds.Points); ok {
				table.Stats[ds.Label][program] = s
			}
		}
		if err := a.timingReports(program, sets); err != nil {
			return fmt.Errorf("%s: %w", program, err)
		}
		a.logger().Info("timing analysis done", "program", program, "datasets", len(sets.accuracy))
	}
	return table.WriteFile()
}

func (a *Analyzer) timingReports(program string, s timingSets) error {
	order := a.order()
	out := func(suffix string) string { return filepath.Join(a.plots(), program+suffix) }

	path := out("_timing_precision.svg")
	fig := report.Figure{Title: a.title("Timing Precision"), XLabel: groupAxis, YLabel: "Time Difference", Annotate: a.Annotate}
	if err := a.saved(path, report.BoxPlot(path, fig, analysis.Combine(s.precision...), order)); err != nil {
		return err
	}

	accuracy := analysis.Combine(s.accuracy...)
	path = out("_timing_accuracy.svg")
	fig = report.Figure{Title: a.title("Timing Accuracy"), XLabel: groupAxis, YLabel: "Lag", Annotate: a.Annotate}
	if err := a.saved(path, report.StripPlot(path, fig, accuracy, order, AccuracySampleLimit, a.Seed)); err != nil {
		return err
	}
	if len(s.accuracy) > 0 {
		stats := report.GroupRecords(analysis.GroupStatistics(accuracy))
		if err := report.WriteJSON(out("_timing_accuracy_stats.json"), stats); err != nil {
			return err
		}
	}
	for _, ds := range s.accuracy {
		if err := report.WriteOutliers(out("_timing_accuracy_outliers_"+ds.Label+".csv"), analysis.Outliers(ds.Points)); err != nil {
			return err
		}
	}
	if a.Animation != nil && len(accuracy) > 0 {
		anim := report.Animation{
			Program:   program,
			FramesDir: filepath.Join(a.Dir, framesDir),
			GIFPath:   out("_timing_accuracy_animation.gif"),
			Frames:    a.Animation.Frames,
			FPS:       a.Animation.FPS,
			Figure:    report.Figure{Title: a.title("Timing Accuracy"), XLabel: groupAxis, YLabel: "Lag"},
			Order:     order,
		}
		if err := a.saved(anim.GIFPath, anim.Render(s.accuracy)); err != nil {
			return err
		}
	}

	path = out("_execution_time.svg")
	fig = report.Figure{Title: a.title("Execution Times"), XLabel: groupAxis, YLabel: "Execution Time", Annotate: a.Annotate}
	if err := a.saved(path, report.BoxPlot(path, fig, analysis.Combine(s.execution...), order)); err != nil {
		return err
	}

	if len(s.instructions) == 0 {
		return nil
	}
	path = out("_vm_execution_time.svg")
	fig = report.Figure{Title: "Instruction Execution Times", XLabel: "Instruction Type, Source", YLabel: "Instruction Execution Time", Annotate: a.Annotate}
	return a.saved(path, report.BoxPlot(path, fig, analysis.Combine(s.instructions...), order))
}

// Performance summarizes the elapsed times of repeated runs. Every program
// must have data in every dataset.
func (a *Analyzer) Performance(ctx context.Context) error {
	if err := a.prepare(); err != nil {
		return err
	}
	table := a.table(
		"Average, maximum, and standard deviation of the benchmark execution times per scheduler.",
		"tab:performance_results",
	)
	var (
		records []report.PerformanceRecord
		points  []analysis.Labeled
	)
	for _, program := range a.Programs {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, ds := range a.Datasets {
			path := filepath.Join(ds.Dir, program+".txt")
			times, err := trace.LoadElapsedTimes(path)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			s, ok := analysis.SummarizeInts(times)
			if !ok {
				return fmt.Errorf("%w: %s has no elapsed times in %s", ErrMissingStatistic, program, path)
			}
			table.Stats[ds.Label][program] = s
			records = append(records, report.NewPerformanceRecord(program, ds.Label, s, times))
			for _, t := range times {
				points = append(points, analysis.Labeled{Dataset: ds.Label, Point: analysis.Point{Group: program, Value: t}})
			}
		}
	}
	if err := table.WriteFile(); err != nil {
		return err
	}
	if err := report.WriteJSON(filepath.Join(a.Dir, "data.json"), records); err != nil {
		return err
	}
	path := filepath.Join(a.plots(), "performance.svg")
	fig := report.Figure{Title: a.title("Execution Times"), XLabel: "Program", YLabel: "Elapsed Physical Time", Annotate: a.Annotate}
	return a.saved(path, report.BoxPlot(path, fig, points, a.order()))
}

// ProgramsIn lists the programs with a file of the given extension in dir,
// sorted.
func ProgramsIn(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ext))
	}
	slices.Sort(out)
	return out, nil
}
