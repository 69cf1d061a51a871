package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"rtbench/internal/ledger"
	"rtbench/internal/logging"
	"rtbench/internal/metrics"
	"rtbench/internal/remote"
)

// DialFunc opens the remote session for a run.
type DialFunc func(ctx context.Context, cfg remote.Config) (remote.Session, error)

// Journal persists runs and outcomes. *ledger.Ledger implements it.
type Journal interface {
	StartRun(ctx context.Context, r ledger.Run) error
	RecordOutcome(ctx context.Context, runID string, o ledger.Outcome) error
	FinishRun(ctx context.Context, id, status, dataDir string, completedAt time.Time) error
}

type Runner struct {
	Dial      DialFunc
	Commander Commander
	Journal   Journal
	Hooks     Hooks
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewRunner returns a runner dialing over SSH and running host commands
// with os/exec.
func NewRunner(logger *slog.Logger) *Runner {
	logger = logging.Or(logger)
	return &Runner{
		Dial: func(ctx context.Context, cfg remote.Config) (remote.Session, error) {
			s, err := remote.Dial(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		Commander: ExecCommander{},
		Hooks:     Hooks{},
		Logger:    logger,
		Now:       time.Now,
	}
}

// run is the state of one Runner.Run call.
type run struct {
	*Runner
	opts   Options
	logger *slog.Logger
	report *Report
	sess   remote.Session
	dest   string
	data   string
	// unavailable maps programs that cannot run to the reason.
	unavailable map[string]string
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Run executes the pipeline. The returned report is non-nil whenever the
// options validated, including on failure.
func (r *Runner) Run(ctx context.Context, opts Options) (_ *Report, err error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	rn := &run{
		Runner:      r,
		opts:        opts,
		logger:      logging.Or(r.Logger),
		unavailable: make(map[string]string),
		report: &Report{
			RunID:   uuid.NewString(),
			Started: r.now(),
			Metrics: metrics.NewRecorder(),
		},
	}
	rn.logger = rn.logger.With("run", rn.report.RunID)
	rn.report.Metrics.RunStarted(rn.report.Started)

	if opts.PostOnly {
		rn.logger.Info("post-only run, skipping remote stages", "data_dir", opts.DataDir)
		return rn.report, rn.postAnalysis(ctx, opts.DataDir)
	}

	programs, omitted, err := Discover(opts)
	if err != nil {
		return rn.report, err
	}
	rn.report.Programs = programs
	rn.startJournal(ctx)
	defer func() { rn.finish(ctx, err) }()
	for _, o := range omitted {
		rn.record(ctx, o)
	}
	rn.logger.Info("discovered programs", "count", len(programs), "omitted", len(omitted), "source", opts.Source)

	if err := rn.connect(ctx); err != nil {
		return rn.report, err
	}
	defer rn.closeSession()

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StageBuild, rn.build},
		{StageCopy, rn.copy},
		{StageRemoteBuild, rn.remoteBuild},
		{StageRun, rn.runPrograms},
		{StageCollect, rn.collect},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return rn.report, err
		}
		began := r.now()
		err := s.fn(ctx)
		rn.report.Metrics.ObserveStage(s.name, r.now().Sub(began))
		if err != nil {
			return rn.report, fmt.Errorf("%s stage: %w", s.name, err)
		}
	}
	rn.closeSession()

	dir := rn.report.DataDir
	if dir == "" {
		dir = opts.DataDir
	}
	return rn.report, rn.postAnalysis(ctx, dir)
}

func (rn *run) connect(ctx context.Context) error {
	cfg := rn.opts.Remote
	sess, err := rn.Dial(ctx, cfg)
	if err != nil {
		if !errors.Is(err, remote.ErrConnect) {
			err = fmt.Errorf("%w: %v", remote.ErrConnect, err)
		}
		rn.logger.Error("cannot connect to remote host", "addr", cfg.Addr(), "err", err)
		return err
	}
	rn.sess = sess
	rn.logger.Info("connected to remote host", "addr", cfg.Addr())
	rn.exec(ctx, "hostname", "hostname")

	rn.dest, rn.data = rn.opts.RemoteDest, rn.opts.RemoteData
	if strings.HasPrefix(rn.dest, "~") || strings.HasPrefix(rn.data, "~") {
		home, err := remote.HomeDir(ctx, sess)
		if err != nil {
			return err
		}
		rn.dest = remote.ExpandHome(rn.dest, home)
		rn.data = remote.ExpandHome(rn.data, home)
	}
	return nil
}

func (rn *run) closeSession() {
	if rn.sess == nil {
		return
	}
	if err := rn.sess.Close(); err != nil {
		rn.logger.Warn("closing remote session", "err", err)
	}
	rn.sess = nil
}

func (rn *run) postAnalysis(ctx context.Context, dataDir string) error {
	hook, err := rn.Hooks.Lookup(rn.opts.PostAnalysis)
	if err != nil || hook == nil {
		return err
	}
	if dataDir == "" {
		return fmt.Errorf("post-analysis %q: no data directory was collected", rn.opts.PostAnalysis)
	}
	rn.logger.Info("running post-analysis", "name", rn.opts.PostAnalysis, "data_dir", dataDir)
	if err := hook(ctx, dataDir); err != nil {
		return fmt.Errorf("post-analysis %s: %w", rn.opts.PostAnalysis, err)
	}
	return nil
}

// record appends an outcome to the report, metrics and journal.
func (rn *run) record(ctx context.Context, o ProgramOutcome) {
	rn.report.Outcomes = append(rn.report.Outcomes, o)
	rn.report.Metrics.CountOutcome(o.Stage, o.Status)
	attrs := []any{"program", o.Program, "stage", o.Stage, "status", o.Status}
	if o.Detail != "" {
		attrs = append(attrs, "detail", o.Detail)
	}
	switch o.Status {
	case StatusFailed, StatusMissing:
		rn.logger.Warn("program outcome", attrs...)
	default:
		rn.logger.Debug("program outcome", attrs...)
	}
	if rn.Journal == nil {
		return
	}
	err := rn.Journal.RecordOutcome(ctx, rn.report.RunID, ledger.Outcome{
		Program: o.Program, Stage: o.Stage, Status: o.Status, Detail: o.Detail, RecordedAt: rn.now(),
	})
	if err != nil {
		rn.logger.Warn("ledger write failed", "err", err)
	}
}

func (rn *run) startJournal(ctx context.Context) {
	if rn.Journal == nil {
		return
	}
	snap, err := configSnapshot(rn.opts)
	if err != nil {
		rn.logger.Warn("config snapshot not recorded", "err", err)
	}
	commit, branch := ledger.GitInfo(ctx, rn.opts.Source)
	err = rn.Journal.StartRun(ctx, ledger.Run{
		ID:             rn.report.RunID,
		Name:           rn.opts.Name,
		Host:           rn.opts.Remote.Addr(),
		Tracing:        rn.opts.Tracing,
		Repeat:         rn.opts.Repeat,
		Flags:          strings.Join(rn.opts.Flags, " "),
		DataDir:        rn.opts.DataDir,
		Status:         ledger.StatusRunning,
		GitCommit:      commit,
		GitBranch:      branch,
		CreatedAt:      rn.report.Started,
		ConfigSnapshot: snap,
	})
	if err != nil {
		rn.logger.Warn("ledger write failed", "err", err)
	}
}

func (rn *run) finish(ctx context.Context, runErr error) {
	if rn.report.DataDir != "" {
		path := filepath.Join(rn.report.DataDir, "metrics.prom")
		if err := rn.report.Metrics.WriteTextfile(path); err != nil {
			rn.logger.Warn("metrics not written", "err", err)
		}
	}
	if rn.Journal == nil {
		return
	}
	status := ledger.StatusCompleted
	if runErr != nil {
		status = ledger.StatusFailed
	}
	// The run context may already be cancelled; the final status still
	// has to be written.
	if err := rn.Journal.FinishRun(context.WithoutCancel(ctx), rn.report.RunID, status, rn.report.DataDir, rn.now()); err != nil {
		rn.logger.Warn("ledger write failed", "err", err)
	}
}

// configSnapshot is the JSON stored with a run. The password is left out.
func configSnapshot(o Options) (string, error) {
	b, err := json.Marshal(snapshot(o))
	if err != nil {
		return "", fmt.Errorf("marshal config snapshot: %w", err)
	}
	return string(b), nil
}

func snapshot(o Options) map[string]any {
	return map[string]any{
		"name":              o.Name,
		"host":              o.Remote.Host,
		"port":              o.Remote.Port,
		"user":              o.Remote.User,
		"host_key_policy":   string(o.Remote.HostKeyPolicy),
		"compiler":          o.Compiler,
		"flags":             o.Flags,
		"select":            o.Select,
		"exclude":           o.Exclude,
		"tracing":           o.Tracing,
		"repeat":            o.Repeat,
		"src":               o.Source,
		"src_gen":           o.Generated,
		"data_dir":          o.DataDir,
		"remote_dest":       o.RemoteDest,
		"remote_data":       o.RemoteData,
		"converter":         string(o.Converter),
		"chrome":            o.ChromeTraces,
		"skip_compile":      o.SkipCompile,
		"skip_copy":         o.SkipCopy,
		"skip_remote_build": o.SkipRemoteBuild,
		"skip_run":          o.SkipRun,
		"skip_trace_parse":  o.SkipTraceParse,
		"post_analysis":     o.PostAnalysis,
	}
}
