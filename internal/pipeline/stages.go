package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"rtbench/internal/remote"
)

const traceExt = ".lft"

var q = remote.ShellQuote

func (rn *run) exec(ctx context.Context, where, cmd string) (remote.Result, error) {
	res, err := rn.sess.Execute(ctx, cmd)
	rn.logCommand(where, cmd, res, err)
	return res, err
}

func (rn *run) logCommand(where, cmd string, res remote.Result, err error) {
	if err != nil {
		rn.logger.Error("command failed", "where", where, "cmd", cmd, "err", err)
		return
	}
	attrs := []any{
		"where", where, "cmd", cmd, "exit", res.ExitStatus,
		"stdout", strings.TrimSpace(res.Stdout), "stderr", strings.TrimSpace(res.Stderr),
	}
	if res.OK() {
		rn.logger.Info("command finished", attrs...)
		return
	}
	rn.logger.Warn("command finished", attrs...)
}

func status(res remote.Result, err error) (string, string) {
	if err != nil {
		return StatusFailed, err.Error()
	}
	if !res.OK() {
		detail := fmt.Sprintf("exit status %d", res.ExitStatus)
		if s := lastLine(res.Stderr); s != "" {
			detail += ": " + s
		}
		return StatusFailed, detail
	}
	return StatusOK, ""
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func (rn *run) skipAll(ctx context.Context, stage, why string) {
	for _, p := range rn.report.Programs {
		rn.record(ctx, ProgramOutcome{Program: p.Name, Stage: stage, Status: StatusSkipped, Detail: why})
	}
}

// available records a missing outcome for programs that cannot take part
// in stage and reports whether p can.
func (rn *run) available(ctx context.Context, p Program, stage string) bool {
	reason, ok := rn.unavailable[p.Name]
	if !ok {
		return true
	}
	rn.record(ctx, ProgramOutcome{Program: p.Name, Stage: stage, Status: StatusMissing, Detail: reason})
	return false
}

// CompileArgs are the compiler arguments for one program.
func CompileArgs(opts Options, p Program) []string {
	args := []string{"-n"}
	if opts.Tracing {
		args = append(args, "--tracing")
	}
	args = append(args, opts.Flags...)
	return append(args, p.Source)
}

func (rn *run) build(ctx context.Context) error {
	if rn.opts.SkipCompile {
		rn.skipAll(ctx, StageBuild, "skip-compile")
		return nil
	}
	gen, err := filepath.Abs(rn.opts.Generated)
	if err != nil {
		return err
	}
	if src, _ := filepath.Abs(rn.opts.Source); gen == filepath.Dir(gen) || gen == src {
		return fmt.Errorf("refusing to clean generated-source directory %s", gen)
	}
	if err := os.RemoveAll(gen); err != nil {
		return fmt.Errorf("clean generated sources: %w", err)
	}
	rn.logger.Info("compiling programs", "compiler", rn.opts.Compiler, "count", len(rn.report.Programs))
	for _, p := range rn.report.Programs {
		if err := ctx.Err(); err != nil {
			return err
		}
		args := CompileArgs(rn.opts, p)
		res, err := rn.Commander.Run(ctx, "", rn.opts.Compiler, args...)
		rn.logCommand("host", rn.opts.Compiler+" "+strings.Join(args, " "), res, err)
		st, detail := status(res, err)
		rn.record(ctx, ProgramOutcome{Program: p.Name, Stage: StageBuild, Status: st, Detail: detail})
	}
	return nil
}

func (rn *run) copy(ctx context.Context) error {
	if rn.opts.SkipCopy {
		rn.skipAll(ctx, StageCopy, "skip-copy")
		return nil
	}
	if _, err := rn.exec(ctx, "remote", fmt.Sprintf("rm -rf %s && mkdir -p %s", q(rn.dest), q(rn.dest))); err != nil {
		return err
	}
	for _, p := range rn.report.Programs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if info, err := os.Stat(p.Generated); err != nil || !info.IsDir() {
			rn.unavailable[p.Name] = "not deployed"
			rn.record(ctx, ProgramOutcome{Program: p.Name, Stage: StageCopy, Status: StatusMissing, Detail: "no generated sources at " + p.Generated})
			continue
		}
		dst := p.RemoteDir(rn.dest)
		rn.logger.Info("transferring", "program", p.Name, "src", p.Generated, "dst", dst)
		if err := rn.sess.Transfer(ctx, p.Generated, dst, remote.HostToRemote); err != nil {
			rn.unavailable[p.Name] = "not deployed"
			rn.record(ctx, ProgramOutcome{Program: p.Name, Stage: StageCopy, Status: StatusFailed, Detail: err.Error()})
			continue
		}
		rn.record(ctx, ProgramOutcome{Program: p.Name, Stage: StageCopy, Status: StatusOK})
	}
	return nil
}

// RemoteBuildCommand configures and compiles one deployed program.
func RemoteBuildCommand(dir string) string {
	return fmt.Sprintf("cd %s && mkdir -p build && cd build && cmake .. && make", q(dir))
}

func (rn *run) remoteBuild(ctx context.Context) error {
	if rn.opts.SkipRemoteBuild {
		rn.skipAll(ctx, StageRemoteBuild, "skip-remote-build")
		return nil
	}
	for _, p := range rn.report.Programs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !rn.available(ctx, p, StageRemoteBuild) {
			continue
		}
		st, detail := status(rn.exec(ctx, "remote", RemoteBuildCommand(p.RemoteDir(rn.dest))))
		rn.record(ctx, ProgramOutcome{Program: p.Name, Stage: StageRemoteBuild, Status: st, Detail: detail})
	}
	return nil
}

// RunCommand runs one program from the data directory, either once or
// opts.Repeat times with stdout captured in <name>.txt, and renames the
// trace file when tracing.
func RunCommand(opts Options, p Program, dest, data string) string {
	bin := q(p.Binary(dest))
	var b strings.Builder
	fmt.Fprintf(&b, "cd %s && ", q(data))
	if opts.Repeat == 0 {
		b.WriteString(bin)
	} else {
		fmt.Fprintf(&b, "for i in $(seq 1 %d); do %s; done > %s", opts.Repeat, bin, q(p.Name+".txt"))
	}
	if opts.Tracing {
		fmt.Fprintf(&b, " && mv %s %s", q(opts.TraceFile), q(p.Name+traceExt))
	}
	return b.String()
}

func (rn *run) runPrograms(ctx context.Context) error {
	if rn.opts.SkipRun {
		rn.skipAll(ctx, StageRun, "skip-run")
		return nil
	}
	if _, err := rn.exec(ctx, "remote", fmt.Sprintf("rm -rf %s && mkdir -p %s", q(rn.data), q(rn.data))); err != nil {
		return err
	}
	for _, p := range rn.report.Programs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !rn.available(ctx, p, StageRun) {
			continue
		}
		st, detail := status(rn.exec(ctx, "remote", RunCommand(rn.opts, p, rn.dest, rn.data)))
		rn.record(ctx, ProgramOutcome{Program: p.Name, Stage: StageRun, Status: st, Detail: detail})
	}
	return nil
}

// ConvertCommand converts one trace file inside dir.
func ConvertCommand(opts Options, dir, file string) string {
	cmd := fmt.Sprintf("cd %s && %s %s", q(dir), q(opts.CSVConverter), q(file))
	if opts.ChromeTraces {
		cmd += fmt.Sprintf(" && %s %s", q(opts.ChromeConverter), q(file))
	}
	return cmd
}

func (rn *run) collect(ctx context.Context) error {
	switch {
	case !rn.opts.Tracing:
		rn.skipAll(ctx, StageConvert, "tracing disabled")
	case rn.opts.SkipTraceParse:
		rn.skipAll(ctx, StageConvert, "skip-trace-parse")
	case rn.opts.Converter == ConvertRemote:
		if err := rn.convertRemote(ctx); err != nil {
			return err
		}
	}

	if !rn.opts.Collects() {
		rn.skipAll(ctx, StageCollect, "tracing disabled and repeat is 0")
		return nil
	}
	target := rn.opts.DataDir
	if target == "" {
		target = filepath.Join(rn.opts.HostData, rn.report.Started.Format(TimestampLayout))
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	rn.logger.Info("collecting data", "src", rn.data, "dst", target)
	if err := rn.sess.Transfer(ctx, rn.data, target, remote.RemoteToHost); err != nil {
		rn.logger.Error("transfer back failed", "src", rn.data, "dst", target, "err", err)
		for _, p := range rn.report.Programs {
			rn.record(ctx, ProgramOutcome{Program: p.Name, Stage: StageCollect, Status: StatusFailed, Detail: err.Error()})
		}
		return nil
	}
	rn.report.DataDir = target

	if rn.opts.Converts() && rn.opts.Converter == ConvertHost {
		if err := rn.convertHost(ctx, target); err != nil {
			return err
		}
	}
	for _, p := range rn.report.Programs {
		if !rn.available(ctx, p, StageCollect) {
			continue
		}
		var missing []string
		for _, name := range rn.expectedArtifacts(p) {
			if _, err := os.Stat(filepath.Join(target, name)); err != nil {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			rn.record(ctx, ProgramOutcome{Program: p.Name, Stage: StageCollect, Status: StatusMissing, Detail: "not collected: " + strings.Join(missing, ", ")})
			continue
		}
		rn.record(ctx, ProgramOutcome{Program: p.Name, Stage: StageCollect, Status: StatusOK})
	}
	return nil
}

func (rn *run) expectedArtifacts(p Program) []string {
	var out []string
	if rn.opts.Tracing {
		out = append(out, p.Name+traceExt)
	}
	if rn.opts.Converts() {
		out = append(out, p.Name+".csv")
	}
	if rn.opts.Repeat > 0 {
		out = append(out, p.Name+".txt")
	}
	return out
}

func (rn *run) convertRemote(ctx context.Context) error {
	res, err := rn.exec(ctx, "remote", fmt.Sprintf("find %s -maxdepth 1 -type f -name '*%s'", q(rn.data), traceExt))
	if err != nil {
		return err
	}
	var files []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, path.Base(line))
		}
	}
	slices.Sort(files)
	return rn.convertEach(ctx, files, func(file string) (remote.Result, error) {
		return rn.exec(ctx, "remote", ConvertCommand(rn.opts, rn.data, file))
	})
}

func (rn *run) convertHost(ctx context.Context, dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+traceExt))
	if err != nil {
		return err
	}
	files := make([]string, len(matches))
	for i, m := range matches {
		files[i] = filepath.Base(m)
	}
	return rn.convertEach(ctx, files, func(file string) (remote.Result, error) {
		res, err := rn.Commander.Run(ctx, dir, rn.opts.CSVConverter, file)
		rn.logCommand("host", rn.opts.CSVConverter+" "+file, res, err)
		if err != nil || !res.OK() || !rn.opts.ChromeTraces {
			return res, err
		}
		res, err = rn.Commander.Run(ctx, dir, rn.opts.ChromeConverter, file)
		rn.logCommand("host", rn.opts.ChromeConverter+" "+file, res, err)
		return res, err
	})
}

func (rn *run) convertEach(ctx context.Context, files []string, convert func(string) (remote.Result, error)) error {
	seen := make(map[string]bool)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := strings.TrimSuffix(file, traceExt)
		st, detail := status(convert(file))
		seen[name] = true
		if !slices.ContainsFunc(rn.report.Programs, func(p Program) bool { return p.Name == name }) {
			rn.logger.Info("converted trace of unknown program", "file", file, "status", st)
			continue
		}
		rn.record(ctx, ProgramOutcome{Program: name, Stage: StageConvert, Status: st, Detail: detail})
	}
	for _, p := range rn.report.Programs {
		if !seen[p.Name] {
			rn.record(ctx, ProgramOutcome{Program: p.Name, Stage: StageConvert, Status: StatusMissing, Detail: "no trace file"})
		}
	}
	return nil
}
