package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"rtbench/internal/remote"
)

// shellSession runs commands with the local sh and copies trees on the
// local file system.
type shellSession struct{}

func (shellSession) Execute(ctx context.Context, command string) (remote.Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	err := cmd.Run()
	res := remote.Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitStatus = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}

func (shellSession) Transfer(_ context.Context, src, dst string, _ remote.Direction) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return os.CopyFS(dst, os.DirFS(src))
}

func (shellSession) Close() error { return nil }

// scriptCompiler writes a shell script in place of each generated binary.
type scriptCompiler struct{ gen string }

const benchScript = `#!/bin/sh
echo "---- Elapsed physical time (in nsec): 1,200"
: > main_0.lft
`

func (c scriptCompiler) Run(_ context.Context, _, _ string, args ...string) (remote.Result, error) {
	name := strings.TrimSuffix(filepath.Base(args[len(args)-1]), SourceExt)
	dir := filepath.Join(c.gen, name, "build")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return remote.Result{}, err
	}
	return remote.Result{}, os.WriteFile(filepath.Join(dir, name), []byte(benchScript), 0o755)
}

// localShellRun runs Counting and PingPong (Sleep is excluded) through
// the local shell with a copying CSV converter.
func localShellRun(t *testing.T, repeat int) (Options, *Report) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	opts := fixture(t, []string{"Counting", "PingPong", "Sleep"})
	root := filepath.Dir(opts.Source)
	opts.SkipCompile = false
	opts.SkipRemoteBuild = true
	opts.Exclude = []string{"Sleep"}
	opts.Tracing = true
	opts.Repeat = repeat
	opts.RemoteDest = filepath.Join(root, "remote", "bench")
	opts.RemoteData = filepath.Join(root, "remote", "data")

	conv := filepath.Join(root, "to_csv.sh")
	if err := os.WriteFile(conv, []byte("#!/bin/sh\ncp \"$1\" \"${1%.lft}.csv\"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	opts.CSVConverter = conv

	r := &Runner{
		Dial: func(context.Context, remote.Config) (remote.Session, error) {
			return shellSession{}, nil
		},
		Commander: scriptCompiler{gen: opts.Generated},
		Now:       func() time.Time { return time.Date(2024, 3, 3, 23, 18, 51, 0, time.UTC) },
	}
	report, err := r.Run(t.Context(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, o := range report.Outcomes {
		if o.Status == StatusFailed || o.Status == StatusMissing {
			t.Errorf("unexpected outcome %+v", o)
		}
	}
	return opts, report
}

func TestRunLocalShell(t *testing.T) {
	opts, report := localShellRun(t, 2)
	traces, err := filepath.Glob(filepath.Join(report.DataDir, "*.lft"))
	if err != nil {
		t.Fatal(err)
	}
	if len(traces) != 2 {
		t.Fatalf("trace files = %v, want one per program", traces)
	}
	for _, name := range []string{"Counting", "PingPong"} {
		for _, ext := range []string{".lft", ".csv"} {
			if _, err := os.Stat(filepath.Join(report.DataDir, name+ext)); err != nil {
				t.Errorf("%s%s: %v", name, ext, err)
			}
		}
		out, err := os.ReadFile(filepath.Join(report.DataDir, name+".txt"))
		if err != nil {
			t.Fatalf("%s.txt: %v", name, err)
		}
		if n := strings.Count(string(out), "Elapsed physical time"); n != opts.Repeat {
			t.Errorf("%s.txt has %d runs, want %d", name, n, opts.Repeat)
		}
	}
	if _, err := os.Stat(filepath.Join(report.DataDir, "Sleep.lft")); !os.IsNotExist(err) {
		t.Errorf("excluded program was run: %v", err)
	}
	if o, _ := report.Outcome("Sleep", StageDiscover); o.Status != StatusExcluded {
		t.Errorf("Sleep discover outcome = %+v", o)
	}
	prom, err := os.ReadFile(filepath.Join(report.DataDir, "metrics.prom"))
	if err != nil {
		t.Fatalf("metrics.prom: %v", err)
	}
	if want := fmt.Sprintf("rtbench_program_stage_total{stage=%q,status=%q} 2", StageRun, StatusOK); !strings.Contains(string(prom), want) {
		t.Errorf("metrics.prom missing %s:\n%s", want, prom)
	}
}

func TestRunLocalShellSingleTracedRun(t *testing.T) {
	_, report := localShellRun(t, 0)

	traces, err := filepath.Glob(filepath.Join(report.DataDir, "*.lft"))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, p := range traces {
		names = append(names, filepath.Base(p))
	}
	if want := []string{"Counting.lft", "PingPong.lft"}; !slices.Equal(names, want) {
		t.Fatalf("trace files = %v, want %v", names, want)
	}
	if _, err := os.Stat(filepath.Join(report.DataDir, DefaultTraceFile)); !os.IsNotExist(err) {
		t.Errorf("%s left in the data dir: %v", DefaultTraceFile, err)
	}
	if txt, _ := filepath.Glob(filepath.Join(report.DataDir, "*.txt")); len(txt) != 0 {
		t.Errorf("stdout captured without repeat: %v", txt)
	}
	for _, name := range []string{"Counting", "PingPong"} {
		if _, err := os.Stat(filepath.Join(report.DataDir, name+".csv")); err != nil {
			t.Errorf("%s.csv: %v", name, err)
		}
	}
}
