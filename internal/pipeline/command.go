package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"rtbench/internal/remote"
)

// Commander runs programs on the host.
type Commander interface {
	Run(ctx context.Context, dir, name string, args ...string) (remote.Result, error)
}

// ExecCommander runs commands with os/exec. A nonzero exit is reported in
// the result; only failures to start return an error.
type ExecCommander struct{}

func (ExecCommander) Run(ctx context.Context, dir, name string, args ...string) (remote.Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := remote.Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitStatus = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}
