package ledger

import (
	"context"
	"os/exec"
	"strings"
)

// GitInfo reports the commit and branch of the repository containing dir.
// Both are empty when dir is not inside a git checkout.
func GitInfo(ctx context.Context, dir string) (commit, branch string) {
	run := func(args ...string) string {
		cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.Output()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(out))
	}
	commit = run("rev-parse", "HEAD")
	branch = run("rev-parse", "--abbrev-ref", "HEAD")
	return
}
