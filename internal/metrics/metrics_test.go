package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderTextfile(t *testing.T) {
	r := NewRecorder()
	r.RunStarted(time.Unix(1700000000, 0))
	r.ObserveStage("build", 1500*time.Millisecond)
	r.ObserveStage("build", 500*time.Millisecond)
	r.CountOutcome("build", "ok")
	r.CountOutcome("build", "ok")
	r.CountOutcome("build", "failed")

	if got := testutil.ToFloat64(r.stageDuration.WithLabelValues("build")); got != 2 {
		t.Fatalf("build duration = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.programStage.WithLabelValues("build", "ok")); got != 2 {
		t.Fatalf("ok count = %v, want 2", got)
	}

	path := filepath.Join(t.TempDir(), "metrics.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`rtbench_stage_duration_seconds{stage="build"} 2`,
		`rtbench_program_stage_total{stage="build",status="failed"} 1`,
		`rtbench_run_start_timestamp_seconds 1.7e+09`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q:\n%s", want, data)
		}
	}
}
