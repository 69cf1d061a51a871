package pipeline

import (
	"time"

	"rtbench/internal/metrics"
)

// Stages, in execution order.
const (
	StageDiscover    = "discover"
	StageBuild       = "build"
	StageCopy        = "copy"
	StageRemoteBuild = "remote-build"
	StageRun         = "run"
	StageConvert     = "convert"
	StageCollect     = "collect"
)

// Outcome statuses.
const (
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
	StatusExcluded = "excluded"
	StatusMissing  = "missing"
)

// ProgramOutcome is what happened to one program in one stage.
type ProgramOutcome struct {
	Program string
	Stage   string
	Status  string
	Detail  string
}

// Report summarizes an orchestration run.
type Report struct {
	RunID    string
	Started  time.Time
	Programs []Program
	Outcomes []ProgramOutcome
	// DataDir is the host directory holding collected files, empty when
	// nothing was transferred back.
	DataDir string
	Metrics *metrics.Recorder
}

// Outcome returns the last outcome recorded for program in stage.
func (r *Report) Outcome(program, stage string) (ProgramOutcome, bool) {
	for i := len(r.Outcomes) - 1; i >= 0; i-- {
		o := r.Outcomes[i]
		if o.Program == program && o.Stage == stage {
			return o, true
		}
	}
	return ProgramOutcome{}, false
}

// Count returns how many outcomes have the given status.
func (r *Report) Count(status string) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}
