// Package metrics records per-run stage timings and program outcomes in a
// private prometheus registry and writes them as a node_exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Recorder struct {
	reg           *prometheus.Registry
	stageDuration *prometheus.GaugeVec
	programStage  *prometheus.CounterVec
	runStart      prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		stageDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rtbench_stage_duration_seconds",
				Help: "Wall time spent in each pipeline stage",
			},
			[]string{"stage"},
		),
		programStage: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtbench_program_stage_total",
				Help: "Programs processed per stage, by outcome status",
			},
			[]string{"stage", "status"},
		),
		runStart: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rtbench_run_start_timestamp_seconds",
			Help: "Unix time at which the orchestration run started",
		}),
	}
	r.reg.MustRegister(r.stageDuration, r.programStage, r.runStart)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) RunStarted(t time.Time) {
	r.runStart.Set(float64(t.UnixNano()) / 1e9)
}

// ObserveStage adds d to the stage's accumulated duration.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Add(d.Seconds())
}

func (r *Recorder) CountOutcome(stage, status string) {
	r.programStage.WithLabelValues(stage, status).Inc()
}

// WriteTextfile writes the registry in text exposition format. The file
// is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
