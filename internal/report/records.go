package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"

	"rtbench/internal/analysis"
	"rtbench/internal/trace"
)

// nullable maps NaN to a JSON null.
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// GroupRecord is the JSON form of analysis.GroupStatistic.
type GroupRecord struct {
	Group   string   `json:"Group"`
	Dataset string   `json:"Dataset"`
	Mean    float64  `json:"mean"`
	Std     *float64 `json:"std"`
	Max     float64  `json:"max"`
}

func GroupRecords(stats []analysis.GroupStatistic) []GroupRecord {
	out := make([]GroupRecord, len(stats))
	for i, s := range stats {
		out[i] = GroupRecord{Group: s.Group, Dataset: s.Dataset, Mean: s.Mean, Std: nullable(s.Std), Max: s.Max}
	}
	return out
}

// PerformanceRecord is one program/dataset entry of data.json.
type PerformanceRecord struct {
	Program string   `json:"program"`
	Dataset string   `json:"dataset"`
	Mean    float64  `json:"mean"`
	Max     float64  `json:"max"`
	Std     *float64 `json:"std"`
	Data    []int64  `json:"data"`
}

func NewPerformanceRecord(program, dataset string, s analysis.Summary, data []int64) PerformanceRecord {
	return PerformanceRecord{Program: program, Dataset: dataset, Mean: s.Mean, Max: s.Max, Std: nullable(s.Std), Data: data}
}

// WriteJSON writes v with a four-space indent.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

var outlierHeader = []string{
	trace.ColEvent, trace.ColReactor, trace.ColSource, trace.ColDest,
	trace.ColLogical, trace.ColPhysical, "Lag", "Group",
}

// WriteOutliers writes lag outliers with their source trace fields.
func WriteOutliers(path string, points []analysis.Point) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(outlierHeader); err != nil {
		return err
	}
	for _, p := range points {
		r := p.Record
		row := []string{
			r.Event, r.Reactor, r.Source, r.Destination,
			strconv.FormatInt(r.Logical, 10),
			strconv.FormatInt(r.Physical, 10),
			strconv.FormatInt(p.Value, 10),
			p.Group,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
