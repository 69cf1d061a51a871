package analysis

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds the statistics reported for a set of values. Std is the
// sample standard deviation and is NaN for fewer than two values.
type Summary struct {
	Mean  float64
	Max   float64
	Std   float64
	Count int
}

// Summarize returns false when values is empty.
func Summarize(values []float64) (Summary, bool) {
	if len(values) == 0 {
		return Summary{}, false
	}
	s := Summary{
		Mean:  stat.Mean(values, nil),
		Max:   floats.Max(values),
		Std:   math.NaN(),
		Count: len(values),
	}
	if len(values) > 1 {
		s.Std = stat.StdDev(values, nil)
	}
	return s, true
}

// SummarizeInts is Summarize over nanosecond counts.
func SummarizeInts(values []int64) (Summary, bool) {
	f := make([]float64, len(values))
	for i, v := range values {
		f[i] = float64(v)
	}
	return Summarize(f)
}

// Values extracts point values in order.
func Values(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = float64(p.Value)
	}
	return out
}

// ProgramStatistics summarizes every point of one program and dataset.
func ProgramStatistics(points []Point) (Summary, bool) {
	return Summarize(Values(points))
}

// GroupStatistic is the summary of one group in one dataset.
type GroupStatistic struct {
	Group   string
	Dataset string
	Summary
}

// Labeled is a point tagged with its dataset label.
type Labeled struct {
	Dataset string
	Point
}

// Dataset is the analysis output for one variant. A nil Points slice
// means the input was missing.
type Dataset struct {
	Label  string
	Points []Point
}

// Combine concatenates datasets after each was filtered on its own. Missing
// datasets contribute nothing.
func Combine(sets ...Dataset) []Labeled {
	var out []Labeled
	for _, ds := range sets {
		for _, p := range ds.Points {
			out = append(out, Labeled{Dataset: ds.Label, Point: p})
		}
	}
	return out
}

// GroupOrder lists groups in first-seen order.
func GroupOrder(points []Labeled) []string {
	var order []string
	seen := make(map[string]bool)
	for _, p := range points {
		if !seen[p.Group] {
			seen[p.Group] = true
			order = append(order, p.Group)
		}
	}
	return order
}

// DatasetOrder lists dataset labels in first-seen order.
func DatasetOrder(points []Labeled) []string {
	var order []string
	for _, p := range points {
		if !slices.Contains(order, p.Dataset) {
			order = append(order, p.Dataset)
		}
	}
	return order
}

// GroupStatistics summarizes each (group, dataset) pair, sorted by group
// then dataset order of appearance.
func GroupStatistics(points []Labeled) []GroupStatistic {
	type key struct{ group, dataset string }
	vals := make(map[key][]float64)
	for _, p := range points {
		k := key{p.Group, p.Dataset}
		vals[k] = append(vals[k], float64(p.Value))
	}
	groups := GroupOrder(points)
	slices.Sort(groups)
	var out []GroupStatistic
	for _, g := range groups {
		for _, ds := range DatasetOrder(points) {
			s, ok := Summarize(vals[key{g, ds}])
			if !ok {
				continue
			}
			out = append(out, GroupStatistic{Group: g, Dataset: ds, Summary: s})
		}
	}
	return out
}
