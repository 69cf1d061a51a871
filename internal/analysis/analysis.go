// Package analysis derives timing metrics from trace records: precision
// (spacing of reaction starts), accuracy (lag of physical behind logical
// time), reaction and VM instruction execution times, and their summary
// statistics per dataset.
package analysis

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"rtbench/internal/trace"
)

// StartupCutoff is the logical time (ns) below which reaction starts are
// treated as startup noise by TimingAccuracy.
const StartupCutoff int64 = 20_000_000

// MinAccuracySamples is the smallest group TimingAccuracy keeps.
const MinAccuracySamples = 20

var ignoredReactors = []string{"delay", "NO REACTOR"}

// Point is one derived observation. Value is in nanoseconds; its meaning
// depends on the producer (time difference, lag, execution time).
type Point struct {
	Group  string
	Record trace.Record
	Value  int64
}

// GroupKey is "Reactor, Destination".
func GroupKey(r trace.Record) string {
	return r.Reactor + ", " + r.Destination
}

// FilterReactors drops rows from delay reactors and rows with no reactor.
func FilterReactors(recs []trace.Record) []trace.Record {
	out := make([]trace.Record, 0, len(recs))
	for _, r := range recs {
		reactor := strings.TrimSpace(r.Reactor)
		if slices.ContainsFunc(ignoredReactors, func(p string) bool { return strings.HasPrefix(reactor, p) }) {
			continue
		}
		r.Reactor = reactor
		out = append(out, r)
	}
	return out
}

func filterEvents(recs []trace.Record, events ...string) []trace.Record {
	out := make([]trace.Record, 0, len(recs))
	for _, r := range recs {
		if slices.Contains(events, r.Event) {
			out = append(out, r)
		}
	}
	return out
}

// CompareDestination orders integer destinations numerically and before
// any non-integer destination, which compare as strings.
func CompareDestination(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return cmp.Compare(ai, bi)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// SortRecords sorts in place by Reactor, Destination, physical time.
func SortRecords(recs []trace.Record) {
	slices.SortStableFunc(recs, func(a, b trace.Record) int {
		if c := strings.Compare(a.Reactor, b.Reactor); c != 0 {
			return c
		}
		if c := CompareDestination(a.Destination, b.Destination); c != 0 {
			return c
		}
		return cmp.Compare(a.Physical, b.Physical)
	})
}

// groups splits sorted records into runs sharing Reactor and Destination.
func groups(recs []trace.Record) [][]trace.Record {
	var out [][]trace.Record
	start := 0
	for i := 1; i <= len(recs); i++ {
		if i == len(recs) || recs[i].Reactor != recs[start].Reactor || recs[i].Destination != recs[start].Destination {
			if i > start {
				out = append(out, recs[start:i])
			}
			start = i
		}
	}
	return out
}

func prepare(recs []trace.Record, events ...string) []trace.Record {
	out := FilterReactors(filterEvents(recs, events...))
	SortRecords(out)
	return out
}

// TimingPrecision returns, per group, the physical-time difference between
// consecutive reaction starts. The first start of each group has no
// predecessor and yields no point.
func TimingPrecision(recs []trace.Record) []Point {
	var out []Point
	for _, g := range groups(prepare(recs, trace.ReactionStarts)) {
		key := GroupKey(g[0])
		for i := 1; i < len(g); i++ {
			out = append(out, Point{Group: key, Record: g[i], Value: g[i].Physical - g[i-1].Physical})
		}
	}
	return out
}

// TimingAccuracy returns the lag (physical minus logical time) of reaction
// starts after the startup cutoff. The rows at a group's largest remaining
// logical time are assumed to be shutdown and removed. Groups left with
// fewer than MinAccuracySamples rows are dropped.
func TimingAccuracy(recs []trace.Record) []Point {
	var out []Point
	for _, g := range groups(prepare(recs, trace.ReactionStarts)) {
		kept := make([]trace.Record, 0, len(g))
		for _, r := range g {
			if r.Logical >= StartupCutoff {
				kept = append(kept, r)
			}
		}
		if len(kept) <= 1 {
			continue
		}
		var last int64
		for _, r := range kept {
			last = max(last, r.Logical)
		}
		kept = slices.DeleteFunc(kept, func(r trace.Record) bool { return r.Logical >= last })
		if len(kept) < MinAccuracySamples {
			continue
		}
		key := GroupKey(kept[0])
		for _, r := range kept {
			out = append(out, Point{Group: key, Record: r, Value: r.Physical - r.Logical})
		}
	}
	return out
}

// ExecutionTimes pairs the first reaction start of each group with the
// first reaction end of the same group. Groups missing either are omitted.
func ExecutionTimes(recs []trace.Record) []Point {
	var out []Point
	for _, g := range groups(prepare(recs, trace.ReactionStarts, trace.ReactionEnds)) {
		var start, end *trace.Record
		for i := range g {
			switch {
			case g[i].Event == trace.ReactionStarts && start == nil:
				start = &g[i]
			case g[i].Event == trace.ReactionEnds && end == nil:
				end = &g[i]
			}
		}
		if start == nil || end == nil {
			continue
		}
		out = append(out, Point{Group: GroupKey(*start), Record: *start, Value: end.Physical - start.Physical})
	}
	return out
}
