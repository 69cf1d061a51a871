package analysis

import (
	"cmp"
	"slices"
	"strings"

	"rtbench/internal/trace"
)

// Instructions are the VM opcodes whose execution is timed. EXE, DU, WLT
// and WU block on other workers and are not measured.
var Instructions = []string{"ADD", "ADDI", "ADV", "ADVI", "BEQ", "BGE", "BLT", "BNE", "JAL", "JALR", "STP"}

const endPrefix = "End "

// InstructionExecutionTimes pairs each instruction event with the next
// "End <op>" event of the same op on the same worker (Source), in
// physical-time order. Points are grouped as "<op>, <source>".
func InstructionExecutionTimes(recs []trace.Record) []Point {
	evs := make([]trace.Record, 0, len(recs))
	for _, r := range recs {
		if slices.Contains(Instructions, strings.TrimPrefix(r.Event, endPrefix)) {
			evs = append(evs, r)
		}
	}
	slices.SortStableFunc(evs, func(a, b trace.Record) int {
		if c := CompareDestination(a.Source, b.Source); c != 0 {
			return c
		}
		return cmp.Compare(a.Physical, b.Physical)
	})

	type key struct{ source, op string }
	open := make(map[key][]trace.Record)
	var out []Point
	for _, r := range evs {
		if op, ok := strings.CutPrefix(r.Event, endPrefix); ok {
			k := key{r.Source, op}
			q := open[k]
			if len(q) == 0 {
				continue
			}
			start := q[0]
			open[k] = q[1:]
			out = append(out, Point{Group: op + ", " + r.Source, Record: start, Value: r.Physical - start.Physical})
			continue
		}
		k := key{r.Source, r.Event}
		open[k] = append(open[k], r)
	}
	return out
}
