package report

import (
	"bytes"
	"encoding/json"
	"image/gif"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rtbench/internal/analysis"
	"rtbench/internal/trace"
)

func TestFormatMicros(t *testing.T) {
	cases := map[float64]string{
		1234:       "1.23",
		1_500_000:  "1.5e+03",
		999_999:    "1e+03",
		12_345_678: "1.23e+04",
		50:         "0.05",
		math.NaN(): Placeholder,
	}
	for in, want := range cases {
		if got := FormatMicros(in); got != want {
			t.Errorf("FormatMicros(%v) = %q, want %q", in, got, want)
		}
	}
}

func testTable() Table {
	return Table{
		Path:     "table.tex",
		Columns:  []Column{{"NP", "DY"}, {"LB", "LB"}, {"EGS", "EG"}},
		Programs: []string{"PingPong", "LongShort"},
		Stats: map[string]map[string]analysis.Summary{
			"NP": {"PingPong": {Mean: 12345, Max: 20000, Std: 150}},
			"LB": {"PingPong": {Mean: 1000, Max: 2000, Std: math.NaN()}},
		},
		LoC:        map[string]int{"PingPong": 124},
		References: map[string]string{"PingPong": "menard2023performance"},
		Label:      "tab:accuracy_results",
	}
}

func TestTableRowPlaceholders(t *testing.T) {
	tbl := testTable()
	got := tbl.Row("PingPong")
	want := `\texttt{PingPong}~\cite{menard2023performance}  & 124  & 12.3 & 1 & - & 20 & 2 & - & 0.15 & - & - \\`
	if got != want {
		t.Fatalf("row mismatch\n got: %s\nwant: %s", got, want)
	}
	got = tbl.Row("LongShort")
	want = `\texttt{LongShort}  & -  & - & - & - & - & - & - & - & - & - \\`
	if got != want {
		t.Fatalf("row mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestTableWriteTo(t *testing.T) {
	var buf bytes.Buffer
	if _, err := testTable().WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"% Generated table at table.tex",
		`\begin{tabular}{lcccccccccc}`,
		`\cmidrule(lr){3-5} \cmidrule(lr){6-8} \cmidrule(lr){9-11}`,
		`Program & LoC (\lf) & DY & LB & EG & DY & LB & EG & DY & LB & EG \\`,
		`\label{tab:accuracy_results}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q\n%s", want, out)
		}
	}
}

func TestGroupRecordsJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")
	stats := []analysis.GroupStatistic{
		{Group: "a, 0", Dataset: "DY", Summary: analysis.Summary{Mean: 1, Max: 2, Std: math.NaN()}},
	}
	if err := WriteJSON(path, GroupRecords(stats)); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n    {\n        \"Group\": \"a, 0\"") {
		t.Fatalf("expected four-space indent, got:\n%s", data)
	}
	var back []map[string]any
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back[0]["std"] != nil || back[0]["mean"].(float64) != 1 {
		t.Fatalf("unexpected record %v", back[0])
	}
}

func TestWriteOutliers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	pts := []analysis.Point{{
		Group:  "main.a, 0",
		Record: trace.Record{Event: trace.ReactionStarts, Reactor: "main.a", Source: "0", Destination: "0", Logical: 30, Physical: 90},
		Value:  60,
	}}
	if err := WriteOutliers(path, pts); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "Event,Reactor,Source,Destination,Elapsed Logical Time,Elapsed Physical Time,Lag,Group\n" +
		"Reaction starts,main.a,0,0,30,90,60,\"main.a, 0\"\n"
	if string(data) != want {
		t.Fatalf("unexpected csv:\n%s", data)
	}
}

func labeled(ds, group string, values ...int64) []analysis.Labeled {
	var out []analysis.Labeled
	for i, v := range values {
		out = append(out, analysis.Labeled{Dataset: ds, Point: analysis.Point{
			Group:  group,
			Record: trace.Record{Physical: int64(i)},
			Value:  v,
		}})
	}
	return out
}

func TestBoxAndStripPlots(t *testing.T) {
	dir := t.TempDir()
	pts := append(labeled("DY", "a, 0", 1, 2, 3, 4, 50), labeled("LB", "a, 0", 2, 2, 3)...)
	pts = append(pts, labeled("LB", "b, 1", 7, 8)...)
	fig := Figure{Title: "Timing Precision", XLabel: "Group (Reactor, Destination)", YLabel: "Time Difference", Annotate: true}

	box := filepath.Join(dir, "box.svg")
	if err := BoxPlot(box, fig, pts, []string{"DY", "LB", "EGS"}); err != nil {
		t.Fatalf("BoxPlot: %v", err)
	}
	strip := filepath.Join(dir, "strip.svg")
	if err := StripPlot(strip, fig, pts, []string{"DY", "LB"}, 4, 1); err != nil {
		t.Fatalf("StripPlot: %v", err)
	}
	for _, p := range []string{box, strip} {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "<svg") {
			t.Fatalf("%s is not an svg", p)
		}
	}
	if err := BoxPlot(filepath.Join(dir, "empty.svg"), fig, nil, nil); err != ErrNoData {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestSampleDeterministic(t *testing.T) {
	var pts []analysis.Labeled
	for i := range 100 {
		pts = append(pts, labeled("DY", "g", int64(i))...)
	}
	a := Sample(pts, 10, 42)
	b := Sample(pts, 10, 42)
	if len(a) != 10 {
		t.Fatalf("expected 10 samples, got %d", len(a))
	}
	for i := range a {
		if a[i].Value != b[i].Value {
			t.Fatal("sampling with the same seed must be deterministic")
		}
		if i > 0 && a[i].Value <= a[i-1].Value {
			t.Fatal("sample must preserve input order")
		}
	}
	if got := Sample(pts[:5], 10, 1); len(got) != 5 {
		t.Fatalf("short input should be returned whole, got %d", len(got))
	}
}

func TestAnimationRender(t *testing.T) {
	dir := t.TempDir()
	toPoints := func(ls []analysis.Labeled) []analysis.Point {
		out := make([]analysis.Point, len(ls))
		for i, l := range ls {
			out[i] = l.Point
		}
		return out
	}
	a := Animation{
		Program:   "PingPong",
		FramesDir: filepath.Join(dir, "frames"),
		GIFPath:   filepath.Join(dir, "plots", "PingPong_timing_accuracy_animation.gif"),
		Frames:    3,
		FPS:       5,
		Figure:    Figure{Title: "Timing Accuracy", Width: 200, Height: 150},
	}
	sets := []analysis.Dataset{
		{Label: "DY", Points: toPoints(labeled("DY", "a, 0", 5, 4, 3, 2, 1))},
		{Label: "LB", Points: toPoints(labeled("LB", "a, 0", 1, 1))},
	}
	if err := a.Render(sets); err != nil {
		t.Fatalf("Render: %v", err)
	}
	for i := range 3 {
		if _, err := os.Stat(a.FramePath(i)); err != nil {
			t.Fatalf("frame %d missing: %v", i, err)
		}
	}
	f, err := os.Open(a.GIFPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	g, err := gif.DecodeAll(f)
	if err != nil {
		t.Fatalf("decode gif: %v", err)
	}
	if len(g.Image) != 3 || g.Delay[0] != 20 {
		t.Fatalf("unexpected gif: %d frames, delay %d", len(g.Image), g.Delay[0])
	}
}
