package trace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCSV = ` Event , Reactor , Source , Destination , Elapsed Logical Time , Elapsed Physical Time , Trigger
Reaction starts, main.a ,0, 1 ,0,1500,x
Reaction ends,main.a,0,1,0,2500,x
Reaction starts,main.b,1,0,not-a-number,100,x
short,row
Reaction starts,main.b,1,0,20000000,20000400,x
`

func TestReadCSVTrimsAndSkipsMalformed(t *testing.T) {
	recs, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d: %+v", len(recs), recs)
	}
	first := recs[0]
	want := Record{Event: ReactionStarts, Reactor: "main.a", Source: "0", Destination: "1", Logical: 0, Physical: 1500}
	if first != want {
		t.Fatalf("first record = %+v, want %+v", first, want)
	}
	if recs[2].Logical != 20000000 || recs[2].Physical != 20000400 {
		t.Fatalf("unexpected last record %+v", recs[2])
	}
}

func TestReadCSVMissingColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Event,Reactor\nReaction starts,a\n"))
	if err == nil || !strings.Contains(err.Error(), "missing column") {
		t.Fatalf("expected missing column error, got %v", err)
	}
}

func TestReadCSVEmpty(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("")); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "absent.csv"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestParseElapsedLine(t *testing.T) {
	cases := []struct {
		line string
		want int64
		ok   bool
	}{
		{"---- Elapsed physical time (in nsec): 12,345", 12345, true},
		{"---- Elapsed physical time (in nsec): 1,000,000,001", 1000000001, true},
		{"prefix ---- Elapsed physical time (in nsec): 7 trailing", 7, true},
		{"---- Elapsed logical time (in nsec): 12,345", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseElapsedLine(tc.line)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseElapsedLine(%q) = %d, %v; want %d, %v", tc.line, got, ok, tc.want, tc.ok)
		}
	}
}

func TestLoadElapsedTimes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "PingPong.txt")
	body := strings.Join([]string{
		"---- Start execution at time Thu Jan  1",
		"---- Elapsed physical time (in nsec): 1,200",
		"garbage",
		"---- Elapsed physical time (in nsec): 1,400",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	times, err := LoadElapsedTimes(path)
	if err != nil {
		t.Fatalf("LoadElapsedTimes: %v", err)
	}
	if len(times) != 2 || times[0] != 1200 || times[1] != 1400 {
		t.Fatalf("unexpected times %v", times)
	}
}
