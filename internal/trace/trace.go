// Package trace reads the artifacts a benchmark run leaves behind: trace
// CSVs produced by trace_to_csv and the elapsed-time lines printed by
// repeated runs.
package trace

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Column names as written by trace_to_csv, after trimming.
const (
	ColEvent    = "Event"
	ColReactor  = "Reactor"
	ColSource   = "Source"
	ColDest     = "Destination"
	ColLogical  = "Elapsed Logical Time"
	ColPhysical = "Elapsed Physical Time"
)

// Event names used by the analysis.
const (
	ReactionStarts = "Reaction starts"
	ReactionEnds   = "Reaction ends"
)

// Record is one trace row. Times are nanoseconds since the start of
// execution.
type Record struct {
	Event       string
	Reactor     string
	Source      string
	Destination string
	Logical     int64
	Physical    int64
}

// ErrEmpty is returned for a trace CSV without a header, as left behind
// by a run that crashed before writing any events.
var ErrEmpty = errors.New("empty trace csv")

var required = []string{ColEvent, ColReactor, ColSource, ColDest, ColLogical, ColPhysical}

// LoadCSV reads a trace CSV. Headers and fields are trimmed. Rows that
// are short or whose times do not parse are skipped. A missing file is
// returned as an error satisfying errors.Is(err, os.ErrNotExist).
func LoadCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var out []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rec, ok := parseRow(row, idx)
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func parseRow(row []string, idx map[string]int) (Record, bool) {
	field := func(col string) (string, bool) {
		i := idx[col]
		if i >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[i]), true
	}
	var (
		rec Record
		ok  bool
		s   string
		err error
	)
	if rec.Event, ok = field(ColEvent); !ok {
		return rec, false
	}
	if rec.Reactor, ok = field(ColReactor); !ok {
		return rec, false
	}
	if rec.Source, ok = field(ColSource); !ok {
		return rec, false
	}
	if rec.Destination, ok = field(ColDest); !ok {
		return rec, false
	}
	if s, ok = field(ColLogical); !ok {
		return rec, false
	}
	if rec.Logical, err = strconv.ParseInt(s, 10, 64); err != nil {
		return rec, false
	}
	if s, ok = field(ColPhysical); !ok {
		return rec, false
	}
	if rec.Physical, err = strconv.ParseInt(s, 10, 64); err != nil {
		return rec, false
	}
	return rec, true
}
