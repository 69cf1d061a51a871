package trace

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var elapsedRE = regexp.MustCompile(`---- Elapsed physical time \(in nsec\): ([\d,]+)`)

// ParseElapsedLine extracts the nanosecond count from a runtime summary
// line such as "---- Elapsed physical time (in nsec): 12,345".
func ParseElapsedLine(line string) (int64, bool) {
	m := elapsedRE.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseElapsedTimes returns every elapsed time found in r, in order.
// Other lines are ignored.
func ParseElapsedTimes(r io.Reader) ([]int64, error) {
	var out []int64
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if v, ok := ParseElapsedLine(sc.Text()); ok {
			out = append(out, v)
		}
	}
	return out, sc.Err()
}

// LoadElapsedTimes reads a <program>.txt file written by a repeated run.
func LoadElapsedTimes(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseElapsedTimes(f)
}
