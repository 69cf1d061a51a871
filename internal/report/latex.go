// Package report renders analysis results: LaTeX tables, JSON summaries,
// outlier CSVs, plots and animations.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"rtbench/internal/analysis"
)

// Placeholder marks a missing statistic in a table cell.
const Placeholder = "-"

// Column is one dataset in a table. Label keys Stats; Header is printed.
type Column struct {
	Label  string
	Header string
}

// Table is a per-program comparison of mean, maximum and standard
// deviation across datasets, in microseconds.
type Table struct {
	Path       string
	Columns    []Column
	Programs   []string
	Stats      map[string]map[string]analysis.Summary
	LoC        map[string]int
	References map[string]string
	Caption    string
	Label      string
}

// FormatMicros converts nanoseconds to microseconds with three
// significant digits.
func FormatMicros(ns float64) string {
	if math.IsNaN(ns) || math.IsInf(ns, 0) {
		return Placeholder
	}
	return strconv.FormatFloat(ns/1000, 'g', 3, 64)
}

func (t Table) cell(label, program string, pick func(analysis.Summary) float64) string {
	s, ok := t.Stats[label][program]
	if !ok {
		return Placeholder
	}
	return FormatMicros(pick(s))
}

// Row renders one program's table row without the trailing newline.
func (t Table) Row(program string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `\texttt{%s}`, program)
	if ref := t.References[program]; ref != "" {
		fmt.Fprintf(&b, `~\cite{%s}`, ref)
	}
	loc := Placeholder
	if n, ok := t.LoC[program]; ok {
		loc = strconv.Itoa(n)
	}
	fmt.Fprintf(&b, "  & %s ", loc)
	picks := []func(analysis.Summary) float64{
		func(s analysis.Summary) float64 { return s.Mean },
		func(s analysis.Summary) float64 { return s.Max },
		func(s analysis.Summary) float64 { return s.Std },
	}
	for _, pick := range picks {
		for _, c := range t.Columns {
			fmt.Fprintf(&b, " & %s", t.cell(c.Label, program, pick))
		}
	}
	b.WriteString(` \\`)
	return b.String()
}

func (t Table) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	k := len(t.Columns)
	headers := make([]string, k)
	for i, c := range t.Columns {
		headers[i] = c.Header
	}
	hdr := strings.Join(headers, " & ")

	fmt.Fprintf(&b, "%% Generated table at %s\n", t.Path)
	b.WriteString("\\begin{table*}[ht]\n    \\centering\n")
	fmt.Fprintf(&b, "    \\begin{tabular}{l%s}\n    \\toprule\n", strings.Repeat("c", 1+3*k))
	fmt.Fprintf(&b, "    & & \\multicolumn{%d}{c}{Average (us)} & \\multicolumn{%d}{c}{Maximum (us)} &\n", k, k)
	fmt.Fprintf(&b, "    \\multicolumn{%d}{c}{Standard Deviation (us)} \\\\\n", k)
	b.WriteString("    ")
	for i := range 3 {
		lo := 3 + i*k
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "\\cmidrule(lr){%d-%d}", lo, lo+k-1)
	}
	fmt.Fprintf(&b, "\n    Program & LoC (\\lf) & %s & %s & %s \\\\\n    \\midrule\n", hdr, hdr, hdr)
	for _, p := range t.Programs {
		b.WriteString(t.Row(p))
		b.WriteString("\n")
	}
	b.WriteString("    \\bottomrule\n    \\end{tabular}\n")
	if t.Caption != "" {
		fmt.Fprintf(&b, "    \\caption{%s}\n", t.Caption)
	}
	if t.Label != "" {
		fmt.Fprintf(&b, "    \\label{%s}\n", t.Label)
	}
	b.WriteString("\\end{table*}\n")
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// WriteFile writes the table to t.Path.
func (t Table) WriteFile() error {
	f, err := os.Create(t.Path)
	if err != nil {
		return err
	}
	if _, err := t.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", t.Path, err)
	}
	return f.Close()
}
