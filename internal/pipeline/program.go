package pipeline

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// SourceExt is the extension of benchmark programs.
const SourceExt = ".lf"

// Program is one benchmark program.
type Program struct {
	Name      string
	Source    string
	Generated string
}

// RemoteDir is the program's deployment directory under dest.
func (p Program) RemoteDir(dest string) string { return path.Join(dest, p.Name) }

// Binary is the path of the remotely built executable.
func (p Program) Binary(dest string) string {
	return path.Join(dest, p.Name, "build", p.Name)
}

// Discover lists the programs in opts.Source. Programs filtered out by
// the exclusion or selection lists, and selected names without a source
// file, are returned as outcomes of the discover stage. Exclusion wins
// over selection.
func Discover(opts Options) ([]Program, []ProgramOutcome, error) {
	entries, err := os.ReadDir(opts.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("read source dir: %w", err)
	}
	var (
		programs []Program
		omitted  []ProgramOutcome
		found    = make(map[string]bool)
	)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != SourceExt {
			continue
		}
		name := strings.TrimSuffix(e.Name(), SourceExt)
		found[name] = true
		switch {
		case slices.Contains(opts.Exclude, name):
			omitted = append(omitted, ProgramOutcome{Program: name, Stage: StageDiscover, Status: StatusExcluded, Detail: "in exclusion list"})
		case len(opts.Select) > 0 && !slices.Contains(opts.Select, name):
			omitted = append(omitted, ProgramOutcome{Program: name, Stage: StageDiscover, Status: StatusExcluded, Detail: "not selected"})
		default:
			programs = append(programs, Program{
				Name:      name,
				Source:    filepath.Join(opts.Source, e.Name()),
				Generated: filepath.Join(opts.Generated, name),
			})
		}
	}
	for _, name := range opts.Select {
		if !found[name] && !slices.Contains(opts.Exclude, name) {
			omitted = append(omitted, ProgramOutcome{Program: name, Stage: StageDiscover, Status: StatusMissing, Detail: "no source file " + name + SourceExt})
		}
	}
	return programs, omitted, nil
}
