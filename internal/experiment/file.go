package experiment

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rtbench/internal/pipeline"
)

// Kind selects the analysis applied after all variants ran.
type Kind string

const (
	KindTiming      Kind = "timing"
	KindPerformance Kind = "performance"
)

// DefaultPerformanceRepeat is the repeat count of performance experiments
// that do not set one.
const DefaultPerformanceRepeat = 10

// Variant is one compiler configuration of the benchmark set. Label names
// the data directory and the dataset in plots; Name is the table header.
type Variant struct {
	Label   string   `yaml:"label"`
	Name    string   `yaml:"name"`
	Flags   []string `yaml:"flags"`
	Exclude []string `yaml:"exclude"`
	// Instructions marks variants whose traces carry VM instruction events.
	Instructions bool `yaml:"instructions"`
}

func (v Variant) Header() string {
	if v.Name != "" {
		return v.Name
	}
	return v.Label
}

type Animation struct {
	Frames int `yaml:"frames"`
	FPS    int `yaml:"fps"`
}

// File is an experiment definition.
type File struct {
	Name       string            `yaml:"name"`
	Platform   string            `yaml:"platform"`
	Analysis   Kind              `yaml:"analysis"`
	Source     string            `yaml:"src"`
	Generated  string            `yaml:"src_gen"`
	Output     string            `yaml:"output"`
	Variants   []Variant         `yaml:"variants"`
	Select     []string          `yaml:"select"`
	Tracing    *bool             `yaml:"tracing"`
	Repeat     *int              `yaml:"repeat"`
	LoC        map[string]int    `yaml:"loc"`
	References map[string]string `yaml:"references"`
	Annotate   bool              `yaml:"annotate"`
	Animation  *Animation        `yaml:"animation"`
	Caption    string            `yaml:"caption"`
}

// Load reads an experiment file. Unknown keys are rejected. Relative
// directories are resolved against the file's directory.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	base := filepath.Dir(path)
	for _, p := range []*string{&f.Source, &f.Generated, &f.Output} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

func (f *File) Validate() error {
	switch f.Analysis {
	case KindTiming, KindPerformance:
	case "":
		f.Analysis = KindTiming
	default:
		return fmt.Errorf("unknown analysis %q (want timing or performance)", f.Analysis)
	}
	if strings.TrimSpace(f.Source) == "" || strings.TrimSpace(f.Generated) == "" {
		return pipeline.ErrMissingSource
	}
	if strings.TrimSpace(f.Output) == "" {
		return errors.New("output directory is required")
	}
	if len(f.Variants) == 0 {
		return errors.New("at least one variant is required")
	}
	seen := make(map[string]bool)
	for _, v := range f.Variants {
		if v.Label == "" || strings.ContainsAny(v.Label, `/\`) {
			return fmt.Errorf("invalid variant label %q", v.Label)
		}
		if seen[v.Label] {
			return fmt.Errorf("duplicate variant label %q", v.Label)
		}
		seen[v.Label] = true
	}
	if f.Repeat != nil && *f.Repeat < 0 {
		return fmt.Errorf("repeat must not be negative, got %d", *f.Repeat)
	}
	if a := f.Animation; a != nil && a.Frames <= 0 {
		return fmt.Errorf("animation frames must be positive, got %d", a.Frames)
	}
	return nil
}

// TracingEnabled defaults to true for timing experiments.
func (f *File) TracingEnabled() bool {
	if f.Tracing != nil {
		return *f.Tracing
	}
	return f.Analysis == KindTiming
}

// RepeatCount defaults to DefaultPerformanceRepeat for performance
// experiments and 0 otherwise.
func (f *File) RepeatCount() int {
	if f.Repeat != nil {
		return *f.Repeat
	}
	if f.Analysis == KindPerformance {
		return DefaultPerformanceRepeat
	}
	return 0
}

// RunDirName is <timestamp>-<platform>-<labels>-<programs|ALL>.
func (f *File) RunDirName(t time.Time) string {
	labels := make([]string, len(f.Variants))
	for i, v := range f.Variants {
		labels[i] = v.Label
	}
	programs := "ALL"
	if len(f.Select) > 0 {
		programs = strings.Join(f.Select, "_")
	}
	platform := f.Platform
	if platform == "" {
		platform = "unknown"
	}
	return strings.Join([]string{
		t.Format(pipeline.TimestampLayout), platform, strings.Join(labels, "_"), programs,
	}, "-")
}
