// Package pipeline runs one orchestration: build programs on the host,
// deploy and build them on the remote target, run them, and collect their
// output back to the host.
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"rtbench/internal/remote"
)

// ErrMissingSource is returned when the source or generated-source
// directory is not configured.
var ErrMissingSource = errors.New("source and generated-source directories are required")

// Defaults applied by Options.WithDefaults.
const (
	DefaultCompiler        = "lfc"
	DefaultRemoteDest      = "~/benchmarks"
	DefaultRemoteData      = "~/benchmarks-data"
	DefaultHostData        = "data"
	DefaultTraceFile       = "main_0.lft"
	DefaultCSVConverter    = "trace_to_csv"
	DefaultChromeConverter = "trace_to_chrome"
	TimestampLayout        = "2006-01-02_15-04-05"
)

// Converter selects where trace files are converted to CSV.
type Converter string

const (
	ConvertRemote Converter = "remote"
	ConvertHost   Converter = "host"
)

func ParseConverter(s string) (Converter, error) {
	switch Converter(strings.ToLower(strings.TrimSpace(s))) {
	case "", ConvertRemote:
		return ConvertRemote, nil
	case ConvertHost:
		return ConvertHost, nil
	default:
		return "", fmt.Errorf("unknown converter %q (want remote or host)", s)
	}
}

// Options is the configuration of one orchestration run. It is built once
// and passed by value.
type Options struct {
	Name   string
	Remote remote.Config

	Compiler string
	Flags    []string
	Select   []string
	Exclude  []string
	Tracing  bool
	Repeat   int

	Source    string
	Generated string
	// DataDir receives collected files. When empty a timestamped
	// directory under HostData is used.
	DataDir  string
	HostData string

	RemoteDest string
	RemoteData string
	TraceFile  string

	Converter       Converter
	CSVConverter    string
	ChromeConverter string
	ChromeTraces    bool

	SkipCompile     bool
	SkipCopy        bool
	SkipRemoteBuild bool
	SkipRun         bool
	SkipTraceParse  bool

	PostOnly     bool
	PostAnalysis string
}

func (o Options) WithDefaults() Options {
	if o.Compiler == "" {
		o.Compiler = DefaultCompiler
	}
	if o.RemoteDest == "" {
		o.RemoteDest = DefaultRemoteDest
	}
	if o.RemoteData == "" {
		o.RemoteData = DefaultRemoteData
	}
	if o.HostData == "" {
		o.HostData = DefaultHostData
	}
	if o.TraceFile == "" {
		o.TraceFile = DefaultTraceFile
	}
	if o.Converter == "" {
		o.Converter = ConvertRemote
	}
	if o.CSVConverter == "" {
		o.CSVConverter = DefaultCSVConverter
	}
	if o.ChromeConverter == "" {
		o.ChromeConverter = DefaultChromeConverter
	}
	return o
}

func (o Options) Validate() error {
	if o.PostOnly {
		if o.DataDir == "" {
			return errors.New("--post-only needs --data-dir")
		}
		return nil
	}
	if strings.TrimSpace(o.Source) == "" || strings.TrimSpace(o.Generated) == "" {
		return ErrMissingSource
	}
	if o.Repeat < 0 {
		return fmt.Errorf("repeat must not be negative, got %d", o.Repeat)
	}
	if _, err := ParseConverter(string(o.Converter)); err != nil {
		return err
	}
	if strings.ContainsAny(o.TraceFile, "/\x00") {
		return fmt.Errorf("trace file %q must be a plain file name", o.TraceFile)
	}
	return o.Remote.Validate()
}

// Collects reports whether the run transfers the data directory back.
func (o Options) Collects() bool { return o.Tracing || o.Repeat > 0 }

// Converts reports whether trace files are converted to CSV.
func (o Options) Converts() bool { return o.Tracing && !o.SkipTraceParse }
