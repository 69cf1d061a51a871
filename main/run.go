package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"rtbench/internal/config"
	"rtbench/internal/experiment"
	"rtbench/internal/ledger"
	"rtbench/internal/pipeline"
	"rtbench/internal/remote"
)

// connFlags are the connection and tool settings shared by run and
// experiment.
type connFlags struct {
	host          string
	port          int
	user          string
	password      string
	hostKeyPolicy string
	knownHosts    string
	profile       string
	compiler      string
	flags         []string
	remoteDest    string
	remoteData    string
	hostData      string
	converter     string
	chrome        bool
}

func (f *connFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.host, "host", "", "remote host name or address (or RTBENCH_HOST)")
	fs.IntVar(&f.port, "port", 0, "remote SSH port (default 22)")
	fs.StringVar(&f.user, "user", "", "remote user name (or RTBENCH_USER)")
	fs.StringVar(&f.password, "password", "", "remote password (or RTBENCH_PASSWORD; prompted when empty)")
	fs.StringVar(&f.hostKeyPolicy, "host-key-policy", "", "verify, accept-new or insecure (default verify)")
	fs.StringVar(&f.knownHosts, "known-hosts", "", "known_hosts file (default ~/.ssh/known_hosts)")
	fs.StringVar(&f.profile, "profile", "", "profile name from ~/.rtbench/config.(yaml|json)")
	fs.StringVar(&f.compiler, "compiler", "", "compiler executable (default lfc)")
	fs.StringArrayVarP(&f.flags, "flag", "f", nil, "compiler flag; may be repeated")
	fs.StringVar(&f.remoteDest, "remote-dest", "", "remote deployment directory (default ~/benchmarks)")
	fs.StringVar(&f.remoteData, "remote-data", "", "remote data directory (default ~/benchmarks-data)")
	fs.StringVar(&f.hostData, "host-data", "", "host directory for timestamped data dirs (default data)")
	fs.StringVar(&f.converter, "converter", "", "where traces are converted: remote or host")
	fs.BoolVar(&f.chrome, "chrome", false, "also produce Chrome trace files")
}

// profileFrom merges the connection flags over the run file, the config
// profile and the environment, in that order.
func (f *connFlags) profileFrom(rf *config.RunFile, prof, env config.Profile) config.Profile {
	merged := config.Profile{
		Host:          f.host,
		Port:          f.port,
		User:          f.user,
		Password:      f.password,
		HostKeyPolicy: f.hostKeyPolicy,
		KnownHosts:    f.knownHosts,
		Compiler:      f.compiler,
		Flags:         f.flags,
		RemoteDest:    f.remoteDest,
		RemoteData:    f.remoteData,
		HostData:      f.hostData,
		Converter:     f.converter,
	}
	if rf != nil {
		merged.Merge(rf.Profile)
	}
	merged.Merge(prof)
	merged.Merge(env)
	return merged
}

// baseOptions converts a merged profile into pipeline options.
func baseOptions(p config.Profile) (pipeline.Options, error) {
	policy, err := remote.ParseHostKeyPolicy(p.HostKeyPolicy)
	if err != nil {
		return pipeline.Options{}, err
	}
	conv, err := pipeline.ParseConverter(p.Converter)
	if err != nil {
		return pipeline.Options{}, err
	}
	knownHosts, err := config.ExpandPath(p.KnownHosts)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("known hosts: %w", err)
	}
	return pipeline.Options{
		Remote: remote.Config{
			Host:           p.Host,
			Port:           p.Port,
			User:           p.User,
			Password:       p.Password,
			HostKeyPolicy:  policy,
			KnownHostsPath: knownHosts,
		},
		Compiler:   p.Compiler,
		Flags:      p.Flags,
		HostData:   p.HostData,
		RemoteDest: p.RemoteDest,
		RemoteData: p.RemoteData,
		TraceFile:  p.TraceFile,
		Converter:  conv,
	}, nil
}

// loadProfiles reads the user config and environment overrides.
func loadProfiles(name string) (config.Profile, config.Profile, error) {
	userCfg, err := config.Load()
	if err != nil {
		return config.Profile{}, config.Profile{}, fmt.Errorf("load config: %w", err)
	}
	prof, err := userCfg.Resolve(name)
	if err != nil {
		return config.Profile{}, config.Profile{}, err
	}
	env, err := config.FromEnv()
	if err != nil {
		return config.Profile{}, config.Profile{}, err
	}
	return prof, env, nil
}

type runFlags struct {
	connFlags
	configFile      string
	name            string
	selectPrograms  []string
	exclude         []string
	noTracing       bool
	src             string
	srcGen          string
	dataDir         string
	repeat          int
	skipCompile     bool
	skipCopy        bool
	skipRemoteBuild bool
	skipRun         bool
	skipTraceParse  bool
	postAnalysis    string
	postOnly        bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build, deploy, run and collect one benchmark set",
		Example: `  rtbench run --host 192.168.1.20 --user pi --src timing/src --src-gen timing/src-gen \
    -f --scheduler=STATIC -f --mapper=LB --data-dir results/LB

  rtbench run --profile rpi4 --src performance/src --src-gen performance/src-gen \
    --no-tracing --repeat 10 --post-analysis performance

  rtbench run --config-file timing-lb.yaml

  rtbench run --post-only --data-dir data/2024-03-03_23-18-51 --post-analysis timing`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := g.logger()
			if err != nil {
				return err
			}
			opts, err := f.options(cmd.Flags())
			if err != nil {
				return err
			}
			if !opts.PostOnly {
				if err := promptPassword(&opts.Remote, os.Stdin, os.Stderr); err != nil {
					return err
				}
			}
			runner := pipeline.NewRunner(logger)
			runner.Hooks = experiment.Hooks(logger)
			l, err := ledger.Open(g.ledger)
			if err != nil {
				logger.Warn("run ledger unavailable", "err", err)
			} else {
				defer l.Close()
				runner.Journal = l
			}
			report, err := runner.Run(cmd.Context(), opts)
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}
	fs := cmd.Flags()
	f.connFlags.bind(fs)
	fs.StringVar(&f.configFile, "config-file", "", "YAML or JSON file describing this run")
	fs.StringVar(&f.name, "name", "", "name recorded in the run ledger")
	fs.StringArrayVarP(&f.selectPrograms, "select", "s", nil, "run only this program; may be repeated")
	fs.StringArrayVarP(&f.exclude, "exclude", "e", nil, "skip this program; may be repeated")
	fs.BoolVar(&f.noTracing, "no-tracing", false, "compile without tracing")
	fs.StringVar(&f.src, "src", "", "directory of benchmark sources (required)")
	fs.StringVar(&f.srcGen, "src-gen", "", "directory of generated sources (required)")
	fs.StringVar(&f.dataDir, "data-dir", "", "host directory receiving the collected data")
	fs.IntVar(&f.repeat, "repeat", 0, "run each program N times, capturing stdout in <program>.txt")
	fs.BoolVar(&f.skipCompile, "skip-compile", false, "do not compile on the host")
	fs.BoolVar(&f.skipCopy, "skip-copy", false, "do not deploy generated sources")
	fs.BoolVar(&f.skipRemoteBuild, "skip-remote-build", false, "do not build on the remote host")
	fs.BoolVar(&f.skipRun, "skip-run", false, "do not run the programs")
	fs.BoolVar(&f.skipTraceParse, "skip-trace-parse", false, "do not convert traces to CSV")
	fs.StringVar(&f.postAnalysis, "post-analysis", "", "analysis to run on the collected data: timing, performance or none")
	fs.BoolVar(&f.postOnly, "post-only", false, "only run the post-analysis on --data-dir")
	return cmd
}

func (f *runFlags) options(fs *pflag.FlagSet) (pipeline.Options, error) {
	var rf *config.RunFile
	if f.configFile != "" {
		path, err := filepath.Abs(f.configFile)
		if err != nil {
			return pipeline.Options{}, fmt.Errorf("config-file: %w", err)
		}
		if rf, err = config.LoadRunFile(path); err != nil {
			return pipeline.Options{}, err
		}
	}
	profileName := f.profile
	if profileName == "" && rf != nil {
		profileName = rf.ProfileName
	}
	prof, env, err := loadProfiles(profileName)
	if err != nil {
		return pipeline.Options{}, err
	}
	return f.resolve(fs.Changed, rf, prof, env)
}

// resolve applies flags first, then the run file, then the profile and
// the environment. changed reports whether a flag was given explicitly.
func (f *runFlags) resolve(changed func(string) bool, rf *config.RunFile, prof, env config.Profile) (pipeline.Options, error) {
	opts, err := baseOptions(f.profileFrom(rf, prof, env))
	if err != nil {
		return opts, err
	}
	if rf == nil {
		rf = &config.RunFile{}
	}
	opts.Name = firstNonEmpty(f.name, rf.Name)
	opts.Select = firstNonEmptyList(f.selectPrograms, rf.Select)
	opts.Exclude = firstNonEmptyList(f.exclude, rf.Exclude)
	opts.PostAnalysis = firstNonEmpty(f.postAnalysis, rf.PostAnalysis)
	opts.PostOnly = f.postOnly

	opts.Tracing = true
	switch {
	case changed("no-tracing"):
		opts.Tracing = !f.noTracing
	case rf.Tracing != nil:
		opts.Tracing = *rf.Tracing
	}
	switch {
	case changed("repeat"):
		opts.Repeat = f.repeat
	case rf.Repeat != nil:
		opts.Repeat = *rf.Repeat
	}
	switch {
	case changed("chrome"):
		opts.ChromeTraces = f.chrome
	case rf.ChromeTraces != nil:
		opts.ChromeTraces = *rf.ChromeTraces
	}
	opts.SkipCompile = f.skipCompile || rf.SkipCompile
	opts.SkipCopy = f.skipCopy || rf.SkipCopy
	opts.SkipRemoteBuild = f.skipRemoteBuild || rf.SkipRemoteBuild
	opts.SkipRun = f.skipRun || rf.SkipRun
	opts.SkipTraceParse = f.skipTraceParse || rf.SkipTraceParse

	for _, p := range []struct {
		dst  *string
		flag string
		file string
	}{
		{&opts.Source, f.src, rf.Source},
		{&opts.Generated, f.srcGen, rf.Generated},
		{&opts.DataDir, f.dataDir, rf.DataDir},
	} {
		if *p.dst, err = config.ExpandPath(firstNonEmpty(p.flag, p.file)); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// promptPassword asks for the password when none is configured and in is
// a terminal. Without a terminal the connection falls back to an empty
// password.
func promptPassword(cfg *remote.Config, in *os.File, out io.Writer) error {
	if cfg.Password != "" || cfg.Host == "" {
		return nil
	}
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	fmt.Fprintf(out, "Password for %s@%s: ", cfg.User, cfg.Host)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	cfg.Password = string(pw)
	return nil
}

func printReport(w io.Writer, r *pipeline.Report) {
	fmt.Fprintf(w, "Run %s\n", r.RunID)
	fmt.Fprintf(w, "%-20s %-14s %-9s %s\n", "PROGRAM", "STAGE", "STATUS", "DETAIL")
	for _, o := range r.Outcomes {
		fmt.Fprintf(w, "%-20s %-14s %-9s %s\n", o.Program, o.Stage, o.Status, o.Detail)
	}
	if r.DataDir != "" {
		fmt.Fprintf(w, "Data:   %s\n", r.DataDir)
	}
	fmt.Fprintf(w, "Failed: %d  Missing: %d\n", r.Count(pipeline.StatusFailed), r.Count(pipeline.StatusMissing))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyList(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}
