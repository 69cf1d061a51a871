// Package config loads rtbench profiles and run files from
// ~/.rtbench/config.(yaml|yml|json) and from --config-file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile holds connection and pipeline defaults. Empty fields mean "unset".
type Profile struct {
	Host          string   `json:"host" yaml:"host"`
	Port          int      `json:"port" yaml:"port"`
	User          string   `json:"user" yaml:"user"`
	Password      string   `json:"password" yaml:"password"`
	HostKeyPolicy string   `json:"host_key_policy" yaml:"host_key_policy"`
	KnownHosts    string   `json:"known_hosts" yaml:"known_hosts"`
	Compiler      string   `json:"compiler" yaml:"compiler"`
	Flags         []string `json:"flags" yaml:"flags"`
	RemoteDest    string   `json:"remote_dest" yaml:"remote_dest"`
	RemoteData    string   `json:"remote_data" yaml:"remote_data"`
	HostData      string   `json:"host_data" yaml:"host_data"`
	TraceFile     string   `json:"trace_file" yaml:"trace_file"`
	Converter     string   `json:"converter" yaml:"converter"`
}

// File is the user-level config: defaults plus named profiles.
type File struct {
	Defaults Profile            `json:"defaults" yaml:"defaults"`
	Profiles map[string]Profile `json:"profiles" yaml:"profiles"`
	path     string
}

// Path reports where the file was loaded from.
func (f *File) Path() string { return f.path }

// RunFile describes a single orchestration run (--config-file).
type RunFile struct {
	Profile `json:",inline" yaml:",inline"`

	ProfileName     string   `json:"profile" yaml:"profile"`
	Name            string   `json:"name" yaml:"name"`
	Source          string   `json:"src" yaml:"src"`
	Generated       string   `json:"src_gen" yaml:"src_gen"`
	DataDir         string   `json:"data_dir" yaml:"data_dir"`
	Select          []string `json:"select" yaml:"select"`
	Exclude         []string `json:"exclude" yaml:"exclude"`
	Tracing         *bool    `json:"tracing" yaml:"tracing"`
	Repeat          *int     `json:"repeat" yaml:"repeat"`
	PostAnalysis    string   `json:"post_analysis" yaml:"post_analysis"`
	ChromeTraces    *bool    `json:"chrome" yaml:"chrome"`
	SkipCompile     bool     `json:"skip_compile" yaml:"skip_compile"`
	SkipCopy        bool     `json:"skip_copy" yaml:"skip_copy"`
	SkipRemoteBuild bool     `json:"skip_remote_build" yaml:"skip_remote_build"`
	SkipRun         bool     `json:"skip_run" yaml:"skip_run"`
	SkipTraceParse  bool     `json:"skip_trace_parse" yaml:"skip_trace_parse"`
}

// Merge fills every unset field of p from src.
func (p *Profile) Merge(src Profile) {
	if p.Host == "" {
		p.Host = src.Host
	}
	if p.Port == 0 {
		p.Port = src.Port
	}
	if p.User == "" {
		p.User = src.User
	}
	if p.Password == "" {
		p.Password = src.Password
	}
	if p.HostKeyPolicy == "" {
		p.HostKeyPolicy = src.HostKeyPolicy
	}
	if p.KnownHosts == "" {
		p.KnownHosts = src.KnownHosts
	}
	if p.Compiler == "" {
		p.Compiler = src.Compiler
	}
	if len(p.Flags) == 0 && len(src.Flags) > 0 {
		p.Flags = append([]string(nil), src.Flags...)
	}
	if p.RemoteDest == "" {
		p.RemoteDest = src.RemoteDest
	}
	if p.RemoteData == "" {
		p.RemoteData = src.RemoteData
	}
	if p.HostData == "" {
		p.HostData = src.HostData
	}
	if p.TraceFile == "" {
		p.TraceFile = src.TraceFile
	}
	if p.Converter == "" {
		p.Converter = src.Converter
	}
}

// Dir returns ~/.rtbench, creating it if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".rtbench")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func defaultPaths() ([]string, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.yml"),
		filepath.Join(dir, "config.json"),
	}, nil
}

// PathHint is shown in errors when a profile is requested without a config.
func PathHint() string {
	dir, err := Dir()
	if err != nil {
		return "~/.rtbench/config.(json|yaml)"
	}
	return fmt.Sprintf("%s/config.(json|yaml)", dir)
}

// Load reads the first user config found. It returns nil, nil when none exists.
func Load() (*File, error) {
	paths, err := defaultPaths()
	if err != nil {
		return nil, err
	}
	return LoadFirst(paths)
}

// LoadFirst reads the first existing file among paths.
func LoadFirst(paths []string) (*File, error) {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		cfg := &File{
			Profiles: make(map[string]Profile),
			path:     path,
		}
		if err := Unmarshal(data, filepath.Ext(path), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if cfg.Profiles == nil {
			cfg.Profiles = make(map[string]Profile)
		}
		return cfg, nil
	}
	return nil, nil
}

// Resolve returns defaults merged under the named profile.
func (f *File) Resolve(name string) (Profile, error) {
	var out Profile
	if f == nil {
		if name != "" {
			return out, fmt.Errorf("profile %q requested but no config file found (expected %s)", name, PathHint())
		}
		return out, nil
	}
	if name != "" {
		prof, ok := f.Profiles[name]
		if !ok {
			return out, fmt.Errorf("profile %q not found in %s", name, f.path)
		}
		out = prof
	}
	out.Merge(f.Defaults)
	return out, nil
}

// LoadRunFile parses a --config-file.
func LoadRunFile(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg RunFile
	if err := Unmarshal(data, filepath.Ext(path), &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Unmarshal decodes JSON or YAML depending on ext, falling back to YAML.
func Unmarshal(data []byte, ext string, target any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(trimmed, target)
	default:
		if err := json.Unmarshal(trimmed, target); err == nil {
			return nil
		}
		return yaml.Unmarshal(trimmed, target)
	}
}

// ExpandPath resolves a leading ~ and makes p absolute.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		rest := strings.TrimPrefix(strings.TrimPrefix(p, "~"), "/")
		if rest == "" {
			p = home
		} else {
			p = filepath.Join(home, rest)
		}
	}
	return filepath.Abs(p)
}
