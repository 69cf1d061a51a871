package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadFirstYAMLProfiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
defaults:
  user: pi
  remote_dest: ~/benchmarks
profiles:
  rpi4:
    host: 10.0.0.4
    flags: ["--scheduler=NP"]
  odroid:
    host: 10.0.0.9
    user: odroid
`)
	cfg, err := LoadFirst([]string{filepath.Join(dir, "missing.yaml"), path})
	if err != nil {
		t.Fatalf("LoadFirst: %v", err)
	}
	if cfg == nil || cfg.Path() != path {
		t.Fatalf("expected config loaded from %s, got %+v", path, cfg)
	}

	prof, err := cfg.Resolve("rpi4")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if prof.Host != "10.0.0.4" || prof.User != "pi" || prof.RemoteDest != "~/benchmarks" {
		t.Fatalf("unexpected profile: %+v", prof)
	}
	if len(prof.Flags) != 1 || prof.Flags[0] != "--scheduler=NP" {
		t.Fatalf("unexpected flags: %v", prof.Flags)
	}

	odroid, err := cfg.Resolve("odroid")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if odroid.User != "odroid" {
		t.Fatalf("profile value must win over defaults, got %q", odroid.User)
	}

	if _, err := cfg.Resolve("nope"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestLoadFirstNoFile(t *testing.T) {
	cfg, err := LoadFirst([]string{filepath.Join(t.TempDir(), "config.yaml")})
	if err != nil {
		t.Fatalf("LoadFirst: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config, got %+v", cfg)
	}
	if _, err := cfg.Resolve(""); err != nil {
		t.Fatalf("Resolve on nil config without profile: %v", err)
	}
	if _, err := cfg.Resolve("rpi4"); err == nil {
		t.Fatal("expected error when profile requested without config")
	}
}

func TestLoadRunFileJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "run.json", `{
  "profile": "rpi4",
  "host": "10.0.0.4",
  "src": "timing/src",
  "src_gen": "timing/src-gen",
  "select": ["PingPong"],
  "tracing": false,
  "repeat": 10
}`)
	yamlPath := writeFile(t, dir, "run.yaml", `
profile: rpi4
host: 10.0.0.4
src: timing/src
src_gen: timing/src-gen
select: [PingPong]
tracing: false
repeat: 10
`)
	for _, path := range []string{jsonPath, yamlPath} {
		rf, err := LoadRunFile(path)
		if err != nil {
			t.Fatalf("LoadRunFile(%s): %v", path, err)
		}
		if rf.ProfileName != "rpi4" || rf.Host != "10.0.0.4" {
			t.Fatalf("%s: profile fields not decoded: %+v", path, rf)
		}
		if rf.Source != "timing/src" || rf.Generated != "timing/src-gen" {
			t.Fatalf("%s: paths not decoded: %+v", path, rf)
		}
		if rf.Tracing == nil || *rf.Tracing {
			t.Fatalf("%s: tracing should be explicitly false", path)
		}
		if rf.Repeat == nil || *rf.Repeat != 10 {
			t.Fatalf("%s: repeat not decoded", path)
		}
		if len(rf.Select) != 1 || rf.Select[0] != "PingPong" {
			t.Fatalf("%s: select not decoded: %v", path, rf.Select)
		}
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("RTBENCH_HOST", "raspberrypi.local")
	t.Setenv("RTBENCH_USER", "pi")
	t.Setenv("RTBENCH_PORT", "2222")
	prof, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if prof.Host != "raspberrypi.local" || prof.User != "pi" || prof.Port != 2222 {
		t.Fatalf("unexpected profile: %+v", prof)
	}

	t.Setenv("RTBENCH_PORT", "twenty")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected parse error for RTBENCH_PORT")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandPath("~/data")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if got != filepath.Join(home, "data") {
		t.Fatalf("ExpandPath(~/data) = %s", got)
	}
	if got, _ := ExpandPath(""); got != "" {
		t.Fatalf("ExpandPath(\"\") = %q", got)
	}
}
