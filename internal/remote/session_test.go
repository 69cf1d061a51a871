package remote

import (
	"errors"
	"testing"
)

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"":             "''",
		"plain":        "'plain'",
		"with space":   "'with space'",
		"it's":         `'it'"'"'s'`,
		"$HOME/x;rm -": "'$HOME/x;rm -'",
	}
	for in, want := range cases {
		if got := ShellQuote(in); got != want {
			t.Errorf("ShellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExpandHome(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"~", "/home/pi"},
		{"~/benchmarks", "/home/pi/benchmarks"},
		{"/opt/bench", "/opt/bench"},
		{"~other/x", "~other/x"},
	}
	for _, tc := range cases {
		if got := ExpandHome(tc.in, "/home/pi"); got != tc.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	ok := Config{Host: "rpi", User: "pi"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if got := ok.Addr(); got != "rpi:22" {
		t.Fatalf("Addr = %q, want rpi:22", got)
	}
	ok.Port = 2222
	if got := ok.Addr(); got != "rpi:2222" {
		t.Fatalf("Addr = %q, want rpi:2222", got)
	}

	bad := []Config{
		{User: "pi"},
		{Host: "rpi"},
		{Host: "rpi", User: "pi", Port: 70000},
		{Host: "rpi", User: "pi", HostKeyPolicy: "trust-me"},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestParseHostKeyPolicy(t *testing.T) {
	for in, want := range map[string]HostKeyPolicy{
		"":           VerifyHostKey,
		"verify":     VerifyHostKey,
		"accept-new": AcceptNewHostKey,
		"insecure":   InsecureHostKey,
	} {
		got, err := ParseHostKeyPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseHostKeyPolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseHostKeyPolicy("yes"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestDialInvalidConfigWrapsErrConnect(t *testing.T) {
	_, err := Dial(t.Context(), Config{}, nil)
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
}

func TestDirectionString(t *testing.T) {
	if HostToRemote.String() != "host->remote" || RemoteToHost.String() != "remote->host" {
		t.Fatalf("unexpected direction names %s %s", HostToRemote, RemoteToHost)
	}
}
