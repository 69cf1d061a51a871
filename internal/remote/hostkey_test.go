package remote

import (
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"

	"rtbench/internal/logging"
)

func newHostKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	key, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("wrap key: %v", err)
	}
	return key
}

var testAddr = &net.TCPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 22}

func TestAcceptNewRecordsThenPins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ssh", "known_hosts")
	cfg := Config{Host: "rpi", User: "pi", HostKeyPolicy: AcceptNewHostKey, KnownHostsPath: path}
	key := newHostKey(t)

	cb, err := HostKeyCallback(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if err := cb("rpi:22", testAddr, key); err != nil {
		t.Fatalf("first contact should be accepted: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read known_hosts: %v", err)
	}
	if !strings.HasPrefix(string(data), "rpi ") {
		t.Fatalf("known_hosts line not recorded: %q", data)
	}

	// A fresh callback reloads the file, as the next run would.
	cb, err = HostKeyCallback(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if err := cb("rpi:22", testAddr, key); err != nil {
		t.Fatalf("recorded key rejected: %v", err)
	}
	if err := cb("rpi:22", testAddr, newHostKey(t)); err == nil {
		t.Fatal("changed host key must be rejected")
	}
}

func TestVerifyRejectsUnknownHost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	cb, err := HostKeyCallback(Config{Host: "rpi", User: "pi", KnownHostsPath: path}, logging.Discard())
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if err := cb("rpi:22", testAddr, newHostKey(t)); err == nil {
		t.Fatal("unknown host accepted under verify policy")
	}
}

func TestVerifyMissingKnownHostsFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent")
	if _, err := HostKeyCallback(Config{Host: "rpi", User: "pi", KnownHostsPath: path}, logging.Discard()); err == nil {
		t.Fatal("expected error for missing known_hosts")
	}
}

func TestInsecureAcceptsAnything(t *testing.T) {
	cb, err := HostKeyCallback(Config{Host: "rpi", User: "pi", HostKeyPolicy: InsecureHostKey}, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if err := cb("rpi:22", testAddr, newHostKey(t)); err != nil {
		t.Fatalf("insecure policy rejected key: %v", err)
	}
}
