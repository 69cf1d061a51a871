package remote

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"

	"rtbench/internal/logging"
)

// pipeSession is an SSHSession whose SFTP client talks to an in-process
// server over the local file system.
func pipeSession(t *testing.T) *SSHSession {
	t.Helper()
	clientRead, serverWrite, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	serverRead, clientWrite, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	server, err := sftp.NewServer(struct {
		io.Reader
		io.WriteCloser
	}{serverRead, serverWrite})
	if err != nil {
		t.Fatalf("sftp server: %v", err)
	}
	served := make(chan struct{})
	go func() {
		defer close(served)
		server.Serve()
	}()
	client, err := sftp.NewClientPipe(clientRead, clientWrite)
	if err != nil {
		t.Fatalf("sftp client: %v", err)
	}
	s := &SSHSession{sftp: client, addr: "pipe", logger: logging.Discard()}
	t.Cleanup(func() {
		// Closing the server's writer ends the client's receive loop, and
		// closing the client's writer ends Serve.
		server.Close()
		s.Close()
		<-served
		clientRead.Close()
		serverRead.Close()
	})
	return s
}

type treeFile struct {
	rel  string
	body string
	mode fs.FileMode
}

var genTree = []treeFile{
	{"CMakeLists.txt", "cmake_minimum_required(VERSION 3.13)\n", 0o644},
	{"include/core/reactor.h", "#pragma once\n", 0o600},
	{"run.sh", "#!/bin/sh\n./build/PingPong\n", 0o755},
}

func writeTree(t *testing.T, root string) {
	t.Helper()
	for _, f := range genTree {
		p := filepath.Join(root, filepath.FromSlash(f.rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(f.body), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chmod(p, f.mode); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, "build"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func checkTree(t *testing.T, root string) {
	t.Helper()
	for _, f := range genTree {
		p := filepath.Join(root, filepath.FromSlash(f.rel))
		info, err := os.Stat(p)
		if err != nil {
			t.Errorf("%s: %v", f.rel, err)
			continue
		}
		if got := info.Mode().Perm(); got != f.mode {
			t.Errorf("%s mode = %v, want %v", f.rel, got, f.mode)
		}
		data, err := os.ReadFile(p)
		if err != nil || string(data) != f.body {
			t.Errorf("%s = %q, %v", f.rel, data, err)
		}
	}
	if info, err := os.Stat(filepath.Join(root, "build")); err != nil || !info.IsDir() {
		t.Errorf("empty build dir not transferred: %v", err)
	}
}

func TestTransferRoundTrip(t *testing.T) {
	s := pipeSession(t)
	base := t.TempDir()
	local := filepath.Join(base, "gen", "PingPong")
	writeTree(t, local)

	deployed := filepath.Join(base, "remote", "benchmarks", "PingPong")
	if err := s.Transfer(t.Context(), local, filepath.ToSlash(deployed), HostToRemote); err != nil {
		t.Fatalf("upload: %v", err)
	}
	checkTree(t, deployed)

	for name, src := range map[string]string{
		"plain":          filepath.ToSlash(deployed),
		"trailing slash": filepath.ToSlash(deployed) + "/",
	} {
		t.Run(name, func(t *testing.T) {
			dst := filepath.Join(t.TempDir(), "collected")
			if err := s.Transfer(t.Context(), src, dst, RemoteToHost); err != nil {
				t.Fatalf("download: %v", err)
			}
			checkTree(t, dst)
			// Paths are relative to the remote root, not nested under it.
			if _, err := os.Stat(filepath.Join(dst, "remote")); !os.IsNotExist(err) {
				t.Errorf("remote root path leaked into %s: %v", dst, err)
			}
		})
	}
}

func TestTransferCanceled(t *testing.T) {
	s := pipeSession(t)
	local := t.TempDir()
	writeTree(t, local)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := s.Transfer(ctx, local, filepath.ToSlash(filepath.Join(t.TempDir(), "out")), HostToRemote); err == nil {
		t.Fatal("expected an error from a canceled transfer")
	}
}

func TestTransferUnknownDirection(t *testing.T) {
	s := pipeSession(t)
	if err := s.Transfer(t.Context(), t.TempDir(), t.TempDir(), Direction(9)); err == nil {
		t.Fatal("expected an error for an unknown direction")
	}
}
