// Package remote manages the single SSH connection an orchestration run
// holds to the embedded target.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
)

// ErrConnect marks a failure to open the remote session.
var ErrConnect = errors.New("cannot connect to remote host")

// Direction of a Transfer.
type Direction int

const (
	HostToRemote Direction = iota
	RemoteToHost
)

func (d Direction) String() string {
	switch d {
	case HostToRemote:
		return "host->remote"
	case RemoteToHost:
		return "remote->host"
	default:
		return "direction(" + strconv.Itoa(int(d)) + ")"
	}
}

// Result of one remote command. ExitStatus is -1 when the remote side
// closed without reporting a status.
type Result struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

func (r Result) OK() bool { return r.ExitStatus == 0 }

// Session executes commands and copies directory trees on one remote host.
// Implementations are not safe for concurrent use.
type Session interface {
	Execute(ctx context.Context, command string) (Result, error)
	// Transfer copies the contents of src into dst, creating dst if needed.
	Transfer(ctx context.Context, src, dst string, dir Direction) error
	Close() error
}

// Config describes how to reach the remote host.
type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	HostKeyPolicy  HostKeyPolicy
	KnownHostsPath string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("remote host is required")
	}
	if strings.TrimSpace(c.User) == "" {
		return errors.New("remote user is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := ParseHostKeyPolicy(string(c.HostKeyPolicy)); err != nil {
		return err
	}
	return nil
}

// Addr is host:port with port 22 by default.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// HomeDir asks the remote shell for $HOME.
func HomeDir(ctx context.Context, s Session) (string, error) {
	res, err := s.Execute(ctx, `printf '%s' "$HOME"`)
	if err != nil {
		return "", err
	}
	home := strings.TrimSpace(res.Stdout)
	if !res.OK() || home == "" {
		return "", fmt.Errorf("resolve remote home: exit %d: %s", res.ExitStatus, strings.TrimSpace(res.Stderr))
	}
	return home, nil
}

// ExpandHome replaces a leading ~ in a remote path. SFTP and quoted shell
// arguments do not expand it themselves.
func ExpandHome(p, home string) string {
	switch {
	case p == "~":
		return home
	case strings.HasPrefix(p, "~/"):
		return path.Join(home, p[2:])
	default:
		return p
	}
}

func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, `'`, `'"'"'`) + "'"
}
