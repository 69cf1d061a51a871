package remote

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyPolicy selects how server host keys are checked.
type HostKeyPolicy string

const (
	// VerifyHostKey requires the key to already be in known_hosts.
	VerifyHostKey HostKeyPolicy = "verify"
	// AcceptNewHostKey records unknown hosts (trust on first use) but
	// rejects a changed key.
	AcceptNewHostKey HostKeyPolicy = "accept-new"
	// InsecureHostKey skips verification. Only for a private lab network.
	InsecureHostKey HostKeyPolicy = "insecure"
)

func ParseHostKeyPolicy(s string) (HostKeyPolicy, error) {
	switch HostKeyPolicy(s) {
	case "", VerifyHostKey:
		return VerifyHostKey, nil
	case AcceptNewHostKey:
		return AcceptNewHostKey, nil
	case InsecureHostKey:
		return InsecureHostKey, nil
	default:
		return "", fmt.Errorf("unknown host key policy %q (want verify, accept-new or insecure)", s)
	}
}

func defaultKnownHosts() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ssh", "known_hosts"), nil
}

// HostKeyCallback builds the ssh callback for the configured policy.
func HostKeyCallback(cfg Config, logger *slog.Logger) (ssh.HostKeyCallback, error) {
	policy, err := ParseHostKeyPolicy(string(cfg.HostKeyPolicy))
	if err != nil {
		return nil, err
	}
	if policy == InsecureHostKey {
		logger.Warn("host key verification disabled; use only on a private lab network", "host", cfg.Host)
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := cfg.KnownHostsPath
	if path == "" {
		if path, err = defaultKnownHosts(); err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
	}
	if policy == AcceptNewHostKey {
		if err := ensureFile(path); err != nil {
			return nil, err
		}
	}
	verify, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", path, err)
	}
	if policy == VerifyHostKey {
		return verify, nil
	}
	return func(hostname string, addr net.Addr, key ssh.PublicKey) error {
		err := verify(hostname, addr, key)
		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) || len(keyErr.Want) > 0 {
			return err
		}
		line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
		if err := appendLine(path, line); err != nil {
			return fmt.Errorf("record host key for %s: %w", hostname, err)
		}
		logger.Warn("recorded new host key", "host", hostname, "type", key.Type(), "known_hosts", path)
		return nil
	}, nil
}

func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return f.Close()
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
