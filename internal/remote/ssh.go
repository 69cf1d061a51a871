package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"rtbench/internal/logging"
)

// SSHSession is a Session over one golang.org/x/crypto/ssh client.
// Transfers use an SFTP subsystem opened on first use.
type SSHSession struct {
	client *ssh.Client
	sftp   *sftp.Client
	addr   string
	logger *slog.Logger
}

var _ Session = (*SSHSession)(nil)

// Dial opens the connection. There is no retry; failures wrap ErrConnect.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*SSHSession, error) {
	logger = logging.Or(logger)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	callback, err := HostKeyCallback(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	password := cfg.Password
	clientCfg := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: callback,
	}

	addr := cfg.Addr()
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnect, addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: handshake %s: %v", ErrConnect, addr, err)
	}
	logger.Info("connected to remote host", "addr", addr, "user", cfg.User)
	return &SSHSession{
		client: ssh.NewClient(c, chans, reqs),
		addr:   addr,
		logger: logger,
	}, nil
}

func (s *SSHSession) Execute(ctx context.Context, command string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	sess, err := s.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("open ssh session: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	if err := sess.Start(command); err != nil {
		return Result{}, fmt.Errorf("start %q: %w", command, err)
	}
	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()
	select {
	case err = <-done:
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGINT)
		sess.Close()
		<-done
		return Result{Stdout: stdout.String(), Stderr: stderr.String()}, ctx.Err()
	}
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *ssh.ExitError
	var missing *ssh.ExitMissingError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitStatus = exitErr.ExitStatus()
	case errors.As(err, &missing):
		res.ExitStatus = -1
	default:
		return res, fmt.Errorf("run %q: %w", command, err)
	}
	return res, nil
}

func (s *SSHSession) sftpClient() (*sftp.Client, error) {
	if s.sftp != nil {
		return s.sftp, nil
	}
	c, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, fmt.Errorf("open sftp: %w", err)
	}
	s.sftp = c
	return c, nil
}

func (s *SSHSession) Transfer(ctx context.Context, src, dst string, dir Direction) error {
	c, err := s.sftpClient()
	if err != nil {
		return err
	}
	switch dir {
	case HostToRemote:
		return upload(ctx, c, src, dst)
	case RemoteToHost:
		return download(ctx, c, src, dst)
	default:
		return fmt.Errorf("unknown transfer direction %s", dir)
	}
}

func (s *SSHSession) Close() error {
	var errs []error
	if s.sftp != nil {
		errs = append(errs, s.sftp.Close())
	}
	if s.client != nil {
		errs = append(errs, s.client.Close())
	}
	s.logger.Info("closed remote connection", "addr", s.addr)
	return errors.Join(errs...)
}

func upload(ctx context.Context, c *sftp.Client, src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := dst
		if rel != "." {
			target = path.Join(dst, filepath.ToSlash(rel))
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			if err := c.MkdirAll(target); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
			return nil
		case !info.Mode().IsRegular():
			return nil
		}
		if err := c.MkdirAll(path.Dir(target)); err != nil {
			return fmt.Errorf("mkdir %s: %w", path.Dir(target), err)
		}
		return uploadFile(c, p, target, info.Mode().Perm())
	})
}

func uploadFile(c *sftp.Client, local, target string, mode fs.FileMode) error {
	in, err := os.Open(local)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := c.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s -> %s: %w", local, target, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return c.Chmod(target, mode)
}

func download(ctx context.Context, c *sftp.Client, src, dst string) error {
	root := strings.TrimRight(src, "/")
	if root == "" {
		root = "/"
	}
	walker := c.Walk(root)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return fmt.Errorf("walk %s: %w", walker.Path(), err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := strings.TrimLeft(strings.TrimPrefix(walker.Path(), root), "/")
		target := filepath.Join(dst, filepath.FromSlash(rel))
		info := walker.Stat()
		switch {
		case info.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		case !info.Mode().IsRegular():
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := downloadFile(c, walker.Path(), target, info.Mode().Perm()); err != nil {
			return err
		}
	}
	return nil
}

func downloadFile(c *sftp.Client, remotePath, target string, mode fs.FileMode) error {
	in, err := c.Open(remotePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", remotePath, err)
	}
	defer in.Close()
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s -> %s: %w", remotePath, target, err)
	}
	return out.Close()
}
