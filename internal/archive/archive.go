// Package archive packs a run directory into a zstd-compressed tarball and
// uploads it to an S3-compatible bucket.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"rtbench/internal/logging"
)

const Ext = ".tar.zst"

// ObjectKey is <prefix>/<base of dir>.tar.zst.
func ObjectKey(prefix, dir string) string {
	name := filepath.Base(filepath.Clean(dir)) + Ext
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Write streams dir as a tar archive compressed with zstd. Entry names are
// relative to the parent of dir, so the archive unpacks into one directory.
func Write(ctx context.Context, w io.Writer, dir string) (err error) {
	dir = filepath.Clean(dir)
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(enc)
	defer func() {
		err = errors.Join(err, tw.Close(), enc.Close())
	}()

	root := filepath.Dir(dir)
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		return errors.Join(err, f.Close())
	})
}

type Uploader struct {
	client *minio.Client
	cfg    Config
	logger *slog.Logger
}

func NewUploader(cfg Config, logger *slog.Logger) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, err
	}
	return &Uploader{client: client, cfg: cfg, logger: logging.Or(logger)}, nil
}

// Upload archives dir and stores it under ObjectKey. The bucket is created
// when missing. It returns the object key.
func (u *Uploader) Upload(ctx context.Context, dir string) (string, error) {
	if err := u.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket %s: %w", u.cfg.Bucket, err)
	}
	key := ObjectKey(u.cfg.Prefix, dir)
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(Write(ctx, pw, dir))
	}()
	info, err := u.client.PutObject(ctx, u.cfg.Bucket, key, pr, -1, minio.PutObjectOptions{
		ContentType: "application/zstd",
	})
	pr.CloseWithError(err)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	u.logger.Info("archive uploaded", "bucket", u.cfg.Bucket, "key", key, "bytes", info.Size)
	return key, nil
}

func (u *Uploader) ensureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.cfg.Bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return u.client.MakeBucket(ctx, u.cfg.Bucket, minio.MakeBucketOptions{Region: u.cfg.Region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
