package archive

import (
	"errors"
	"fmt"
	"strings"

	"rtbench/internal/config"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := config.Bool("RTBENCH_ARCHIVE_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:  config.String("RTBENCH_ARCHIVE_ENDPOINT", "localhost:9000"),
		AccessKey: config.String("RTBENCH_ARCHIVE_ACCESS_KEY", ""),
		SecretKey: config.String("RTBENCH_ARCHIVE_SECRET_KEY", ""),
		Region:    config.String("RTBENCH_ARCHIVE_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    config.String("RTBENCH_ARCHIVE_BUCKET", "benchmarks"),
		Prefix:    config.String("RTBENCH_ARCHIVE_PREFIX", "runs"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
