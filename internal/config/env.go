package config

import (
	"fmt"
	"os"
	"strconv"
)

func String(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func Bool(key string, def bool) (bool, error) {
	if v, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", key, err)
		}
		return b, nil
	}
	return def, nil
}

func Int(key string, def int) (int, error) {
	if v, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return i, nil
	}
	return def, nil
}

// FromEnv reads the RTBENCH_* connection overrides.
func FromEnv() (Profile, error) {
	port, err := Int("RTBENCH_PORT", 0)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Host:          String("RTBENCH_HOST", ""),
		Port:          port,
		User:          String("RTBENCH_USER", ""),
		Password:      String("RTBENCH_PASSWORD", ""),
		HostKeyPolicy: String("RTBENCH_HOST_KEY_POLICY", ""),
		KnownHosts:    String("RTBENCH_KNOWN_HOSTS", ""),
	}, nil
}
