// Package envconfig reads Carton's runtime configuration from environment
// variables, with config.toml providing the fallback layer and built-in
// defaults under that.
//
// Resolution order (highest wins): environment variable, config.toml,
// built-in default.
package envconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RunnerDir returns the root directory under which installed runners live.
// Configurable via CARTON_RUNNER_DIR. Default: ~/.carton/runners/
func RunnerDir() string {
	if s := Var("CARTON_RUNNER_DIR"); s != "" {
		return s
	}
	if v, ok := fileConfig()["runner_dir"]; ok && v != "" {
		return v
	}
	return filepath.Join(homeDir(), ".carton", "runners")
}

// RunnerDataDir returns the per-runner scratch/data directory.
// Configurable via CARTON_RUNNER_DATA_DIR. Default: ~/.carton/runner_data/
func RunnerDataDir() string {
	if s := Var("CARTON_RUNNER_DATA_DIR"); s != "" {
		return s
	}
	if v, ok := fileConfig()["runner_data_dir"]; ok && v != "" {
		return v
	}
	return filepath.Join(homeDir(), ".carton", "runner_data")
}

// CacheDir returns the cache root used for fetched remote cartons and
// link-resolved blobs. Configurable via CARTON_CACHE_DIR.
// Default: ~/.carton/cache/
func CacheDir() string {
	if s := Var("CARTON_CACHE_DIR"); s != "" {
		return s
	}
	if v, ok := fileConfig()["cache_dir"]; ok && v != "" {
		return v
	}
	return filepath.Join(homeDir(), ".carton", "cache")
}

// RunnerIndexURL returns the optional JSON index URL used by the packager
// (§4.11) when no locally installed runner satisfies a request.
// Configurable via CARTON_RUNNER_INDEX_URL.
func RunnerIndexURL() string {
	if s := Var("CARTON_RUNNER_INDEX_URL"); s != "" {
		return s
	}
	if v, ok := fileConfig()["runner_index_url"]; ok {
		return v
	}
	return ""
}

// LoadTimeout returns the configured timeout for the runner Load RPC.
// Configurable via CARTON_LOAD_TIMEOUT (Go duration syntax, e.g. "5m").
// Default: 5 minutes. This package only reports the value: loader.Load
// does not consult it and waits for the Load RPC without a deadline.
func LoadTimeout() time.Duration {
	s := Var("CARTON_LOAD_TIMEOUT")
	if s == "" {
		s = fileConfig()["load_timeout"]
	}
	if s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
		slog.Warn("invalid CARTON_LOAD_TIMEOUT, using default", "value", s)
	}
	return 5 * time.Minute
}

// LogLevel returns the configured slog.Level. Configurable via
// CARTON_DEBUG (truthy enables debug logging).
func LogLevel() slog.Level {
	if b, err := strconv.ParseBool(Var("CARTON_DEBUG")); err == nil && b {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// ConfigPath returns the path to config.toml, overridable via
// CARTON_CONFIG_PATH. Default: ~/.carton/config.toml
func ConfigPath() string {
	if s := Var("CARTON_CONFIG_PATH"); s != "" {
		return s
	}
	return filepath.Join(homeDir(), ".carton", "config.toml")
}

func homeDir() string {
	h, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("unable to determine home directory, using .", "error", err)
		return "."
	}
	return h
}

// Var returns the trimmed value of an environment variable.
func Var(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}
