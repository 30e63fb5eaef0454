// Package config holds process-level settings for a polykit invocation:
// cache directories, worker concurrency, remote cache credentials, and the
// environment variable allowlist used by the fingerprint.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/kelseyhightower/envconfig"
	homedir "github.com/mitchellh/go-homedir"
)

// EnvLogLevel is the environment variable that controls hclog verbosity.
const EnvLogLevel = "POLYKIT_LOG_LEVEL"

// Settings is populated from environment variables (prefix POLYKIT_) with
// sane defaults via envconfig.
type Settings struct {
	// CacheDir is the root of the local artifact store and task cache.
	// Defaults to "<workspace>/.polykit/cache" when empty.
	CacheDir string `envconfig:"CACHE_DIR"`

	// Parallelism bounds the scheduler's per-level worker pool. Zero or a
	// negative value means runtime.NumCPU() (the hardware thread count).
	Parallelism int `envconfig:"PARALLELISM"`

	// RemoteCacheURL, when set, enables the HTTP remote cache backend.
	RemoteCacheURL string `envconfig:"REMOTE_CACHE_URL"`

	// RemoteCacheToken is sent as a bearer token to the remote cache.
	RemoteCacheToken string `envconfig:"REMOTE_CACHE_TOKEN"`

	// MaxArtifactSize bounds accepted artifact bodies, in bytes.
	MaxArtifactSize int64 `envconfig:"MAX_ARTIFACT_SIZE" default:"536870912"`

	// EnvAllowlist is a comma-separated list of env var names eligible for
	// inclusion in a task's fingerprint.
	EnvAllowlist []string `envconfig:"ENV_ALLOWLIST"`

	// StrictCommands rejects shell metacharacters in task commands when true.
	StrictCommands bool `envconfig:"STRICT_COMMANDS" default:"true"`

	// ScanDepth is read from POLYKIT_SCAN_DEPTH. The scan, graph and run
	// commands do not pass it to the scanner: they use the scanner's own
	// default depth of 2, or scan's --max-depth flag.
	ScanDepth int `envconfig:"SCAN_DEPTH" default:"2"`
}

// Load reads POLYKIT_-prefixed environment variables into a Settings value
// and resolves the cache directory relative to repoRoot.
func Load(repoRoot string) (*Settings, error) {
	var s Settings
	if err := envconfig.Process("polykit", &s); err != nil {
		return nil, err
	}
	if s.Parallelism <= 0 {
		s.Parallelism = runtime.NumCPU()
	}
	resolved, err := resolveCacheDir(s.CacheDir, repoRoot)
	if err != nil {
		return nil, err
	}
	s.CacheDir = resolved
	return &s, nil
}

// resolveCacheDir expands a leading "~" and falls back to
// "<repoRoot>/.polykit/cache" when dir is empty.
func resolveCacheDir(dir, repoRoot string) (string, error) {
	if dir == "" {
		return filepath.Join(repoRoot, ".polykit", "cache"), nil
	}
	if strings.HasPrefix(dir, "~") {
		expanded, err := homedir.Expand(dir)
		if err != nil {
			return "", err
		}
		return expanded, nil
	}
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	return filepath.Join(repoRoot, dir), nil
}

// IsCI reports whether a CI environment variable is set, matching the
// teacher's config.IsCI().
func IsCI() bool {
	return os.Getenv("CI") != ""
}
