// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"shepherd/internal/checkcache"
	"shepherd/internal/config"
	"shepherd/internal/logging"
	"shepherd/internal/specstore"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per
// test and short lock timeouts so failures surface quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.RecordsDir = filepath.Join(base, "records")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Locking.TimeoutSeconds = 2
	cfg.Locking.RetryDelayMS = 10

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithMaxRunners overrides the global runner bound on the test config.
func WithMaxRunners(n int) ConfigOption {
	return func(cfg *config.Config) { cfg.Scheduler.MaxRunners = n }
}

// WithZombieTimeout overrides the zombie timeout, in seconds.
func WithZombieTimeout(seconds int) ConfigOption {
	return func(cfg *config.Config) { cfg.Scheduler.ZombieTimeout = seconds }
}

// WithQueryFilter sets the scheduler's record filter.
func WithQueryFilter(filter string) ConfigOption {
	return func(cfg *config.Config) { cfg.Scheduler.QueryFilter = filter }
}

// MustStore builds a specstore over the test config's records directory.
func MustStore(t testing.TB, cfg *config.Config) *specstore.Store {
	t.Helper()
	return specstore.NewFromConfig(cfg, logging.NewNop())
}

// MustOpenCache opens a check cache for tests and registers cleanup.
func MustOpenCache(t testing.TB, cfg *config.Config) *checkcache.Cache {
	t.Helper()
	cache, err := checkcache.Open(cfg.CheckCachePath())
	if err != nil {
		t.Fatalf("open check cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

// WriteSpecFile drops raw ChangeSpec content into the records directory
// for the named project.
func WriteSpecFile(t testing.TB, cfg *config.Config, project, content string) string {
	t.Helper()
	path := filepath.Join(cfg.Paths.RecordsDir, project+".spec")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir records dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write spec file %s: %v", path, err)
	}
	return path
}
